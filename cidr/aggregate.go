package cidr

import (
	"fmt"
	"sort"
)

// Aggregate reduces nets to the smallest sorted set of blocks covering
// exactly the same addresses. No two results overlap or tile a common
// parent. All nets must share one family, mixed input fails with
// ErrFamilyMismatch. The input slice is not modified.
func Aggregate(nets []Network) ([]Network, error) {
	if len(nets) == 0 {
		return []Network{}, nil
	}
	family := nets[0].family
	seen := make(map[Network]struct{}, len(nets))
	out := make([]Network, 0, len(nets))
	for _, n := range nets {
		if !n.IsValid() {
			return nil, fmt.Errorf("%w [uninitialized network]", ErrMalformedCIDR)
		}
		if n.family != family {
			return nil, fmt.Errorf("%w [%s] [%s]", ErrFamilyMismatch, nets[0], n)
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	for {
		l := len(out)
		out = coalesce(absorb(out))
		if len(out) == l {
			return out, nil
		}
	}
}

// Split partitions nets by family, keeping the input order inside each part.
func Split(nets []Network) (v4, v6 []Network) {
	for _, n := range nets {
		switch n.family {
		case IPv4:
			v4 = append(v4, n)
		case IPv6:
			v6 = append(v6, n)
		}
	}
	return v4, v6
}

// absorb drops every entry covered by the last kept one. nets must be
// sorted; it is rewritten in place.
func absorb(nets []Network) []Network {
	out := nets[:0]
	for _, n := range nets {
		if len(out) > 0 && out[len(out)-1].Contains(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// coalesce replaces neighbouring siblings with their parent. A fresh parent
// is checked against its left neighbour again, so merges cascade upwards
// within one scan. nets is rewritten in place.
func coalesce(nets []Network) []Network {
	out := nets[:0]
	for _, n := range nets {
		out = append(out, n)
		for len(out) > 1 {
			parent, ok := out[len(out)-2].MergeSibling(out[len(out)-1])
			if !ok {
				break
			}
			out = append(out[:len(out)-2], parent)
		}
	}
	return out
}
