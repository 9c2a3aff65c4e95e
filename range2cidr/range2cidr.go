// package range2cidr decomposes inclusive address ranges into cidr networks
//
// The split follows the recursive common-prefix walk of inet.af/netaddr
// (IPRange.Prefixes), carried over 128 bit integers.
package range2cidr

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"

	"lukechampine.com/uint128"
	"paepcke.de/geo2ruleset/cidr"
)

// ErrInvalidRange reports a range whose ends do not parse, differ in family
// or are reversed.
var ErrInvalidRange = errors.New("[range2cidr] invalid range")

//
// EXTERNAL INTERFACE
//

// Prefixes decomposes the textual range s..e (both ends included).
func Prefixes(s, e string) ([]cidr.Network, error) {
	from, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("%w [%s-%s] [%v]", ErrInvalidRange, s, e, err)
	}
	to, err := netip.ParseAddr(e)
	if err != nil {
		return nil, fmt.Errorf("%w [%s-%s] [%v]", ErrInvalidRange, s, e, err)
	}
	return Range(from, to)
}

// Range decomposes from..to into the shortest ordered list of networks
// covering exactly that range.
func Range(from, to netip.Addr) ([]cidr.Network, error) {
	a, err := toUint(from)
	if err != nil {
		return nil, err
	}
	b, err := toUint(to)
	if err != nil {
		return nil, err
	}
	if a.Family() != b.Family() {
		return nil, fmt.Errorf("%w [%s-%s] [mixed families]", ErrInvalidRange, from, to)
	}
	if b.Base().Cmp(a.Base()) < 0 {
		return nil, fmt.Errorf("%w [%s-%s] [end before start]", ErrInvalidRange, from, to)
	}
	return appendRange(nil, a.Family(), a.Base(), b.Base())
}

//
// INTERNAL BACKEND
//

// toUint returns the single address network of addr.
func toUint(addr netip.Addr) (cidr.Network, error) {
	n, err := cidr.FromAddr(addr, addr.BitLen())
	if err != nil {
		return n, fmt.Errorf("%w [%s] [%v]", ErrInvalidRange, addr, err)
	}
	return n, nil
}

// offset is the count of unused leading bits of a family inside 128 bits.
func offset(f cidr.Family) uint8 { return 128 - f.Width() }

// mask returns the 128 bit mask with the leading n bits set.
func mask(n uint8) uint128.Uint128 {
	if n == 0 {
		return uint128.Zero
	}
	return uint128.Max.Lsh(uint(128 - int(n)))
}

// commonPrefixLen counts the leading bits a and b share.
func commonPrefixLen(a, b uint128.Uint128) uint8 {
	n := uint8(bits.LeadingZeros64(a.Hi ^ b.Hi))
	if n == 64 {
		n += uint8(bits.LeadingZeros64(a.Lo ^ b.Lo))
	}
	return n
}

// comparePrefixes returns the common prefix length of a and b and whether
// a..b is exactly the block of that length.
func comparePrefixes(a, b uint128.Uint128) (uint8, bool) {
	common := commonPrefixLen(a, b)
	if common == 128 {
		return common, true
	}
	m := mask(common)
	return common, a.And(m).Equals(a) && b.Or(m).Equals(uint128.Max)
}

func appendRange(dst []cidr.Network, f cidr.Family, a, b uint128.Uint128) ([]cidr.Network, error) {
	common, ok := comparePrefixes(a, b)
	if ok {
		n, err := cidr.New(f, a, int(common-offset(f)))
		if err != nil {
			return nil, err
		}
		return append(dst, n), nil
	}
	// split at the first differing bit: a..(a|hostbits) and (b&netbits)..b
	next := mask(common + 1)
	dst, err := appendRange(dst, f, a, a.Or(next.Xor(uint128.Max)))
	if err != nil {
		return nil, err
	}
	return appendRange(dst, f, b.And(next), b)
}
