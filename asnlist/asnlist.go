// package asnlist reads curated autonomous system number lists
package asnlist

import (
	"bufio"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Set holds asn numbers in their canonical decimal form.
type Set map[string]struct{}

// Parse collects the asn of every line that starts with an "AS<digits>"
// token. Any other line is ignored.
func Parse(r io.Reader) (Set, error) {
	s := Set{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "AS") {
			continue
		}
		s.Add(strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Join(errors.New("[asnlist] unable to read list"), err)
	}
	return s, nil
}

// Add inserts asn given as "AS64500" or "64500". It reports false for
// anything else.
func (s Set) Add(asn string) bool {
	key, ok := canonical(asn)
	if ok {
		s[key] = struct{}{}
	}
	return ok
}

// Has reports whether asn, in either notation, is in the set.
func (s Set) Has(asn string) bool {
	key, ok := canonical(asn)
	if !ok {
		return false
	}
	_, ok = s[key]
	return ok
}

// Sorted returns the members in numeric order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.ParseUint(out[i], 10, 32)
		b, _ := strconv.ParseUint(out[j], 10, 32)
		return a < b
	})
	return out
}

// canonical ...
func canonical(asn string) (string, bool) {
	asn = strings.TrimPrefix(strings.TrimSpace(asn), "AS")
	if asn == "" || strings.TrimLeft(asn, "0123456789") != "" {
		return "", false
	}
	n, err := strconv.ParseUint(asn, 10, 32)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}
