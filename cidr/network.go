// package cidr implements family aware ip network values and their aggregation
package cidr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"lukechampine.com/uint128"
)

// Family is the address family of a network.
type Family uint8

// const families
const (
	IPv4 Family = 4
	IPv6 Family = 6
)

// errors
var (
	// ErrMalformedCIDR reports text that is not a valid address/prefix-length pair.
	ErrMalformedCIDR = errors.New("[cidr] malformed cidr")
	// ErrFamilyMismatch reports ipv4 and ipv6 networks mixed where one family is required.
	ErrFamilyMismatch = errors.New("[cidr] address family mismatch")
)

// Width returns the address size of the family in bits.
func (f Family) Width() uint8 {
	switch f {
	case IPv4:
		return 32
	case IPv6:
		return 128
	}
	return 0
}

// String ...
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	}
	return "invalid"
}

// Network is an immutable ip prefix: base address plus prefix length.
// The base never has bits set beyond the prefix length. IPv4 bases live in
// the low 32 bits. The zero value is not a valid network.
type Network struct {
	base   uint128.Uint128
	bits   uint8
	family Family
}

// Parse parses "address/length" text for either family. Host bits are
// cleared, so 10.1.2.3/8 yields 10.0.0.0/8.
func Parse(s string) (Network, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return Network{}, fmt.Errorf("%w [%s] [%v]", ErrMalformedCIDR, s, err)
	}
	return FromAddr(p.Addr(), p.Bits())
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Network {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromAddr builds the network of length bits that contains addr.
func FromAddr(addr netip.Addr, bits int) (Network, error) {
	if !addr.IsValid() || addr.Zone() != "" {
		return Network{}, fmt.Errorf("%w [%s/%d] [invalid address]", ErrMalformedCIDR, addr, bits)
	}
	n := Network{family: IPv6}
	if addr.Is4() {
		n.family = IPv4
	}
	if bits < 0 || bits > int(n.family.Width()) {
		return Network{}, fmt.Errorf("%w [%s/%d] [prefix length out of range]", ErrMalformedCIDR, addr, bits)
	}
	switch n.family {
	case IPv4:
		a := addr.As4()
		n.base = uint128.From64(uint64(binary.BigEndian.Uint32(a[:])))
	default:
		a := addr.As16()
		n.base = uint128.New(binary.BigEndian.Uint64(a[8:]), binary.BigEndian.Uint64(a[:8]))
	}
	n.bits = uint8(bits)
	n.base = n.base.And(netmask(n.family.Width(), n.bits))
	return n, nil
}

// New builds a network from a raw base address and prefix length.
// Host bits of base are cleared; bits of an ipv4 base above 32 are rejected.
func New(f Family, base uint128.Uint128, bits int) (Network, error) {
	width := f.Width()
	if width == 0 || bits < 0 || bits > int(width) {
		return Network{}, fmt.Errorf("%w [%s %s/%d] [prefix length out of range]", ErrMalformedCIDR, f, base, bits)
	}
	if !base.And(ones(width)).Equals(base) {
		return Network{}, fmt.Errorf("%w [%s %s/%d] [address out of range]", ErrMalformedCIDR, f, base, bits)
	}
	return Network{base: base.And(netmask(width, uint8(bits))), bits: uint8(bits), family: f}, nil
}

// ones returns a value with the low n bits set.
func ones(n uint8) uint128.Uint128 {
	if n == 0 {
		return uint128.Zero
	}
	return uint128.Max.Rsh(uint(128 - int(n)))
}

// netmask returns the mask selecting the leading bits of a width sized address.
func netmask(width, bits uint8) uint128.Uint128 {
	return ones(width).Xor(ones(width - bits))
}

// IsValid reports whether n was built by Parse or FromAddr.
func (n Network) IsValid() bool { return n.family != 0 }

// Family ...
func (n Network) Family() Family { return n.family }

// Bits returns the prefix length.
func (n Network) Bits() int { return int(n.bits) }

// Base returns the network address as an unsigned integer.
func (n Network) Base() uint128.Uint128 { return n.base }

// Addr returns the network address.
func (n Network) Addr() netip.Addr { return n.toAddr(n.base) }

// Last returns the highest address inside n.
func (n Network) Last() netip.Addr {
	return n.toAddr(n.base.Or(ones(n.family.Width() - n.bits)))
}

func (n Network) toAddr(u uint128.Uint128) netip.Addr {
	switch n.family {
	case IPv4:
		var a [4]byte
		binary.BigEndian.PutUint32(a[:], uint32(u.Lo))
		return netip.AddrFrom4(a)
	case IPv6:
		var a [16]byte
		binary.BigEndian.PutUint64(a[:8], u.Hi)
		binary.BigEndian.PutUint64(a[8:], u.Lo)
		return netip.AddrFrom16(a)
	}
	return netip.Addr{}
}

// Prefix converts n into a netip.Prefix.
func (n Network) Prefix() netip.Prefix {
	if !n.IsValid() {
		return netip.Prefix{}
	}
	return netip.PrefixFrom(n.Addr(), int(n.bits))
}

// String returns the canonical address/length text.
func (n Network) String() string {
	if !n.IsValid() {
		return "invalid network"
	}
	return n.Prefix().String()
}

// Contains reports whether every address of o lies inside n.
// Networks of different families never contain each other.
func (n Network) Contains(o Network) bool {
	if n.family != o.family || !n.IsValid() || o.bits < n.bits {
		return false
	}
	return o.base.And(netmask(n.family.Width(), n.bits)).Equals(n.base)
}

// MergeSibling returns the parent of n and o when both have the same length
// and together tile that one bit shorter parent exactly. The argument order
// does not matter.
func (n Network) MergeSibling(o Network) (Network, bool) {
	if n.family != o.family || !n.IsValid() || n.bits != o.bits || n.bits == 0 {
		return Network{}, false
	}
	lo, hi := n, o
	if hi.base.Cmp(lo.base) < 0 {
		lo, hi = hi, lo
	}
	width := n.family.Width()
	parent := Network{
		base:   lo.base.And(netmask(width, n.bits-1)),
		bits:   n.bits - 1,
		family: n.family,
	}
	bit := uint128.From64(1).Lsh(uint(width - n.bits))
	if !parent.base.Equals(lo.base) || !hi.base.Equals(lo.base.Or(bit)) {
		return Network{}, false
	}
	return parent, true
}

// Compare orders by family (ipv4 first), then base address, then prefix
// length, so a supernet sorts before the subnets sharing its base.
func (n Network) Compare(o Network) int {
	switch {
	case n.family < o.family:
		return -1
	case n.family > o.family:
		return 1
	}
	if c := n.base.Cmp(o.base); c != 0 {
		return c
	}
	switch {
	case n.bits < o.bits:
		return -1
	case n.bits > o.bits:
		return 1
	}
	return 0
}

// Less ...
func (n Network) Less(o Network) bool { return n.Compare(o) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (n Network) MarshalText() ([]byte, error) {
	if !n.IsValid() {
		return []byte{}, nil
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Network) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*n = Network{}
		return nil
	}
	p, err := Parse(string(text))
	if err != nil {
		return err
	}
	*n = p
	return nil
}
