package cidr

import (
	"math/rand"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go4.org/netipx"
)

func parseAll(t *testing.T, in ...string) []Network {
	t.Helper()
	out := make([]Network, 0, len(in))
	for _, s := range in {
		n, err := Parse(s)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func strs(nets []Network) []string {
	out := make([]string, 0, len(nets))
	for _, n := range nets {
		out = append(out, n.String())
	}
	return out
}

func mustAggregate(t *testing.T, nets []Network) []Network {
	t.Helper()
	out, err := Aggregate(nets)
	require.NoError(t, err)
	return out
}

func TestAggregateScenarios(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
		{
			name: "single",
			in:   []string{"203.0.113.0/24"},
			want: []string{"203.0.113.0/24"},
		},
		{
			name: "containment",
			in:   []string{"10.0.0.0/8", "10.1.2.0/24"},
			want: []string{"10.0.0.0/8"},
		},
		{
			name: "deep containment, subnet first",
			in:   []string{"10.1.2.0/24", "10.1.0.0/16", "10.0.0.0/8", "10.1.2.128/25"},
			want: []string{"10.0.0.0/8"},
		},
		{
			name: "adjacency merge",
			in:   []string{"192.168.0.0/25", "192.168.0.128/25"},
			want: []string{"192.168.0.0/24"},
		},
		{
			name: "non-mergeable siblings preserved",
			in:   []string{"192.168.0.0/25", "192.168.1.128/25"},
			want: []string{"192.168.0.0/25", "192.168.1.128/25"},
		},
		{
			name: "adjacent but different parents",
			in:   []string{"192.168.0.128/25", "192.168.1.0/25"},
			want: []string{"192.168.0.128/25", "192.168.1.0/25"},
		},
		{
			name: "cross-category union",
			in:   []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.0.0/23"},
			want: []string{"10.0.0.0/23"},
		},
		{
			name: "cascading merge",
			in:   []string{"10.0.0.0/26", "10.0.0.64/26", "10.0.0.128/25", "10.0.1.0/24"},
			want: []string{"10.0.0.0/23"},
		},
		{
			name: "merge then contain",
			in:   []string{"10.0.0.0/25", "10.0.0.128/25", "10.0.0.0/24", "10.0.0.7/32"},
			want: []string{"10.0.0.0/24"},
		},
		{
			name: "merge exposes new sibling",
			in:   []string{"10.0.2.0/23", "10.0.0.128/25", "10.0.1.0/24", "10.0.0.0/25"},
			want: []string{"10.0.0.0/22"},
		},
		{
			name: "host bits in input",
			in:   []string{"10.0.0.1/25", "10.0.0.200/25"},
			want: []string{"10.0.0.0/24"},
		},
		{
			name: "default route absorbs all",
			in:   []string{"203.0.113.0/24", "0.0.0.0/0", "10.0.0.0/8", "255.255.255.255/32"},
			want: []string{"0.0.0.0/0"},
		},
		{
			name: "halves of the address space",
			in:   []string{"128.0.0.0/1", "0.0.0.0/1"},
			want: []string{"0.0.0.0/0"},
		},
		{
			name: "ipv6 merge and contain",
			in:   []string{"2001:db8::/33", "2001:db8:8000::/33", "2001:db8:1::/48", "2001:db9::/32"},
			want: []string{"2001:db8::/31"},
		},
		{
			name: "ipv6 default absorbs all",
			in:   []string{"2001:db8::/32", "::/0", "fe80::/10"},
			want: []string{"::/0"},
		},
		{
			name: "ipv6 sorted numerically",
			in:   []string{"2a00::/16", "2001:db8::/32", "2001:db8:0:1::/64"},
			want: []string{"2001:db8::/32", "2a00::/16"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustAggregate(t, parseAll(t, tt.in...))
			assert.Equal(t, tt.want, strs(got))
		})
	}
}

func TestAggregateDoesNotModifyInput(t *testing.T) {
	in := parseAll(t, "10.0.1.0/24", "10.0.0.0/24", "10.0.0.0/24")
	orig := append([]Network(nil), in...)
	_ = mustAggregate(t, in)
	assert.Equal(t, orig, in)
}

func TestAggregateRejectsMixedFamilies(t *testing.T) {
	_, err := Aggregate(parseAll(t, "10.0.0.0/8", "2001:db8::/32"))
	assert.ErrorIs(t, err, ErrFamilyMismatch)

	// /0 of one family never absorbs the other
	_, err = Aggregate(parseAll(t, "::/0", "0.0.0.0/0"))
	assert.ErrorIs(t, err, ErrFamilyMismatch)
}

func TestAggregateRejectsZeroValue(t *testing.T) {
	_, err := Aggregate([]Network{MustParse("10.0.0.0/8"), {}})
	assert.ErrorIs(t, err, ErrMalformedCIDR)
}

func TestSplit(t *testing.T) {
	v4, v6 := Split(parseAll(t, "10.0.0.0/8", "2001:db8::/32", "192.0.2.0/24", "::/0"))
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.0/24"}, strs(v4))
	assert.Equal(t, []string{"2001:db8::/32", "::/0"}, strs(v6))

	v4, v6 = Split(nil)
	assert.Empty(t, v4)
	assert.Empty(t, v6)
}

// randomV4 returns networks inside 10.0.0.0/20, so that coverage can be
// checked address by address.
func randomV4(r *rand.Rand, count int) []Network {
	out := make([]Network, 0, count)
	for i := 0; i < count; i++ {
		bits := 20 + r.Intn(13)
		off := r.Intn(1 << 12)
		a := netip.AddrFrom4([4]byte{10, 0, byte(off >> 8), byte(off)})
		n, err := FromAddr(a, bits)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// randomV6 returns networks below 2001:db8::/32, with lengths spread over
// both 64 bit halves.
func randomV6(r *rand.Rand, count int) []Network {
	out := make([]Network, 0, count)
	for i := 0; i < count; i++ {
		var a [16]byte
		a[0], a[1], a[2], a[3] = 0x20, 0x01, 0x0d, 0xb8
		// keep most variation in a few bytes so siblings actually occur
		a[4] = byte(r.Intn(4))
		a[8] = byte(r.Intn(4))
		a[15] = byte(r.Intn(256))
		bits := []int{32, 34, 35, 36, 64, 66, 70, 120, 127, 128}[r.Intn(10)]
		n, err := FromAddr(netip.AddrFrom16(a), bits)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func covered(nets []Network, a netip.Addr) bool {
	host, err := FromAddr(a, a.BitLen())
	if err != nil {
		panic(err)
	}
	for _, n := range nets {
		if n.Contains(host) {
			return true
		}
	}
	return false
}

func assertMinimal(t *testing.T, out []Network) {
	t.Helper()
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].Less(out[i]), "not sorted: %s, %s", out[i-1], out[i])
		assert.False(t, out[i-1].Contains(out[i]), "nested: %s, %s", out[i-1], out[i])
		assert.True(t, out[i-1].Last().Less(out[i].Addr()), "overlap: %s, %s", out[i-1], out[i])
		_, ok := out[i-1].MergeSibling(out[i])
		assert.False(t, ok, "mergeable: %s, %s", out[i-1], out[i])
	}
}

func TestAggregateCoverageIPv4Exhaustive(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		in := randomV4(r, 1+r.Intn(40))
		out := mustAggregate(t, in)
		assertMinimal(t, out)
		for off := 0; off < 1<<12; off++ {
			a := netip.AddrFrom4([4]byte{10, 0, byte(off >> 8), byte(off)})
			require.Equal(t, covered(in, a), covered(out, a), "round %d address %s", round, a)
		}
	}
}

func TestAggregateCoverageIPv6Sampled(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for round := 0; round < 30; round++ {
		in := randomV6(r, 1+r.Intn(40))
		out := mustAggregate(t, in)
		assertMinimal(t, out)

		// sample the bases and last addresses of the input plus random probes
		var probes []netip.Addr
		for _, n := range in {
			probes = append(probes, n.Addr(), n.Last(), n.Addr().Prev(), n.Last().Next())
		}
		for i := 0; i < 500; i++ {
			var a [16]byte
			a[0], a[1], a[2], a[3] = 0x20, 0x01, 0x0d, 0xb8
			a[4] = byte(r.Intn(5))
			a[8] = byte(r.Intn(5))
			a[15] = byte(r.Intn(256))
			probes = append(probes, netip.AddrFrom16(a))
		}
		for _, a := range probes {
			if !a.IsValid() {
				continue
			}
			require.Equal(t, covered(in, a), covered(out, a), "round %d address %s", round, a)
		}
	}
}

func TestAggregateMatchesIPSet(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for round := 0; round < 50; round++ {
		for _, in := range [][]Network{randomV4(r, 1+r.Intn(60)), randomV6(r, 1+r.Intn(60))} {
			var b netipx.IPSetBuilder
			for _, n := range in {
				b.AddPrefix(n.Prefix())
			}
			set, err := b.IPSet()
			require.NoError(t, err)

			var want []string
			for _, p := range set.Prefixes() {
				want = append(want, p.String())
			}
			assert.Equal(t, want, strs(mustAggregate(t, in)), "round %d", round)
		}
	}
}

func TestAggregateProperties(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for round := 0; round < 50; round++ {
		in := randomV4(r, 1+r.Intn(50))
		if round%2 == 1 {
			in = randomV6(r, 1+r.Intn(50))
		}
		out := mustAggregate(t, in)

		// idempotence
		assert.Equal(t, out, mustAggregate(t, out))

		// duplicate collapse
		assert.Equal(t, out, mustAggregate(t, append(append([]Network(nil), in...), in...)))

		// order independence
		shuffled := append([]Network(nil), in...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, out, mustAggregate(t, shuffled))
	}
}

func BenchmarkAggregate(b *testing.B) {
	r := rand.New(rand.NewSource(5))
	in := randomV4(r, 100000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Aggregate(in); err != nil {
			b.Fatal(err)
		}
	}
}
