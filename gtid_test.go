package binlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSID = "3E11FA47-71CA-11E1-9E33-C80AA9429562"

func mustGtid(t *testing.T, s string) Gtid {
	t.Helper()
	g, err := ParseGtid(s)
	require.NoError(t, err)
	return g
}

func TestParseGtid_roundTrip(t *testing.T) {
	for _, s := range []string{
		testSID + ":1-5",
		testSID + ":23",
		testSID + ":1-5:10-20:23",
	} {
		require.Equal(t, s, mustGtid(t, s).String())
	}
}

func TestParseGtid_malformed(t *testing.T) {
	for _, s := range []string{
		"",
		testSID,
		"not-a-uuid:1-5",
		testSID + ":",
		testSID + ":5-1",
		testSID + ":a-b",
		testSID + ":1-5:3-7", // overlaps
	} {
		_, err := ParseGtid(s)
		require.Error(t, err, "%q", s)
	}
}

func TestGtid_addThenSubRestores(t *testing.T) {
	g := mustGtid(t, testSID+":1-5:10-20")
	delta := mustGtid(t, testSID+":30-40")

	sum, err := g.Add(delta)
	require.NoError(t, err)
	require.Equal(t, testSID+":1-5:10-20:30-40", sum.String())
	require.Equal(t, g.String(), sum.Sub(delta).String())
}

func TestGtid_addIdempotent(t *testing.T) {
	g := mustGtid(t, testSID+":1-5:10-20")
	sum, err := g.Add(g)
	require.NoError(t, err)
	require.Equal(t, g.String(), sum.String())
}

func TestGtid_addContainedIsNoop(t *testing.T) {
	g := mustGtid(t, testSID+":1-10")
	sum, err := g.Add(mustGtid(t, testSID+":3-7"))
	require.NoError(t, err)
	require.Equal(t, g.String(), sum.String())
}

func TestGtid_addAbsorbsOverlap(t *testing.T) {
	g := mustGtid(t, testSID+":1-5")
	sum, err := g.Add(mustGtid(t, testSID+":4-8"))
	require.NoError(t, err)
	require.Equal(t, testSID+":1-8", sum.String())

	// the union always contains both operands
	require.True(t, sum.Contains(g))
	require.True(t, sum.Contains(mustGtid(t, testSID+":4-8")))
}

func TestGtid_addMergesTouching(t *testing.T) {
	g := mustGtid(t, testSID+":1-5")
	sum, err := g.Add(mustGtid(t, testSID+":6-10"))
	require.NoError(t, err)
	require.Equal(t, testSID+":1-10", sum.String())
}

func TestGtid_subSplitsInterval(t *testing.T) {
	g := mustGtid(t, testSID+":1-10")
	got := g.Sub(mustGtid(t, testSID+":4-6"))
	require.Equal(t, testSID+":1-3:7-10", got.String())
}

func TestGtid_crossSourceAsymmetry(t *testing.T) {
	g := mustGtid(t, testSID+":1-5")
	other := mustGtid(t, "A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-5")

	_, err := g.Add(other)
	require.Error(t, err)

	// subtract across sources is deliberately a silent no-op
	require.Equal(t, g.String(), g.Sub(other).String())
}

func TestGtid_valueSemantics(t *testing.T) {
	g := mustGtid(t, testSID+":1-5")
	before := g.String()
	_, err := g.Add(mustGtid(t, testSID+":10-20"))
	require.NoError(t, err)
	g.Sub(mustGtid(t, testSID+":2-3"))
	require.Equal(t, before, g.String())
}

func TestGtidSet_parseAndString(t *testing.T) {
	s := testSID + ":1-5,A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-20"
	set, err := ParseGtidSet(s)
	require.NoError(t, err)
	require.Equal(t, s, set.String())
}

func TestGtidSet_mergeUnionsPerSource(t *testing.T) {
	set, err := ParseGtidSet(testSID + ":1-5")
	require.NoError(t, err)
	set, err = set.Merge(mustGtid(t, testSID+":10-20"))
	require.NoError(t, err)
	set, err = set.Merge(mustGtid(t, "A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-3"))
	require.NoError(t, err)
	require.Equal(t, "3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5:10-20,A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-3", set.String())
}

func TestGtidSet_containment(t *testing.T) {
	a, err := ParseGtidSet(testSID + ":1-5")
	require.NoError(t, err)
	b, err := ParseGtidSet(testSID + ":1-10,A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-3")
	require.NoError(t, err)
	c, err := ParseGtidSet(testSID + ":1-20,A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:1-5")
	require.NoError(t, err)

	require.True(t, b.Contains(a))
	require.True(t, c.Contains(b))
	require.True(t, c.Contains(a)) // transitive
	require.False(t, a.Contains(b))

	// a is always contained in a+b
	sum, err := a.Add(b)
	require.NoError(t, err)
	require.True(t, sum.Contains(a))
	require.True(t, sum.Contains(b))
}

func TestGtidSet_encodeDecodeRoundTrip(t *testing.T) {
	set, err := ParseGtidSet(testSID + ":1-5:10-20,A57CEBB7-9372-4B31-8C4E-52B6C1B764D2:23")
	require.NoError(t, err)

	b := set.Encode()
	require.Len(t, b, set.EncodedLength())

	got, err := DecodeGtidSet(b)
	require.NoError(t, err)
	require.Equal(t, set.String(), got.String())
}

func TestGtidSet_encodeLayout(t *testing.T) {
	set, err := ParseGtidSet(testSID + ":1-5")
	require.NoError(t, err)
	b := set.Encode()

	p := newPacket(b)
	require.Equal(t, uint64(1), p.int8()) // source count
	want := mustGtid(t, testSID+":1-5")
	require.Equal(t, want.SID[:], p.bytes(16))
	require.Equal(t, uint64(1), p.int8()) // interval count
	require.Equal(t, uint64(1), p.int8()) // start, inclusive
	require.Equal(t, uint64(6), p.int8()) // end, exclusive
	require.Equal(t, 0, p.remaining())
	require.NoError(t, p.err)
}
