package binlog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// https://dev.mysql.com/doc/refman/8.0/en/replication-gtids-concepts.html

// Interval is a half-open range [Start, End) of transaction numbers.
// The textual form is closed-inclusive: "a-b" means [a, b+1).
type Interval struct {
	Start uint64
	End   uint64
}

func (iv Interval) overlaps(other Interval) bool {
	return iv.Start < other.End && iv.End > other.Start
}

func (iv Interval) contains(other Interval) bool {
	return other.Start >= iv.Start && other.End <= iv.End
}

func (iv Interval) String() string {
	if iv.Start+1 == iv.End {
		return strconv.FormatUint(iv.Start, 10)
	}
	return fmt.Sprintf("%d-%d", iv.Start, iv.End-1)
}

func parseInterval(s string) (Interval, error) {
	start, end := s, s
	if i := strings.IndexByte(s, '-'); i != -1 {
		start, end = s[:i], s[i+1:]
	}
	a, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("binlog: gtid interval %q is malformed", s)
	}
	b, err := strconv.ParseUint(end, 10, 64)
	if err != nil || a > b {
		return Interval{}, fmt.Errorf("binlog: gtid interval %q is malformed", s)
	}
	return Interval{Start: a, End: b + 1}, nil
}

// Gtid is the set of transactions seen from one source, held as sorted,
// pairwise disjoint intervals with touching neighbours merged.
// Gtid is a value: Add and Sub return new values and never mutate
// the receiver, so captured copies stay valid across reconnects.
type Gtid struct {
	SID       uuid.UUID
	Intervals []Interval
}

// ParseGtid parses the textual form "SID:INTERVAL[:INTERVAL...]" where
// INTERVAL is "N" or "N-M" inclusive.
func ParseGtid(s string) (Gtid, error) {
	i := strings.IndexByte(s, ':')
	if i == -1 {
		return Gtid{}, fmt.Errorf("binlog: gtid %q is malformed", s)
	}
	sid, err := uuid.Parse(s[:i])
	if err != nil || len(s[:i]) != 36 {
		return Gtid{}, fmt.Errorf("binlog: gtid %q has malformed source id", s)
	}
	g := Gtid{SID: sid}
	for _, part := range strings.Split(s[i+1:], ":") {
		iv, err := parseInterval(part)
		if err != nil {
			return Gtid{}, err
		}
		if g, err = g.withInterval(iv); err != nil {
			return Gtid{}, err
		}
	}
	return g, nil
}

// withInterval returns a copy of g with iv added. An interval already
// fully contained is a no-op; a partial overlap is an error. Intervals
// touching iv at a boundary are merged into it.
func (g Gtid) withInterval(iv Interval) (Gtid, error) {
	if iv.Start >= iv.End {
		return Gtid{}, fmt.Errorf("binlog: gtid interval %v is malformed", iv)
	}
	merged := make([]Interval, 0, len(g.Intervals)+1)
	for _, existing := range g.Intervals {
		if existing.contains(iv) {
			return g, nil
		}
		if existing.overlaps(iv) {
			return Gtid{}, fmt.Errorf("binlog: gtid interval %v overlaps %v", iv, existing)
		}
		switch {
		case iv.Start == existing.End:
			iv = Interval{existing.Start, iv.End}
		case iv.End == existing.Start:
			iv = Interval{iv.Start, existing.End}
		default:
			merged = append(merged, existing)
		}
	}
	merged = append(merged, iv)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return Gtid{SID: g.SID, Intervals: merged}, nil
}

// withoutInterval returns a copy of g with iv removed, splitting or
// shrinking intervals it overlaps. Disjoint iv is a no-op.
func (g Gtid) withoutInterval(iv Interval) Gtid {
	any := false
	for _, existing := range g.Intervals {
		if existing.overlaps(iv) {
			any = true
			break
		}
	}
	if !any {
		return g
	}
	remaining := make([]Interval, 0, len(g.Intervals)+1)
	for _, existing := range g.Intervals {
		if !existing.overlaps(iv) {
			remaining = append(remaining, existing)
			continue
		}
		if existing.Start < iv.Start {
			remaining = append(remaining, Interval{existing.Start, iv.Start})
		}
		if existing.End > iv.End {
			remaining = append(remaining, Interval{iv.End, existing.End})
		}
	}
	return Gtid{SID: g.SID, Intervals: remaining}
}

// union returns a copy of g with iv added, absorbing any intervals it
// overlaps or touches. Unlike withInterval it never fails: set union is
// total, only interval literals in a parsed or decoded gtid are required
// to be disjoint.
func (g Gtid) union(iv Interval) Gtid {
	merged := make([]Interval, 0, len(g.Intervals)+1)
	for _, existing := range g.Intervals {
		if existing.overlaps(iv) || existing.Start == iv.End || existing.End == iv.Start {
			if existing.Start < iv.Start {
				iv.Start = existing.Start
			}
			if existing.End > iv.End {
				iv.End = existing.End
			}
			continue
		}
		merged = append(merged, existing)
	}
	merged = append(merged, iv)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return Gtid{SID: g.SID, Intervals: merged}
}

// Add returns the union of g and other. Both must carry the same source id.
func (g Gtid) Add(other Gtid) (Gtid, error) {
	if g.SID != other.SID {
		return Gtid{}, fmt.Errorf("binlog: cannot merge gtids of different sources %s and %s", g.SID, other.SID)
	}
	result := g
	for _, iv := range other.Intervals {
		result = result.union(iv)
	}
	return result, nil
}

// Sub returns g with other's intervals removed. A different source id is
// silently ignored and g is returned unchanged; this asymmetry with Add
// is deliberate.
func (g Gtid) Sub(other Gtid) Gtid {
	if g.SID != other.SID {
		return g
	}
	result := g
	for _, iv := range other.Intervals {
		result = result.withoutInterval(iv)
	}
	return result
}

// Contains reports whether every interval of other lies within g.
func (g Gtid) Contains(other Gtid) bool {
	if g.SID != other.SID {
		return false
	}
	for _, them := range other.Intervals {
		ok := false
		for _, me := range g.Intervals {
			if me.contains(them) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (g Gtid) String() string {
	parts := make([]string, 0, len(g.Intervals)+1)
	parts = append(parts, strings.ToUpper(g.SID.String()))
	for _, iv := range g.Intervals {
		parts = append(parts, iv.String())
	}
	return strings.Join(parts, ":")
}

func (g Gtid) encodedLength() int {
	return 16 + 8 + 16*len(g.Intervals)
}

func (g Gtid) encode(b []byte) []byte {
	b = append(b, g.SID[:]...)
	b = appendUint64(b, uint64(len(g.Intervals)))
	for _, iv := range g.Intervals {
		b = appendUint64(b, iv.Start)
		b = appendUint64(b, iv.End)
	}
	return b
}

func decodeGtid(p *packet) (Gtid, error) {
	var sid uuid.UUID
	copy(sid[:], p.read(16))
	n := p.int8()
	if p.err != nil {
		return Gtid{}, p.err
	}
	g := Gtid{SID: sid}
	for i := uint64(0); i < n; i++ {
		start := p.int8()
		end := p.int8()
		if p.err != nil {
			return Gtid{}, p.err
		}
		var err error
		if g, err = g.withInterval(Interval{start, end}); err != nil {
			return Gtid{}, err
		}
	}
	return g, nil
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// GtidSet ---

// GtidSet holds at most one Gtid per source id. Like Gtid it is a value:
// merges return new sets.
type GtidSet struct {
	gtids map[uuid.UUID]Gtid
}

// NewGtidSet builds a set from the given gtids, merging entries that
// share a source id.
func NewGtidSet(gtids ...Gtid) (GtidSet, error) {
	s := GtidSet{}
	var err error
	for _, g := range gtids {
		if s, err = s.Merge(g); err != nil {
			return GtidSet{}, err
		}
	}
	return s, nil
}

// ParseGtidSet parses a comma-separated list of gtid literals.
func ParseGtidSet(s string) (GtidSet, error) {
	set := GtidSet{}
	for _, part := range strings.Split(s, ",") {
		g, err := ParseGtid(strings.TrimSpace(part))
		if err != nil {
			return GtidSet{}, err
		}
		if set, err = set.Merge(g); err != nil {
			return GtidSet{}, err
		}
	}
	return set, nil
}

// Merge returns a new set with g unioned in. A source id present in only
// one operand is carried through unchanged.
func (s GtidSet) Merge(g Gtid) (GtidSet, error) {
	merged := make(map[uuid.UUID]Gtid, len(s.gtids)+1)
	for sid, existing := range s.gtids {
		merged[sid] = existing
	}
	if existing, ok := merged[g.SID]; ok {
		union, err := existing.Add(g)
		if err != nil {
			return GtidSet{}, err
		}
		merged[g.SID] = union
	} else {
		merged[g.SID] = g
	}
	return GtidSet{gtids: merged}, nil
}

// Add returns the union of both sets.
func (s GtidSet) Add(other GtidSet) (GtidSet, error) {
	result := s
	var err error
	for _, g := range other.sorted() {
		if result, err = result.Merge(g); err != nil {
			return GtidSet{}, err
		}
	}
	return result, nil
}

// ContainsGtid reports whether some entry of s contains g.
func (s GtidSet) ContainsGtid(g Gtid) bool {
	for _, existing := range s.gtids {
		if existing.Contains(g) {
			return true
		}
	}
	return false
}

// Contains reports whether every entry of other is contained in s.
func (s GtidSet) Contains(other GtidSet) bool {
	for _, g := range other.gtids {
		if !s.ContainsGtid(g) {
			return false
		}
	}
	return true
}

// Gtids returns the entries ordered by source id.
func (s GtidSet) Gtids() []Gtid {
	return s.sorted()
}

func (s GtidSet) sorted() []Gtid {
	gtids := make([]Gtid, 0, len(s.gtids))
	for _, g := range s.gtids {
		gtids = append(gtids, g)
	}
	sort.Slice(gtids, func(i, j int) bool {
		return strings.Compare(gtids[i].SID.String(), gtids[j].SID.String()) < 0
	})
	return gtids
}

func (s GtidSet) String() string {
	parts := make([]string, 0, len(s.gtids))
	for _, g := range s.sorted() {
		parts = append(parts, g.String())
	}
	return strings.Join(parts, ",")
}

// EncodedLength reports the size of Encode's result.
func (s GtidSet) EncodedLength() int {
	n := 8
	for _, g := range s.gtids {
		n += g.encodedLength()
	}
	return n
}

// Encode renders the set in the binary form carried by a gtid dump
// request: uint64 source count, then per source 16 byte id, uint64
// interval count and (start, end) pairs, all little-endian.
func (s GtidSet) Encode() []byte {
	b := make([]byte, 0, s.EncodedLength())
	b = appendUint64(b, uint64(len(s.gtids)))
	for _, g := range s.sorted() {
		b = g.encode(b)
	}
	return b
}

// DecodeGtidSet is the inverse of Encode.
func DecodeGtidSet(data []byte) (GtidSet, error) {
	p := newPacket(data)
	n := p.int8()
	if p.err != nil {
		return GtidSet{}, p.err
	}
	set := GtidSet{}
	for i := uint64(0); i < n; i++ {
		g, err := decodeGtid(p)
		if err != nil {
			return GtidSet{}, err
		}
		if set, err = set.Merge(g); err != nil {
			return GtidSet{}, err
		}
	}
	return set, nil
}
