package strata

import (
	"strconv"
	"time"
)

// timeLayout is the wire format for timestamps. The platform accepts ISO
// timestamps with millisecond precision and no zone designator.
const timeLayout = "2006-01-02T15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseWireTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Index locates one value of an indexed signal: a timestamp for time kinds, a
// depth for depth kinds. The zero Index is the absent index of static kinds.
type Index struct {
	domain indexDomain
	t      time.Time
	d      float64
}

// TimeIndex returns a time-domain index.
func TimeIndex(t time.Time) Index {
	return Index{domain: domainTime, t: t.UTC()}
}

// DepthIndex returns a depth-domain index.
func DepthIndex(d float64) Index {
	return Index{domain: domainDepth, d: d}
}

// IsZero reports whether the index is absent.
func (ix Index) IsZero() bool { return ix.domain == domainNone }

// Time returns the timestamp of a time-domain index and whether it is one.
func (ix Index) Time() (time.Time, bool) {
	return ix.t, ix.domain == domainTime
}

// Depth returns the depth of a depth-domain index and whether it is one.
func (ix Index) Depth() (float64, bool) {
	return ix.d, ix.domain == domainDepth
}

// Before reports whether ix orders strictly before other. Indexes of
// different domains are never ordered.
func (ix Index) Before(other Index) bool {
	if ix.domain != other.domain {
		return false
	}
	switch ix.domain {
	case domainTime:
		return ix.t.Before(other.t)
	case domainDepth:
		return ix.d < other.d
	}
	return false
}

// canonical returns the stable string form used inside RecordKey: the wire
// timestamp for time indexes, the shortest float form for depth indexes, and
// the empty string for the absent index.
func (ix Index) canonical() string {
	switch ix.domain {
	case domainTime:
		return formatTime(ix.t)
	case domainDepth:
		return strconv.FormatFloat(ix.d, 'g', -1, 64)
	}
	return ""
}

func (ix Index) String() string { return ix.canonical() }

// Value is a scalar signal value: a number, a text, or null (a gap).
type Value struct {
	num  float64
	str  string
	kind valueKind
}

type valueKind int

const (
	valueNull valueKind = iota
	valueNumber
	valueText
)

// Number returns a numeric Value.
func Number(f float64) Value { return Value{num: f, kind: valueNumber} }

// Text returns a string Value.
func Text(s string) Value { return Value{str: s, kind: valueText} }

// Null is the absent value of a gap cell.
var Null = Value{}

// IsNull reports whether the value is a gap.
func (v Value) IsNull() bool { return v.kind == valueNull }

// Number returns the numeric payload and whether the value is numeric.
func (v Value) Number() (float64, bool) { return v.num, v.kind == valueNumber }

// Text returns the string payload and whether the value is a text.
func (v Value) Text() (string, bool) { return v.str, v.kind == valueText }

/// String renders the value the way reference-table cells are transmitted:
// numbers in shortest form, texts verbatim, null as the empty string.
func (v Value) String() string {
	switch v.kind {
	case valueNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case valueText:
		return v.str
	}
	return ""
}

// RecordKey is the unique identity of a stored value. For static kinds the
// index is absent and identity collapses to (entity, signal, unit).
type RecordKey struct {
	Entity string
	Signal string
	Unit   string
	Index  string
}

// Record is one (entity, signal, unit, index, value) tuple, the narrow
// per-record form every data operation reduces to.
type Record struct {
	Entity string
	Signal string
	Unit   string
	Index  Index
	Value  Value
}

// Key returns the record's merge identity.
func (r Record) Key() RecordKey {
	return RecordKey{Entity: r.Entity, Signal: r.Signal, Unit: r.Unit, Index: r.Index.canonical()}
}
