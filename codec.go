package strata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// The record codec maps between the wide Frame view and the narrow
// per-(entity, signal, unit) wire shape {Entity, Signal, Unit, Data}, where
// Data is a scalar for static kinds or a sequence of {Date|Depth, Value}
// points for indexed kinds. All validation here happens before any remote
// call is issued.

// encodeFrame flattens a frame into records, one per non-null cell. Columns
// resolve to descriptors by name (annotation stripped); the unit of each
// record is the per-call override if given, else the header annotation, else
// the descriptor's storage unit. An indexed record with no unit from any of
// those fails with ErrMissingUnit.
func encodeFrame(signals []Signal, frame Frame, units map[string]string) ([]Record, error) {
	byName := make(map[string]Signal, len(signals))
	for _, s := range signals {
		byName[s.Name] = s
	}

	var records []Record
	staticAt := make(map[RecordKey]int)
	for ci, header := range frame.Columns {
		name, headerUnit := splitColumnHeader(header)
		sig, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("strata: column %q does not match any requested signal", header)
		}
		unit := units[sig.Name]
		if unit == "" {
			unit = headerUnit
		}
		if unit == "" {
			unit = sig.Unit
		}
		indexed := sig.Kind.domain() != domainNone
		if indexed && unit == "" {
			return nil, fmt.Errorf("%w: signal %q", ErrMissingUnit, sig.Name)
		}

		for _, row := range frame.Rows {
			if ci >= len(row.Cells) || row.Cells[ci].IsNull() {
				continue
			}
			value := row.Cells[ci]
			if err := checkValueKind(sig, value, row.Entity); err != nil {
				return nil, err
			}
			rec := Record{Entity: row.Entity, Signal: sig.Name, Unit: unit, Value: value}
			if indexed {
				if row.Index.domain != sig.Kind.domain() {
					return nil, fmt.Errorf("%w: entity %q, signal %q, index %q",
						ErrInvalidIndexValue, row.Entity, sig.Name, row.Index)
				}
				rec.Index = row.Index
			} else {
				// One value per entity for static kinds; later rows
				// overwrite earlier ones, matching write order.
				if at, ok := staticAt[rec.Key()]; ok {
					records[at] = rec
					continue
				}
				staticAt[rec.Key()] = len(records)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func checkValueKind(sig Signal, v Value, entity string) error {
	if _, isText := v.Text(); isText != sig.Kind.isText() {
		want := "numeric"
		if sig.Kind.isText() {
			want = "string"
		}
		return fmt.Errorf("strata: signal %q expects %s values (entity %q)", sig.Name, want, entity)
	}
	return nil
}

// decodeRecords pivots records back into a wide frame over the window:
// one row per (entity, distinct index) with outer-join semantics — an entity
// lacking a value at an index yields a null cell, not a dropped row. Static
// values replicate across every row of their entity. Column headers carry the
// unit annotation of the data actually returned.
func decodeRecords(signals []Signal, records []Record, window Window) Frame {
	colIndex := make(map[string]int, len(signals))
	colUnits := make([]string, len(signals))
	for i, s := range signals {
		colIndex[s.Name] = i
		colUnits[i] = s.Unit
	}

	type cellKey struct {
		entity string
		index  string
		col    int
	}
	cells := make(map[cellKey]Value)
	statics := make(map[string]map[int]Value) // entity -> column -> value
	entitySet := make(map[string]bool)
	indexSet := make(map[string]Index)

	for _, r := range records {
		col, ok := colIndex[r.Signal]
		if !ok {
			continue
		}
		// " " is the platform's placeholder for unitless data.
		if u := strings.TrimSpace(r.Unit); u != "" {
			colUnits[col] = u
		}
		entitySet[r.Entity] = true
		if r.Index.IsZero() {
			if statics[r.Entity] == nil {
				statics[r.Entity] = make(map[int]Value)
			}
			statics[r.Entity][col] = r.Value
			continue
		}
		if !window.Contains(r.Index) {
			continue
		}
		key := r.Index.canonical()
		indexSet[key] = r.Index
		cells[cellKey{r.Entity, key, col}] = r.Value
	}

	entities := make([]string, 0, len(entitySet))
	for e := range entitySet {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	indexes := make([]Index, 0, len(indexSet))
	for _, ix := range indexSet {
		indexes = append(indexes, ix)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Before(indexes[j]) })

	frame := Frame{Columns: make([]string, len(signals))}
	for i, s := range signals {
		frame.Columns[i] = annotateColumn(s.Name, colUnits[i])
	}

	addRow := func(entity string, ix Index) {
		row := FrameRow{Entity: entity, Index: ix, Cells: make([]Value, len(signals))}
		for col := range signals {
			if v, ok := cells[cellKey{entity, ix.canonical(), col}]; ok {
				row.Cells[col] = v
			} else if v, ok := statics[entity][col]; ok {
				row.Cells[col] = v
			}
		}
		frame.Rows = append(frame.Rows, row)
	}

	if len(indexes) == 0 {
		// Purely static result: one row per entity.
		for _, e := range entities {
			if len(statics[e]) > 0 {
				addRow(e, Index{})
			}
		}
		return frame
	}
	for _, e := range entities {
		for _, ix := range indexes {
			addRow(e, ix)
		}
	}
	return frame
}

// --- wire shapes ---

// wirePoint is one indexed value on the wire. Numeric gaps travel as the
// string "NaN", matching the platform's JSON convention.
type wirePoint struct {
	Date  string   `json:"Date,omitempty"`
	Depth *float64 `json:"Depth,omitempty"`
	Value any      `json:"Value"`
}

type wireRecord struct {
	Entity string `json:"Entity"`
	Signal string `json:"Signal"`
	Unit   string `json:"Unit"`
	Data   any    `json:"Data"`
}

type wireRecordRaw struct {
	Entity string          `json:"Entity"`
	Signal string          `json:"Signal"`
	Unit   string          `json:"Unit"`
	Data   json.RawMessage `json:"Data"`
}

func wireValue(v Value, text bool) any {
	if v.IsNull() {
		if text {
			return ""
		}
		return "NaN"
	}
	if text {
		s, _ := v.Text()
		return s
	}
	n, _ := v.Number()
	return n
}

func parseWireValue(raw any, text bool) Value {
	switch val := raw.(type) {
	case float64:
		if text {
			return Null
		}
		return Number(val)
	case string:
		if text {
			return Text(val)
		}
		// Numeric routes transmit gaps as "NaN".
		return Null
	}
	return Null
}

// groupRecords folds flat records into per-(entity, signal, unit) wire
// records, preserving first-seen group order and the input order of points
// within each group (last one wins on the same key server-side).
func groupRecords(kind SignalKind, records []Record) []wireRecord {
	text := kind.isText()
	if kind.domain() == domainNone {
		out := make([]wireRecord, 0, len(records))
		for _, r := range records {
			out = append(out, wireRecord{
				Entity: r.Entity, Signal: r.Signal, Unit: r.Unit,
				Data: wireValue(r.Value, text),
			})
		}
		return out
	}

	type groupKey struct{ entity, signal, unit string }
	order := make([]groupKey, 0)
	groups := make(map[groupKey][]wirePoint)
	for _, r := range records {
		k := groupKey{r.Entity, r.Signal, r.Unit}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		p := wirePoint{Value: wireValue(r.Value, text)}
		if t, ok := r.Index.Time(); ok {
			p.Date = formatTime(t)
		} else if d, ok := r.Index.Depth(); ok {
			depth := d
			p.Depth = &depth
		}
		groups[k] = append(groups[k], p)
	}

	out := make([]wireRecord, 0, len(order))
	for _, k := range order {
		out = append(out, wireRecord{Entity: k.entity, Signal: k.signal, Unit: k.unit, Data: groups[k]})
	}
	return out
}

// parseWireRecords flattens wire records of one kind back into records.
func parseWireRecords(kind SignalKind, raw []wireRecordRaw) ([]Record, error) {
	text := kind.isText()
	var out []Record
	for _, wr := range raw {
		if kind.domain() == domainNone {
			var scalar any
			if err := json.Unmarshal(wr.Data, &scalar); err != nil {
				return nil, fmt.Errorf("strata: decode %s data for entity %q, signal %q: %w",
					kind, wr.Entity, wr.Signal, err)
			}
			out = append(out, Record{
				Entity: wr.Entity, Signal: wr.Signal, Unit: wr.Unit,
				Value: parseWireValue(scalar, text),
			})
			continue
		}
		var points []wirePoint
		if err := json.Unmarshal(wr.Data, &points); err != nil {
			return nil, fmt.Errorf("strata: decode %s data for entity %q, signal %q: %w",
				kind, wr.Entity, wr.Signal, err)
		}
		for _, p := range points {
			rec := Record{
				Entity: wr.Entity, Signal: wr.Signal, Unit: wr.Unit,
				Value: parseWireValue(p.Value, text),
			}
			switch kind.domain() {
			case domainTime:
				t, err := parseWireTime(p.Date)
				if err != nil {
					return nil, fmt.Errorf("%w: entity %q, signal %q, date %q",
						ErrInvalidIndexValue, wr.Entity, wr.Signal, p.Date)
				}
				rec.Index = TimeIndex(t)
			case domainDepth:
				if p.Depth == nil {
					return nil, fmt.Errorf("%w: entity %q, signal %q: point has no depth",
						ErrInvalidIndexValue, wr.Entity, wr.Signal)
				}
				rec.Index = DepthIndex(*p.Depth)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}
