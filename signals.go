package strata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Signal fetches a signal descriptor by name. Descriptors are re-fetched for
// every synchronization call rather than cached, so a sync never works from a
// stale kind or storage unit.
func (c *Client) Signal(ctx context.Context, name string) (*Signal, error) {
	var sig Signal
	if err := c.get(ctx, c.route("Signals", escape(name)), &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// SignalNames lists the names of all signals in the workspace.
func (c *Client) SignalNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.get(ctx, c.route("Signals"), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Signals lists all signal descriptors in the workspace.
func (c *Client) Signals(ctx context.Context) ([]Signal, error) {
	var sigs []Signal
	if err := c.get(ctx, c.route("Signals", "All"), &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// wireRange is the platform's extent response: timestamps for time kinds,
// numbers for depth kinds, null when the signal holds no data.
type wireRange struct {
	Start json.RawMessage `json:"Start"`
	End   json.RawMessage `json:"End"`
}

// DataRange probes the stored extent of a signal's data.
func (c *Client) DataRange(ctx context.Context, kind SignalKind, signal string) (DataRange, error) {
	var parsed wireRange
	if err := c.get(ctx, c.route(kind.dataRoute(), "Range", escape(signal)), &parsed); err != nil {
		return DataRange{}, err
	}
	return parseWireRange(kind, signal, parsed)
}

func parseWireRange(kind SignalKind, signal string, parsed wireRange) (DataRange, error) {
	bound := func(raw json.RawMessage) (Index, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return Index{}, nil
		}
		switch kind.domain() {
		case domainTime:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return Index{}, fmt.Errorf("%w: signal %q range bound %s", ErrInvalidIndexValue, signal, raw)
			}
			t, err := parseWireTime(s)
			if err != nil {
				return Index{}, fmt.Errorf("%w: signal %q range bound %q", ErrInvalidIndexValue, signal, s)
			}
			return TimeIndex(t), nil
		case domainDepth:
			var d float64
			if err := json.Unmarshal(raw, &d); err != nil {
				return Index{}, fmt.Errorf("%w: signal %q range bound %s", ErrInvalidIndexValue, signal, raw)
			}
			return DepthIndex(d), nil
		}
		return Index{}, nil
	}

	start, err := bound(parsed.Start)
	if err != nil {
		return DataRange{}, err
	}
	end, err := bound(parsed.End)
	if err != nil {
		return DataRange{}, err
	}
	if start.IsZero() && end.IsZero() {
		return DataRange{Empty: true}, nil
	}
	return DataRange{Start: start, End: end}, nil
}

// ---------------------------------------------------------------------------
// Retrieve / Save / Delete wire shapes
// ---------------------------------------------------------------------------

type signalUnit struct {
	Signal string `json:"Signal"`
	Unit   string `json:"Unit"`
}

type combinations struct {
	Entities []string     `json:"Entities"`
	Signals  []signalUnit `json:"Signals"`
}

type retrieveRequest struct {
	Combinations   combinations `json:"Combinations"`
	Start          string       `json:"Start,omitempty"`
	End            string       `json:"End,omitempty"`
	TimeIncrement  string       `json:"TimeIncrement,omitempty"`
	StartDepth     *float64     `json:"StartDepth,omitempty"`
	EndDepth       *float64     `json:"EndDepth,omitempty"`
	DepthIncrement string       `json:"DepthIncrement,omitempty"`
}

func newRetrieveRequest(kind SignalKind, entities []string, pairs []signalUnit, window Window) retrieveRequest {
	req := retrieveRequest{Combinations: combinations{Entities: entities, Signals: pairs}}
	switch kind.domain() {
	case domainTime:
		if t, ok := window.Start.Time(); ok {
			req.Start = formatTime(t)
		}
		if t, ok := window.End.Time(); ok {
			req.End = formatTime(t)
		}
		req.TimeIncrement = window.Increment
	case domainDepth:
		if d, ok := window.Start.Depth(); ok {
			start := d
			req.StartDepth = &start
		}
		if d, ok := window.End.Depth(); ok {
			end := d
			req.EndDepth = &end
		}
		req.DepthIncrement = window.Increment
	}
	return req
}

// retrieve fetches one kind's records for the given combinations and window.
func (c *Client) retrieve(ctx context.Context, kind SignalKind, entities []string, pairs []signalUnit, window Window) ([]Record, error) {
	if len(entities) == 0 || len(pairs) == 0 {
		return nil, nil
	}
	var raw []wireRecordRaw
	req := newRetrieveRequest(kind, entities, pairs, window)
	if err := c.post(ctx, c.route(kind.dataRoute(), "Retrieve"), req, &raw); err != nil {
		return nil, err
	}
	return parseWireRecords(kind, raw)
}

// save transmits one kind's records.
func (c *Client) save(ctx context.Context, kind SignalKind, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return c.post(ctx, c.route(kind.dataRoute(), "Save"), groupRecords(kind, records), nil)
}

// SignalRef addresses one (entity, signal, unit) data slice.
type SignalRef struct {
	Entity string `json:"Entity"`
	Signal string `json:"Signal"`
	Unit   string `json:"Unit"`
}

// DeleteData removes stored data for the referenced slices. For indexed kinds
// start and end bound the deletion; static kinds ignore them.
func (c *Client) DeleteData(ctx context.Context, kind SignalKind, refs []SignalRef, start, end Index) error {
	path := c.route(kind.dataRoute(), "Delete")
	if kind.domain() != domainNone {
		if err := checkDomain(kind, start); err != nil {
			return err
		}
		if err := checkDomain(kind, end); err != nil {
			return err
		}
		params := url.Values{}
		if !start.IsZero() {
			params.Set("Start", start.canonical())
		}
		if !end.IsZero() {
			params.Set("End", end.canonical())
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
	}
	return c.post(ctx, path, refs, nil)
}

// ---------------------------------------------------------------------------
// Frame-level synchronization
// ---------------------------------------------------------------------------

// LoadRequest describes a wide tabular read.
type LoadRequest struct {
	// Signals are the signal names to load. Kinds may mix static and one
	// indexed family; time- and depth-indexed signals cannot share a frame.
	Signals []string

	// Entities restricts the read to the named entities.
	Entities []string

	// Units overrides the retrieval unit per signal name. Unset signals use
	// their storage unit.
	Units map[string]string

	// Start and End bound the window. An absent bound is resolved against
	// the signals' stored extent.
	Start Index
	End   Index

	// Increment is the window step, canonical name or synonym.
	Increment string
}

// LoadFrame reads signal data into a wide frame: one row per (entity, index),
// one annotated column per signal, outer-join semantics across entities.
// An empty resolved window yields a frame with zero rows.
func (c *Client) LoadFrame(ctx context.Context, req LoadRequest) (*Frame, error) {
	signals, err := c.fetchDescriptors(ctx, req.Signals)
	if err != nil {
		return nil, err
	}
	domain, err := frameDomain(signals)
	if err != nil {
		return nil, err
	}
	for name, unit := range req.Units {
		for i := range signals {
			if signals[i].Name == name && unit != "" {
				signals[i].Unit = unit
			}
		}
	}

	window := Window{}
	if domain != domainNone {
		kind := domainKind(domain, false)
		window, err = resolveWindow(ctx, kind, req.Start, req.End, req.Increment, c.extentAcross(signals))
		if err != nil {
			return nil, err
		}
		if window.Empty() {
			frame := decodeRecords(signals, nil, Window{})
			return &frame, nil
		}
	}

	var records []Record
	for _, kind := range kindsPresent(signals) {
		pairs := pairsFor(signals, kind)
		kindWindow := window
		if kind.domain() == domainNone {
			kindWindow = Window{}
		}
		recs, err := c.retrieve(ctx, kind, req.Entities, pairs, kindWindow)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	frame := decodeRecords(signals, records, window)
	return &frame, nil
}

// SaveRequest describes a wide tabular write.
type SaveRequest struct {
	// Frame holds the rows to write. Columns resolve to signals by name.
	Frame Frame

	// Units overrides the write unit per signal name.
	Units map[string]string

	// SkipExisting preserves values already stored at a colliding
	// (entity, signal, unit, index) key instead of overwriting them.
	SkipExisting bool

	// Increment bounds the existence probe of a skip-existing write.
	Increment string
}

// SaveResult reports what a SaveFrame call transmitted.
type SaveResult struct {
	Written int
	Skipped int
}

// SaveFrame encodes the frame and writes it. With SkipExisting set, stored
// data over the incoming records' index span is probed first and colliding
// keys are preserved; keys outside the probed span are treated as new and
// always written. Within one call, records sharing a key apply in input
// order; concurrent writers to the same key race at the remote store and
// must be serialized externally if exactly-once semantics are required.
func (c *Client) SaveFrame(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	names := make([]string, 0, len(req.Frame.Columns))
	for _, header := range req.Frame.Columns {
		name, _ := splitColumnHeader(header)
		names = append(names, name)
	}
	signals, err := c.fetchDescriptors(ctx, names)
	if err != nil {
		return nil, err
	}
	if _, err := frameDomain(signals); err != nil {
		return nil, err
	}

	records, err := encodeFrame(signals, req.Frame, req.Units)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{}
	for _, kind := range kindsPresent(signals) {
		var kindRecords []Record
		kindSignals := make(map[string]bool)
		for _, s := range signals {
			if s.Kind == kind {
				kindSignals[s.Name] = true
			}
		}
		for _, r := range records {
			if kindSignals[r.Signal] {
				kindRecords = append(kindRecords, r)
			}
		}
		if len(kindRecords) == 0 {
			continue
		}

		existing := map[RecordKey]struct{}{}
		if req.SkipExisting {
			existing, err = c.probeExisting(ctx, kind, kindRecords, req.Increment)
			if err != nil {
				return nil, err
			}
		}
		plan := planWrite(existing, kindRecords, req.SkipExisting)
		if err := c.save(ctx, kind, plan.ToWrite); err != nil {
			return nil, err
		}
		result.Written += len(plan.ToWrite)
		result.Skipped += len(plan.ToSkip)
	}
	return result, nil
}

// probeExisting fetches the keys currently stored across the incoming
// records' index span. The probe is bounded by the span rather than scanning
// unbounded history; that narrowing is a performance measure, not a
// correctness relaxation, since unprobed keys are simply written.
func (c *Client) probeExisting(ctx context.Context, kind SignalKind, records []Record, step string) (map[RecordKey]struct{}, error) {
	increment, err := normalizeIncrement(kind, step)
	if err != nil {
		return nil, err
	}

	entitySet := make(map[string]bool)
	pairSet := make(map[signalUnit]bool)
	var entities []string
	var pairs []signalUnit
	for _, r := range records {
		if !entitySet[r.Entity] {
			entitySet[r.Entity] = true
			entities = append(entities, r.Entity)
		}
		p := signalUnit{Signal: r.Signal, Unit: r.Unit}
		if !pairSet[p] {
			pairSet[p] = true
			pairs = append(pairs, p)
		}
	}

	span := Window{}
	if kind.domain() != domainNone {
		span = windowSpanning(records, increment)
		if span.Empty() {
			return map[RecordKey]struct{}{}, nil
		}
	}
	stored, err := c.retrieve(ctx, kind, entities, pairs, span)
	if err != nil {
		return nil, err
	}
	return keySet(stored), nil
}

// ---------------------------------------------------------------------------
// descriptor plumbing
// ---------------------------------------------------------------------------

func (c *Client) fetchDescriptors(ctx context.Context, names []string) ([]Signal, error) {
	signals := make([]Signal, 0, len(names))
	for _, name := range names {
		sig, err := c.Signal(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("strata: fetch signal %q: %w", name, err)
		}
		signals = append(signals, *sig)
	}
	return signals, nil
}

// frameDomain determines the single indexed family a set of signals shares.
// Static kinds combine with either family; time and depth cannot mix.
func frameDomain(signals []Signal) (indexDomain, error) {
	domain := domainNone
	for _, s := range signals {
		d := s.Kind.domain()
		if d == domainNone {
			continue
		}
		if domain != domainNone && d != domain {
			return domainNone, fmt.Errorf("%w: cannot mix time- and depth-indexed signals in one frame", ErrInvalidRangeSpec)
		}
		domain = d
	}
	return domain, nil
}

func domainKind(domain indexDomain, text bool) SignalKind {
	switch domain {
	case domainTime:
		if text {
			return KindStringTimeDependent
		}
		return KindTimeDependent
	case domainDepth:
		if text {
			return KindStringDepthDependent
		}
		return KindDepthDependent
	}
	if text {
		return KindString
	}
	return KindStatic
}

func kindsPresent(signals []Signal) []SignalKind {
	var kinds []SignalKind
	seen := make(map[SignalKind]bool)
	for _, s := range signals {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

func pairsFor(signals []Signal, kind SignalKind) []signalUnit {
	var pairs []signalUnit
	for _, s := range signals {
		if s.Kind == kind {
			pairs = append(pairs, signalUnit{Signal: s.Name, Unit: s.Unit})
		}
	}
	return pairs
}

// extentAcross probes every indexed signal and combines the extents: the
// earliest start and the latest end across signals that hold any data.
func (c *Client) extentAcross(signals []Signal) extentFunc {
	return func(ctx context.Context) (DataRange, error) {
		combined := DataRange{Empty: true}
		for _, s := range signals {
			if s.Kind.domain() == domainNone {
				continue
			}
			r, err := c.DataRange(ctx, s.Kind, s.Name)
			if err != nil {
				return DataRange{}, err
			}
			if r.Empty {
				continue
			}
			if combined.Empty {
				combined = r
				continue
			}
			if r.Start.Before(combined.Start) {
				combined.Start = r.Start
			}
			if combined.End.Before(r.End) {
				combined.End = r.End
			}
		}
		return combined, nil
	}
}
