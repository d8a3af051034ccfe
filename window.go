package strata

import (
	"context"
	"fmt"
)

// Window is a concrete bounded query/write range: a time range with a
// calendar step, or a depth range with a depth step. The zero Window is the
// empty window ("nothing to do").
type Window struct {
	Start     Index
	End       Index
	Increment string // canonical TimeIncrement or DepthIncrement name
}

// Empty reports whether the window covers no indexes at all.
func (w Window) Empty() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether ix falls inside the window bounds, inclusive.
func (w Window) Contains(ix Index) bool {
	if w.Empty() {
		return false
	}
	return !ix.Before(w.Start) && !w.End.Before(ix)
}

// DataRange is a signal's currently stored extent, as reported by the
// platform's range probe. Empty means the signal has no data at all.
type DataRange struct {
	Start Index
	End   Index
	Empty bool
}

// extentFunc probes the stored extent of the signal being resolved. Injected
// so resolution stays pure and testable without a live store.
type extentFunc func(ctx context.Context) (DataRange, error)

// resolveWindow turns optional explicit bounds plus an increment into a
// concrete window for the given kind. Absent bounds are substituted from the
// probed extent; an entirely absent extent resolves to the empty window, not
// an error. The increment accepts canonical names and synonyms and is
// normalized before use.
func resolveWindow(ctx context.Context, kind SignalKind, start, end Index, step string, probe extentFunc) (Window, error) {
	domain := kind.domain()
	if domain == domainNone {
		if !start.IsZero() || !end.IsZero() {
			return Window{}, fmt.Errorf("%w: %s signals take no index range", ErrInvalidRangeSpec, kind)
		}
		return Window{}, nil
	}

	increment, err := normalizeIncrement(kind, step)
	if err != nil {
		return Window{}, err
	}

	if err := checkDomain(kind, start); err != nil {
		return Window{}, err
	}
	if err := checkDomain(kind, end); err != nil {
		return Window{}, err
	}
	if !start.IsZero() && !end.IsZero() {
		if end.Before(start) {
			return Window{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidRangeSpec, start, end)
		}
		return Window{Start: start, End: end, Increment: increment}, nil
	}

	extent, err := probe(ctx)
	if err != nil {
		return Window{}, err
	}
	if start.IsZero() {
		if extent.Empty {
			return Window{}, nil
		}
		start = extent.Start
	}
	if end.IsZero() {
		if extent.Empty {
			return Window{}, nil
		}
		end = extent.End
	}
	if end.Before(start) {
		// A partial explicit bound can fall outside the stored extent;
		// the window then covers nothing.
		return Window{}, nil
	}
	return Window{Start: start, End: end, Increment: increment}, nil
}

// normalizeIncrement maps a structured or string increment onto the canonical
// enum name for the kind's domain. An empty step is allowed and left to the
// server's default resolution.
func normalizeIncrement(kind SignalKind, step string) (string, error) {
	if step == "" {
		return "", nil
	}
	switch kind.domain() {
	case domainTime:
		inc, err := ParseTimeIncrement(step)
		if err != nil {
			return "", err
		}
		return string(inc), nil
	case domainDepth:
		inc, err := ParseDepthIncrement(step)
		if err != nil {
			return "", err
		}
		return string(inc), nil
	}
	return "", fmt.Errorf("%w: increment %q given for %s signal", ErrInvalidRangeSpec, step, kind)
}

func checkDomain(kind SignalKind, ix Index) error {
	if ix.IsZero() || ix.domain == kind.domain() {
		return nil
	}
	return fmt.Errorf("%w: index %s does not match %s signal", ErrInvalidRangeSpec, ix, kind)
}

// windowSpanning returns the tightest window covering every index in records,
// used to bound the existence probe of a skip-existing write.
func windowSpanning(records []Record, increment string) Window {
	var w Window
	for _, r := range records {
		if r.Index.IsZero() {
			continue
		}
		if w.Empty() {
			w.Start, w.End = r.Index, r.Index
			continue
		}
		if r.Index.Before(w.Start) {
			w.Start = r.Index
		}
		if w.End.Before(r.Index) {
			w.End = r.Index
		}
	}
	w.Increment = increment
	return w
}
