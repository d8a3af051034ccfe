package strata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) Index {
	return TimeIndex(time.Date(2022, 8, d, 0, 0, 0, 0, time.UTC))
}

func fixedExtent(r DataRange) extentFunc {
	return func(ctx context.Context) (DataRange, error) { return r, nil }
}

func neverProbed(t *testing.T) extentFunc {
	return func(ctx context.Context) (DataRange, error) {
		t.Fatal("extent probed despite explicit bounds")
		return DataRange{}, nil
	}
}

func TestResolveWindowExplicitBounds(t *testing.T) {
	w, err := resolveWindow(context.Background(), KindTimeDependent, day(1), day(3), "daily", neverProbed(t))
	require.NoError(t, err)
	assert.Equal(t, day(1), w.Start)
	assert.Equal(t, day(3), w.End)
	assert.Equal(t, "Daily", w.Increment)
	assert.False(t, w.Empty())

	// Inclusive bounds.
	assert.True(t, w.Contains(day(1)))
	assert.True(t, w.Contains(day(2)))
	assert.True(t, w.Contains(day(3)))
	assert.False(t, w.Contains(day(4)))
}

func TestResolveWindowStartAfterEnd(t *testing.T) {
	_, err := resolveWindow(context.Background(), KindTimeDependent, day(3), day(1), "Daily", neverProbed(t))
	assert.True(t, errors.Is(err, ErrInvalidRangeSpec))
}

func TestResolveWindowUnknownIncrement(t *testing.T) {
	_, err := resolveWindow(context.Background(), KindTimeDependent, day(1), day(3), "fortnightly", neverProbed(t))
	assert.True(t, errors.Is(err, ErrInvalidRangeSpec))
}

func TestResolveWindowDomainMismatch(t *testing.T) {
	_, err := resolveWindow(context.Background(), KindTimeDependent, DepthIndex(100), day(3), "Daily", neverProbed(t))
	assert.True(t, errors.Is(err, ErrInvalidRangeSpec))

	_, err = resolveWindow(context.Background(), KindDepthDependent, day(1), Index{}, "Meter", neverProbed(t))
	assert.True(t, errors.Is(err, ErrInvalidRangeSpec))
}

func TestResolveWindowStaticRejectsBounds(t *testing.T) {
	_, err := resolveWindow(context.Background(), KindStatic, day(1), Index{}, "", neverProbed(t))
	assert.True(t, errors.Is(err, ErrInvalidRangeSpec))

	w, err := resolveWindow(context.Background(), KindStatic, Index{}, Index{}, "", neverProbed(t))
	require.NoError(t, err)
	assert.True(t, w.Empty())
}

func TestResolveWindowSubstitutesExtent(t *testing.T) {
	extent := fixedExtent(DataRange{Start: day(5), End: day(9)})

	w, err := resolveWindow(context.Background(), KindTimeDependent, Index{}, Index{}, "Daily", extent)
	require.NoError(t, err)
	assert.Equal(t, day(5), w.Start)
	assert.Equal(t, day(9), w.End)

	// One explicit bound, one substituted.
	w, err = resolveWindow(context.Background(), KindTimeDependent, day(7), Index{}, "Daily", extent)
	require.NoError(t, err)
	assert.Equal(t, day(7), w.Start)
	assert.Equal(t, day(9), w.End)
}

func TestResolveWindowEmptyExtent(t *testing.T) {
	w, err := resolveWindow(context.Background(), KindTimeDependent, Index{}, Index{}, "Daily", fixedExtent(DataRange{Empty: true}))
	require.NoError(t, err)
	assert.True(t, w.Empty())
}

func TestResolveWindowBoundOutsideExtent(t *testing.T) {
	// Explicit start after the stored extent's end: nothing to cover.
	extent := fixedExtent(DataRange{Start: day(1), End: day(3)})
	w, err := resolveWindow(context.Background(), KindTimeDependent, day(10), Index{}, "Daily", extent)
	require.NoError(t, err)
	assert.True(t, w.Empty())
}

func TestResolveWindowProbeError(t *testing.T) {
	boom := errors.New("probe failed")
	probe := func(ctx context.Context) (DataRange, error) { return DataRange{}, boom }
	_, err := resolveWindow(context.Background(), KindTimeDependent, Index{}, Index{}, "Daily", probe)
	assert.True(t, errors.Is(err, boom))
}

func TestResolveWindowIncrementSynonym(t *testing.T) {
	w, err := resolveWindow(context.Background(), KindDepthDependent, DepthIndex(100), DepthIndex(200), "0.5m", neverProbed(t))
	require.NoError(t, err)
	assert.Equal(t, "HalfMeter", w.Increment)
}

func TestWindowSpanning(t *testing.T) {
	records := []Record{
		{Entity: "A", Index: day(3)},
		{Entity: "A", Index: day(1)},
		{Entity: "B", Index: day(7)},
	}
	w := windowSpanning(records, "Daily")
	assert.Equal(t, day(1), w.Start)
	assert.Equal(t, day(7), w.End)
	assert.Equal(t, "Daily", w.Increment)

	// Static records have no index and produce an empty span.
	w = windowSpanning([]Record{{Entity: "A"}}, "")
	assert.True(t, w.Empty())
}

func TestEmptyWindowContainsNothing(t *testing.T) {
	var w Window
	assert.True(t, w.Empty())
	assert.False(t, w.Contains(day(1)))
	assert.False(t, w.Contains(Index{}))
}
