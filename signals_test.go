package strata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func signalHandler(sig Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sig)
	}
}

func TestDataRangeProbe(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Data/Time/Range/oil": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"Start": "2022-08-01T00:00:00.000",
				"End":   "2022-08-03T00:00:00.000",
			})
		},
		"GET /api/Test/Data/Depth/Range/porosity": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"Start": 1200.0, "End": 1450.5})
		},
		"GET /api/Test/Data/Time/Range/unused": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"Start": nil, "End": nil})
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	r, err := client.DataRange(context.Background(), KindTimeDependent, "oil")
	if err != nil {
		t.Fatalf("DataRange failed: %v", err)
	}
	if r.Empty {
		t.Fatal("expected non-empty range")
	}
	if r.Start != day(1) || r.End != day(3) {
		t.Errorf("unexpected range %v..%v", r.Start, r.End)
	}

	r, err = client.DataRange(context.Background(), KindDepthDependent, "porosity")
	if err != nil {
		t.Fatalf("DataRange failed: %v", err)
	}
	if d, _ := r.End.Depth(); d != 1450.5 {
		t.Errorf("expected end depth 1450.5, got %v", d)
	}

	r, err = client.DataRange(context.Background(), KindTimeDependent, "unused")
	if err != nil {
		t.Fatalf("DataRange failed: %v", err)
	}
	if !r.Empty {
		t.Error("expected empty range for signal with no data")
	}
}

func TestLoadFrameExplicitWindow(t *testing.T) {
	var retrieveReq retrieveRequest
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil":   signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"GET /api/Test/Signals/field": signalHandler(Signal{Name: "field", Kind: KindString}),
		"POST /api/Test/Data/Time/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&retrieveReq); err != nil {
				writeAPIError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, []map[string]any{
				{"Entity": "Well A", "Signal": "oil", "Unit": "bbl", "Data": []map[string]any{
					{"Date": "2022-08-01T00:00:00.000", "Value": 10},
					{"Date": "2022-08-02T00:00:00.000", "Value": 12},
				}},
				{"Entity": "Well B", "Signal": "oil", "Unit": "bbl", "Data": []map[string]any{
					{"Date": "2022-08-02T00:00:00.000", "Value": 7},
				}},
			})
		},
		"POST /api/Test/Data/String/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{
				{"Entity": "Well A", "Signal": "field", "Unit": " ", "Data": "North"},
			})
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	frame, err := client.LoadFrame(context.Background(), LoadRequest{
		Signals:   []string{"oil", "field"},
		Entities:  []string{"Well A", "Well B"},
		Start:     day(1),
		End:       day(3),
		Increment: "daily",
	})
	if err != nil {
		t.Fatalf("LoadFrame failed: %v", err)
	}

	// The synonym normalizes before hitting the wire.
	if retrieveReq.TimeIncrement != "Daily" {
		t.Errorf("expected TimeIncrement 'Daily', got %q", retrieveReq.TimeIncrement)
	}
	if retrieveReq.Start != "2022-08-01T00:00:00.000" {
		t.Errorf("unexpected Start %q", retrieveReq.Start)
	}
	if len(retrieveReq.Combinations.Entities) != 2 {
		t.Errorf("expected 2 entities in request, got %v", retrieveReq.Combinations.Entities)
	}

	// Outer join: 2 entities x 2 distinct indexes.
	if len(frame.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(frame.Rows))
	}
	if frame.Columns[0] != "oil [bbl]" {
		t.Errorf("unexpected first column %q", frame.Columns[0])
	}

	// Well B at day 1 is a gap.
	v, ok := frame.Cell(2, "oil")
	if !ok || !v.IsNull() {
		t.Errorf("expected null gap cell, got %v (found %v)", v, ok)
	}
	// The static field value replicates across Well A's rows.
	v, _ = frame.Cell(1, "field")
	if s, _ := v.Text(); s != "North" {
		t.Errorf("expected 'North', got %q", s)
	}
}

func TestLoadFrameSubstitutesExtent(t *testing.T) {
	var retrieveReq retrieveRequest
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil": signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"GET /api/Test/Data/Time/Range/oil": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"Start": "2022-08-05T00:00:00.000",
				"End":   "2022-08-09T00:00:00.000",
			})
		},
		"POST /api/Test/Data/Time/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&retrieveReq)
			writeJSON(w, http.StatusOK, []map[string]any{})
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	_, err := client.LoadFrame(context.Background(), LoadRequest{
		Signals:   []string{"oil"},
		Entities:  []string{"Well A"},
		Increment: "Daily",
	})
	if err != nil {
		t.Fatalf("LoadFrame failed: %v", err)
	}
	if retrieveReq.Start != "2022-08-05T00:00:00.000" || retrieveReq.End != "2022-08-09T00:00:00.000" {
		t.Errorf("expected probed extent as bounds, got %q..%q", retrieveReq.Start, retrieveReq.End)
	}
}

func TestLoadFrameEmptyExtentMakesNoDataCalls(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil": signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"GET /api/Test/Data/Time/Range/oil": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"Start": nil, "End": nil})
		},
		"POST /api/Test/Data/Time/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			t.Error("retrieve should not be called for an empty window")
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	frame, err := client.LoadFrame(context.Background(), LoadRequest{
		Signals:   []string{"oil"},
		Entities:  []string{"Well A"},
		Increment: "Daily",
	})
	if err != nil {
		t.Fatalf("LoadFrame failed: %v", err)
	}
	if len(frame.Rows) != 0 {
		t.Errorf("expected zero rows, got %d", len(frame.Rows))
	}
	if len(frame.Columns) != 1 {
		t.Errorf("expected column headers preserved, got %v", frame.Columns)
	}
}

func TestLoadFrameRejectsMixedDomains(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil":      signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"GET /api/Test/Signals/porosity": signalHandler(Signal{Name: "porosity", Kind: KindDepthDependent, Unit: "frac"}),
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	_, err := client.LoadFrame(context.Background(), LoadRequest{
		Signals:  []string{"oil", "porosity"},
		Entities: []string{"Well A"},
	})
	if !errors.Is(err, ErrInvalidRangeSpec) {
		t.Errorf("expected ErrInvalidRangeSpec, got %v", err)
	}
}

func TestSaveFrameOverwrite(t *testing.T) {
	var saved []wireRecordRaw
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil": signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"POST /api/Test/Data/Time/Save": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&saved); err != nil {
				writeAPIError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		},
		"POST /api/Test/Data/Time/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			t.Error("overwrite save must not probe existing data")
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	result, err := client.SaveFrame(context.Background(), SaveRequest{
		Frame: Frame{
			Columns: []string{"oil"},
			Rows: []FrameRow{
				{Entity: "Well A", Index: day(1), Cells: []Value{Number(10)}},
				{Entity: "Well A", Index: day(2), Cells: []Value{Number(12)}},
			},
		},
	})
	if err != nil {
		t.Fatalf("SaveFrame failed: %v", err)
	}
	if result.Written != 2 || result.Skipped != 0 {
		t.Errorf("expected 2 written, 0 skipped, got %+v", result)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 wire record, got %d", len(saved))
	}
	if saved[0].Entity != "Well A" || saved[0].Unit != "bbl" {
		t.Errorf("unexpected wire record %+v", saved[0])
	}
}

func TestSaveFrameSkipExisting(t *testing.T) {
	var probeReq retrieveRequest
	var saved []wireRecordRaw
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/oil": signalHandler(Signal{Name: "oil", Kind: KindTimeDependent, Unit: "bbl"}),
		"POST /api/Test/Data/Time/Retrieve": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&probeReq)
			// Day 1 already stored.
			writeJSON(w, http.StatusOK, []map[string]any{
				{"Entity": "Well A", "Signal": "oil", "Unit": "bbl", "Data": []map[string]any{
					{"Date": "2022-08-01T00:00:00.000", "Value": 99},
				}},
			})
		},
		"POST /api/Test/Data/Time/Save": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&saved)
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	result, err := client.SaveFrame(context.Background(), SaveRequest{
		Frame: Frame{
			Columns: []string{"oil"},
			Rows: []FrameRow{
				{Entity: "Well A", Index: day(1), Cells: []Value{Number(10)}},
				{Entity: "Well A", Index: day(2), Cells: []Value{Number(12)}},
			},
		},
		SkipExisting: true,
		Increment:    "Daily",
	})
	if err != nil {
		t.Fatalf("SaveFrame failed: %v", err)
	}
	if result.Written != 1 || result.Skipped != 1 {
		t.Errorf("expected 1 written, 1 skipped, got %+v", result)
	}

	// The probe is bounded by the incoming records' span.
	if probeReq.Start != "2022-08-01T00:00:00.000" || probeReq.End != "2022-08-02T00:00:00.000" {
		t.Errorf("expected probe over incoming span, got %q..%q", probeReq.Start, probeReq.End)
	}

	// Only day 2 is transmitted.
	if len(saved) != 1 {
		t.Fatalf("expected 1 wire record, got %d", len(saved))
	}
	var points []wirePoint
	if err := json.Unmarshal(saved[0].Data, &points); err != nil {
		t.Fatalf("decode saved points: %v", err)
	}
	if len(points) != 1 || points[0].Date != "2022-08-02T00:00:00.000" {
		t.Errorf("expected only day 2 written, got %+v", points)
	}
}

func TestSaveFrameMissingUnitFailsBeforeAnyCall(t *testing.T) {
	var saveCalled bool
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/Test/Signals/pressure": signalHandler(Signal{Name: "pressure", Kind: KindTimeDependent}),
		"POST /api/Test/Data/Time/Save": func(w http.ResponseWriter, r *http.Request) {
			saveCalled = true
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	_, err := client.SaveFrame(context.Background(), SaveRequest{
		Frame: Frame{
			Columns: []string{"pressure"},
			Rows:    []FrameRow{{Entity: "Well A", Index: day(1), Cells: []Value{Number(1)}}},
		},
	})
	if !errors.Is(err, ErrMissingUnit) {
		t.Fatalf("expected ErrMissingUnit, got %v", err)
	}
	if saveCalled {
		t.Error("no data call should be issued after a validation failure")
	}
}

func TestDeleteDataBounds(t *testing.T) {
	var query string
	var refs []SignalRef
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/Test/Data/Time/Delete": func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			_ = json.NewDecoder(r.Body).Decode(&refs)
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	err := client.DeleteData(context.Background(), KindTimeDependent,
		[]SignalRef{{Entity: "Well A", Signal: "oil", Unit: "bbl"}}, day(1), day(3))
	if err != nil {
		t.Fatalf("DeleteData failed: %v", err)
	}
	if query == "" {
		t.Fatal("expected bounds in query string")
	}
	if len(refs) != 1 || refs[0].Signal != "oil" {
		t.Errorf("unexpected refs %+v", refs)
	}

	// Domain mismatch is rejected client-side.
	err = client.DeleteData(context.Background(), KindTimeDependent, nil, DepthIndex(1), Index{})
	if !errors.Is(err, ErrInvalidRangeSpec) {
		t.Errorf("expected ErrInvalidRangeSpec, got %v", err)
	}
}
