package materialize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/geo"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
)

// --- Mocks ---

type mockScroller struct {
	scrollFn func(ctx context.Context, scrollID string, keepAlive time.Duration) (*db.Response, error)
	calls    int
}

func (m *mockScroller) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*db.Response, error) {
	m.calls++
	return m.scrollFn(ctx, scrollID, keepAlive)
}

type mockClearingScroller struct {
	mockScroller
	cleared []string
	clearFn func(ctx context.Context, ids ...string) error
}

func (m *mockClearingScroller) ClearScroll(ctx context.Context, ids ...string) error {
	m.cleared = append(m.cleared, ids...)
	if m.clearFn != nil {
		return m.clearFn(ctx, ids...)
	}
	return nil
}

// --- Helpers ---

func hits(from, n int) []db.Hit {
	out := make([]db.Hit, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, db.Hit{
			ID:     fmt.Sprintf("doc-%d", i),
			Source: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}
	return out
}

func batches(total int64, sizes ...int) (*db.Response, *mockScroller) {
	var all []*db.Response
	pos := 0
	for _, n := range sizes {
		all = append(all, &db.Response{ScrollID: "scroll-1", TotalHits: total, Hits: hits(pos, n)})
		pos += n
	}
	next := 1
	s := &mockScroller{scrollFn: func(_ context.Context, _ string, _ time.Duration) (*db.Response, error) {
		if next >= len(all) {
			return &db.Response{ScrollID: "scroll-1", TotalHits: total}, nil
		}
		r := all[next]
		next++
		return r, nil
	}}
	return all[0], s
}

type doc struct {
	N           int     `json:"n"`
	Name        string  `json:"name"`
	GeoDistance float64 `json:"geoDistance"`
}

// --- Tests ---

func TestMaterialize_WindowAcrossBatches(t *testing.T) {
	first, s := batches(12, 10, 2)
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 10, Offset: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0] != `{"n":10}` || got[1] != `{"n":11}` {
		t.Errorf("unexpected results: %v", got)
	}
	if s.calls != 1 {
		t.Errorf("expected exactly 1 scroll, got %d", s.calls)
	}
}

func TestMaterialize_WindowInFirstBatch(t *testing.T) {
	first, s := batches(30, 10, 10, 10)
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 2, Offset: 3}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != `{"n":2}` || got[2] != `{"n":4}` {
		t.Errorf("unexpected results: %v", got)
	}
	if s.calls != 0 {
		t.Errorf("expected no scroll, got %d", s.calls)
	}
}

func TestMaterialize_WindowSpansThreeBatches(t *testing.T) {
	first, s := batches(30, 10, 10, 10)
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, Typed[doc](), Window{From: 8, Offset: 15}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 15 {
		t.Fatalf("expected 15 results, got %d", len(got))
	}
	for i, d := range got {
		if d.N != 8+i {
			t.Errorf("result %d: expected n=%d, got %d", i, 8+i, d.N)
		}
	}
	if s.calls != 2 {
		t.Errorf("expected 2 scrolls, got %d", s.calls)
	}
}

func TestMaterialize_ZeroHits(t *testing.T) {
	s := &mockScroller{scrollFn: func(context.Context, string, time.Duration) (*db.Response, error) {
		t.Fatal("scroll must not be called")
		return nil, nil
	}}
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, &db.Response{ScrollID: "s"}, RawText(), Window{From: 0, Offset: 10}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %v", got)
	}
}

func TestMaterialize_FromPastTotal(t *testing.T) {
	first, s := batches(5, 5)
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 20, Offset: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
	if s.calls != 0 {
		t.Errorf("expected no scroll once the stream is consumed, got %d", s.calls)
	}
}

func TestMaterialize_EmptyBatchStops(t *testing.T) {
	// Engine reports more hits than it returns.
	first := &db.Response{ScrollID: "s", TotalHits: 100, Hits: hits(0, 3)}
	s := &mockScroller{scrollFn: func(context.Context, string, time.Duration) (*db.Response, error) {
		return &db.Response{ScrollID: "s", TotalHits: 100}, nil
	}}
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 50}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 results, got %d", len(got))
	}
	if s.calls != 1 {
		t.Errorf("expected 1 scroll, got %d", s.calls)
	}
}

func TestMaterialize_NoScrollID(t *testing.T) {
	first := &db.Response{TotalHits: 20, Hits: hits(0, 10)}
	s := &mockScroller{scrollFn: func(context.Context, string, time.Duration) (*db.Response, error) {
		t.Fatal("scroll must not be called without a scroll id")
		return nil, nil
	}}
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 5, Offset: 10}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 results, got %d", len(got))
	}
}

func TestMaterialize_KeepAlivePassed(t *testing.T) {
	first := &db.Response{ScrollID: "abc", TotalHits: 4, Hits: hits(0, 2)}
	var gotID string
	var gotKA time.Duration
	s := &mockScroller{scrollFn: func(_ context.Context, id string, ka time.Duration) (*db.Response, error) {
		gotID, gotKA = id, ka
		return &db.Response{ScrollID: "abc", TotalHits: 4, Hits: hits(2, 2)}, nil
	}}
	m := New(s, nil, 30*time.Second, nil)

	if _, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 4}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "abc" {
		t.Errorf("expected scroll id abc, got %q", gotID)
	}
	if gotKA != 30*time.Second {
		t.Errorf("expected keep-alive 30s, got %v", gotKA)
	}
}

func TestMaterialize_InvalidWindow(t *testing.T) {
	m := New(&mockScroller{}, nil, 0, nil)
	_, err := Materialize(context.Background(), m, &db.Response{TotalHits: 1}, RawText(), Window{From: -1, Offset: 1}, nil)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestMaterialize_ScrollError(t *testing.T) {
	first := &db.Response{ScrollID: "s-9", TotalHits: 20, Hits: hits(0, 10)}
	s := &mockScroller{scrollFn: func(context.Context, string, time.Duration) (*db.Response, error) {
		return nil, db.ErrScrollExpired
	}}
	m := New(s, nil, 0, nil)

	_, err := Materialize(context.Background(), m, first, RawText(), Window{From: 10, Offset: 5}, nil)
	if !errors.Is(err, domain.ErrSearchExecution) {
		t.Fatalf("expected ErrSearchExecution, got %v", err)
	}
	if !errors.Is(err, db.ErrScrollExpired) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
	var se *domain.SearchExecutionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SearchExecutionError, got %T", err)
	}
	if se.ScrollID != "s-9" || se.Op != OpScroll {
		t.Errorf("unexpected error fields: %+v", se)
	}
}

func TestMaterialize_DecodeError(t *testing.T) {
	first := &db.Response{TotalHits: 1, Hits: []db.Hit{{ID: "x", Source: json.RawMessage(`{"n":"not a number"}`)}}}
	m := New(&mockScroller{}, nil, 0, nil)

	_, err := Materialize(context.Background(), m, first, Typed[doc](), Window{From: 0, Offset: 1}, nil)
	if !errors.Is(err, domain.ErrSearchExecution) {
		t.Fatalf("expected ErrSearchExecution, got %v", err)
	}
	var se *domain.SearchExecutionError
	if errors.As(err, &se) && se.Op != OpDecode {
		t.Errorf("expected op %q, got %q", OpDecode, se.Op)
	}
}

func TestMaterialize_GeoDistance(t *testing.T) {
	key, err := sorting.ByDistance("location", geo.Point{Lat: 52.37, Lon: 4.89}, geo.Kilometers, sorting.Asc)
	if err != nil {
		t.Fatalf("sort key: %v", err)
	}
	name, _ := sorting.ByField("name", sorting.Asc)
	sorts := sorting.Descriptor{name, key}

	first := &db.Response{TotalHits: 2, Hits: []db.Hit{
		{ID: "a", Source: json.RawMessage(`{"name":"a"}`), Sort: []any{"a", json.Number("12.345678")}},
		{ID: "b", Source: json.RawMessage(`{"name":"b"}`), Sort: []any{"b", json.Number("1.000005")}},
	}}
	m := New(&mockScroller{}, nil, 0, nil)

	raw, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 2}, sorts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw[0] != `{"geoDistance":12.34568,"name":"a"}` {
		t.Errorf("unexpected first source: %s", raw[0])
	}
	if raw[1] != `{"geoDistance":1.00000,"name":"b"}` {
		t.Errorf("unexpected second source: %s", raw[1])
	}

	typed, err := Materialize(context.Background(), m, first, Typed[doc](), Window{From: 0, Offset: 2}, sorts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typed[0].GeoDistance != 12.34568 || typed[0].Name != "a" {
		t.Errorf("unexpected typed result: %+v", typed[0])
	}
	if typed[1].GeoDistance != 1.0 {
		t.Errorf("expected 1.0, got %v", typed[1].GeoDistance)
	}
}

func TestMaterialize_GeoDistanceMissingSort(t *testing.T) {
	key, _ := sorting.ByDistance("location", geo.Point{Lat: 1, Lon: 1}, "", sorting.Asc)
	first := &db.Response{TotalHits: 1, Hits: []db.Hit{{ID: "a", Source: json.RawMessage(`{}`)}}}
	m := New(&mockScroller{}, nil, 0, nil)

	_, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 1}, sorting.Descriptor{key})
	if !errors.Is(err, domain.ErrSearchExecution) {
		t.Errorf("expected ErrSearchExecution, got %v", err)
	}
}

func TestMaterialize_TypedMap(t *testing.T) {
	first := &db.Response{TotalHits: 1, Hits: []db.Hit{{ID: "a", Source: json.RawMessage(`{"id":7,"tags":["x"]}`)}}}
	m := New(&mockScroller{}, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, Typed[map[string]any](), Window{From: 0, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0]["id"] != json.Number("7") {
		t.Errorf("expected json.Number 7, got %#v", got[0]["id"])
	}
}

func TestMaterialize_ClearsScroll(t *testing.T) {
	first := &db.Response{ScrollID: "s-1", TotalHits: 4, Hits: hits(0, 2)}
	s := &mockClearingScroller{}
	s.scrollFn = func(context.Context, string, time.Duration) (*db.Response, error) {
		return &db.Response{ScrollID: "s-2", TotalHits: 4, Hits: hits(2, 2)}, nil
	}
	m := New(s, nil, 0, nil)

	if _, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 4}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.cleared) != 1 || s.cleared[0] != "s-2" {
		t.Errorf("expected latest scroll id cleared, got %v", s.cleared)
	}
}

func TestMaterialize_ClearsScrollWithoutHits(t *testing.T) {
	tests := []struct {
		name  string
		first *db.Response
		win   Window
	}{
		{"zero hits", &db.Response{ScrollID: "open-1"}, Window{From: 0, Offset: 10}},
		{"zero offset", &db.Response{ScrollID: "open-2", TotalHits: 3, Hits: hits(0, 3)}, Window{From: 0, Offset: 0}},
		{"from past total", &db.Response{ScrollID: "open-3", TotalHits: 2, Hits: hits(0, 2)}, Window{From: 5, Offset: 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &mockClearingScroller{}
			m := New(s, nil, 0, nil)

			got, err := Materialize(context.Background(), m, tc.first, RawText(), tc.win, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("expected no results, got %v", got)
			}
			if len(s.cleared) != 1 || s.cleared[0] != tc.first.ScrollID {
				t.Errorf("expected %q cleared, got %v", tc.first.ScrollID, s.cleared)
			}
		})
	}
}

func TestMaterialize_NilBatchStops(t *testing.T) {
	first := &db.Response{ScrollID: "s-1", TotalHits: 5, Hits: hits(0, 2)}
	s := &mockClearingScroller{}
	s.scrollFn = func(context.Context, string, time.Duration) (*db.Response, error) {
		return nil, nil
	}
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if len(s.cleared) != 1 || s.cleared[0] != "s-1" {
		t.Errorf("expected s-1 cleared, got %v", s.cleared)
	}
}

func TestMaterialize_ClearErrorIgnored(t *testing.T) {
	first := &db.Response{ScrollID: "s-1", TotalHits: 1, Hits: hits(0, 1)}
	s := &mockClearingScroller{clearFn: func(context.Context, ...string) error {
		return errors.New("boom")
	}}
	m := New(s, nil, 0, nil)

	got, err := Materialize(context.Background(), m, first, RawText(), Window{From: 0, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("clear failure must not fail the call: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}

func TestSources(t *testing.T) {
	out, err := Sources(&db.Response{TotalHits: 2, Hits: []db.Hit{
		{Source: json.RawMessage(`{"a":1}`)},
		{},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `[{"a":1},null]` {
		t.Errorf("unexpected sources: %s", out)
	}
}

func TestSources_NoHits(t *testing.T) {
	out, err := Sources(&db.Response{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty string, got %q", out)
	}
}

func TestNew_Defaults(t *testing.T) {
	m := New(&mockScroller{}, nil, 0, nil)
	if m.KeepAlive() != DefaultKeepAlive {
		t.Errorf("expected default keep-alive, got %v", m.KeepAlive())
	}
}
