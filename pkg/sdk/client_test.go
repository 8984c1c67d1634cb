package sift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const infoBody = `{"version":{"number":"7.14.0","build_flavor":"default"},"tagline":"You Know, for Search"}`

// fakeCluster answers the product check and the info call itself and hands
// every search to handler. Other requests (scroll clears) get an empty object.
type fakeCluster struct {
	mu       sync.Mutex
	handler  func(path, body string) (int, string)
	searches []string
}

func (f *fakeCluster) RoundTrip(r *http.Request) (*http.Response, error) {
	status, body := http.StatusOK, "{}"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		body = infoBody
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var data []byte
		if r.Body != nil {
			data, _ = io.ReadAll(r.Body)
		}
		f.mu.Lock()
		f.searches = append(f.searches, string(data))
		f.mu.Unlock()
		status, body = f.handler(r.URL.Path, string(data))
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}, nil
}

type downCluster struct{}

func (downCluster) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

const carsBody = `{
	"_scroll_id": "s-1",
	"hits": {
		"total": {"value": 2, "relation": "eq"},
		"hits": [
			{"_id": "1", "_source": {"name": "golf", "year": "2019"}, "sort": [12.345675]},
			{"_id": "2", "_source": {"name": "polo", "year": 2021}, "sort": [30]}
		]
	},
	"aggregations": {
		"brand_aggs": {"buckets": [{"key": "vw", "doc_count": 2}]}
	}
}`

type car struct {
	Name        string  `json:"name"`
	Year        int     `json:"year"`
	GeoDistance float64 `json:"geoDistance"`
}

func newTestClient(t *testing.T, handler func(path, body string) (int, string), opts ...Option) (*Client, *fakeCluster) {
	t.Helper()
	fc := &fakeCluster{handler: handler}
	opts = append([]Option{
		WithElasticsearch("http://es.test:9200"),
		WithTransport(fc),
	}, opts...)
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, fc
}

func carsHandler(path, _ string) (int, string) {
	if path != "/cars/_search" {
		return http.StatusNotFound, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`
	}
	return http.StatusOK, carsBody
}

func TestNew_NoAddress(t *testing.T) {
	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected error without addresses")
	}
}

func TestNew_ClusterDown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	_, err := New(ctx, WithElasticsearch("http://es.test:9200"), WithTransport(downCluster{}))
	if err == nil || !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("expected readiness error, got %v", err)
	}
}

func TestNew_InvalidDateFormat(t *testing.T) {
	fc := &fakeCluster{handler: carsHandler}
	_, err := New(context.Background(),
		WithElasticsearch("http://es.test:9200"),
		WithTransport(fc),
		WithDateFormat("yyyy-MM-dd'T"),
	)
	if err == nil {
		t.Fatal("expected date format error")
	}
}

func TestFind_Typed(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	near, err := SortByDistance("location", 52.52, 13.40, Kilometers)
	if err != nil {
		t.Fatalf("SortByDistance: %v", err)
	}

	res, err := Find[car](context.Background(), c, "cars", Query{
		Criteria:     []Criteria{Term("color", "red")},
		Sort:         []SortKey{near},
		Aggregations: []Aggregation{Aggregate("brand")},
	}, 0, 10)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if res.Total != 2 || len(res.Hits) != 2 {
		t.Fatalf("unexpected results: %+v", res)
	}
	want := car{Name: "golf", Year: 2019, GeoDistance: 12.34567}
	if res.Hits[0] != want {
		t.Errorf("hit 0 = %+v, want %+v", res.Hits[0], want)
	}
	if res.Hits[1].GeoDistance != 30 {
		t.Errorf("hit 1 distance = %v", res.Hits[1].GeoDistance)
	}
	if len(res.Aggregations) != 1 || res.Aggregations[0].Key != "vw" || res.Aggregations[0].DocCount != 2 {
		t.Errorf("unexpected aggregations: %+v", res.Aggregations)
	}
}

func TestFind_Window(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	res, err := Find[map[string]any](context.Background(), c, "cars", Query{}, 1, 5)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0]["name"] != "polo" {
		t.Errorf("unexpected hits: %+v", res.Hits)
	}
}

func TestFind_IndexNotFound(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	_, err := Find[car](context.Background(), c, "boats", Query{}, 0, 10)
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	if !errors.Is(err, ErrSearchExecution) {
		t.Errorf("expected ErrSearchExecution, got %v", err)
	}
}

func TestFind_InvalidWindow(t *testing.T) {
	c, fc := newTestClient(t, carsHandler)
	_, err := Find[car](context.Background(), c, "cars", Query{}, -1, 10)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(fc.searches) != 0 {
		t.Errorf("expected no search, got %d", len(fc.searches))
	}
}

func TestSearch_Raw(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	res, err := c.Search(context.Background(), "cars", Query{
		Criteria: []Criteria{Range("year", 2019, 2021)},
	}, 0, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 2 || len(res.Hits) != 1 {
		t.Fatalf("unexpected results: %+v", res)
	}
	if string(res.Hits[0]) != `{"name": "golf", "year": "2019"}` {
		t.Errorf("unexpected source %s", res.Hits[0])
	}
}

func TestSources(t *testing.T) {
	c, fc := newTestClient(t, carsHandler)
	out, err := c.Sources(context.Background(), "cars", Query{
		Aggregations: []Aggregation{Aggregate("brand")},
	}, 2)
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if out != `[{"name":"golf","year":"2019"},{"name":"polo","year":2021}]` {
		t.Errorf("unexpected sources %s", out)
	}
	if body := fc.searches[0]; strings.Contains(body, "aggs") {
		t.Errorf("sources must not request aggregations: %s", body)
	}
}

func TestLookupID(t *testing.T) {
	res, err := newSearch(t)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if id, ok := LookupID(res.Hits[0], "name"); !ok || id != "golf" {
		t.Errorf("LookupID(name) = %q, %v", id, ok)
	}
	if _, ok := LookupID(res.Hits[0], "meta.id"); ok {
		t.Error("expected missing path")
	}
}

func newSearch(t *testing.T) (Results[json.RawMessage], error) {
	t.Helper()
	c, _ := newTestClient(t, carsHandler)
	return c.Search(context.Background(), "cars", Query{}, 0, 1)
}

func TestCompile(t *testing.T) {
	c, fc := newTestClient(t, carsHandler)
	desc, err := SortBy("price", Desc)
	if err != nil {
		t.Fatalf("SortBy: %v", err)
	}
	body, err := c.Compile(Query{
		Criteria: []Criteria{
			Group(Should, Match("title", "engine"), Exists("vin")),
		},
		QueryString: "title:turbo",
		Sort:        []SortKey{desc},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, ok := body["query"]; !ok {
		t.Errorf("body lacks query: %v", body)
	}
	if _, ok := body["sort"]; !ok {
		t.Errorf("body lacks sort: %v", body)
	}
	if len(fc.searches) != 0 {
		t.Errorf("compile must not search, got %d calls", len(fc.searches))
	}
}

func TestCompile_RangeWithoutLowerBound(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	_, err := c.Compile(Query{Criteria: []Criteria{Range("year", nil, 2020)}})
	if !errors.Is(err, ErrQueryCompile) {
		t.Fatalf("expected ErrQueryCompile, got %v", err)
	}
}

func TestPingAndHealth(t *testing.T) {
	c, _ := newTestClient(t, carsHandler)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	h := c.Health(context.Background())
	if h.Status != "ok" || h.Checks["elasticsearch"] != "ok" {
		t.Errorf("unexpected health: %+v", h)
	}
	if _, ok := h.Checks["cache"]; ok {
		t.Errorf("cache must not be checked when disabled: %+v", h)
	}
}

func TestObserver_MetricsAndLogging(t *testing.T) {
	reg := prometheus.NewRegistry()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, _ := newTestClient(t, carsHandler, WithPrometheus(reg), WithLogger(logger))

	if _, err := Find[car](context.Background(), c, "cars", Query{}, 0, 1); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if _, err := Find[car](context.Background(), c, "boats", Query{}, 0, 1); err == nil {
		t.Fatal("expected error")
	}

	ops := c.obs.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues("find", "ok")); got != 1 {
		t.Errorf("find ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("find", "error")); got != 1 {
		t.Errorf("find error = %v, want 1", got)
	}

	var sawFailure bool
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line is not JSON: %s", line)
		}
		if entry["msg"] == "operation failed" && entry["op"] == "find" && entry["index"] == "boats" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Errorf("expected failure log, got %s", logs.String())
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c1, _ := newTestClient(t, carsHandler, WithPrometheus(reg))
	c2, _ := newTestClient(t, carsHandler, WithPrometheus(reg))
	if c1.obs.metrics.operations != c2.obs.metrics.operations {
		t.Error("expected second client to reuse registered collectors")
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var o *observer
	o.observe("noop", time.Now(), nil)
}
