// Package elastic implements db.Executor on top of go-elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	elasticsearch7 "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/kailas-cloud/sift/internal/db"
)

// DefaultBatchSize is the number of hits fetched per batch when neither the
// request nor the config set one.
const DefaultBatchSize = 10

// Compile-time checks.
var (
	_ db.Executor      = (*Executor)(nil)
	_ db.ScrollClearer = (*Executor)(nil)
)

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	BatchSize int
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Executor runs scrolled searches via the official client.
type Executor struct {
	client    *elasticsearch7.Client
	batchSize int
}

// New creates an executor for the cluster in cfg.
func New(cfg Config) (*Executor, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("addresses is required")
	}
	client, err := elasticsearch7.NewClient(elasticsearch7.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Executor{client: client, batchSize: size}, nil
}

// Ping checks cluster connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpInfo, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return &db.Error{Op: db.OpInfo, Err: responseError(res)}
	}
	return nil
}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (e *Executor) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for elasticsearch: %w", ctx.Err())
		case <-ticker.C:
			if err := e.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Search runs req against its index.
func (e *Executor) Search(ctx context.Context, req *db.SearchRequest) (*db.Response, error) {
	var buf bytes.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	size := req.Size
	if size <= 0 {
		size = e.batchSize
	}
	opts := []func(*esapi.SearchRequest){
		e.client.Search.WithContext(ctx),
		e.client.Search.WithBody(&buf),
		e.client.Search.WithSize(size),
		e.client.Search.WithTrackTotalHits(true),
	}
	if req.Index != "" {
		opts = append(opts, e.client.Search.WithIndex(req.Index))
	}
	if req.Scroll > 0 {
		opts = append(opts, e.client.Search.WithScroll(req.Scroll))
	}

	res, err := e.client.Search(opts...)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return decode(db.OpSearch, res)
}

// Scroll fetches the next batch of a scrolled search.
func (e *Executor) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*db.Response, error) {
	if scrollID == "" {
		return nil, &db.Error{Op: db.OpScroll, Err: errors.New("scroll id is required")}
	}
	res, err := e.client.Scroll(
		e.client.Scroll.WithContext(ctx),
		e.client.Scroll.WithScrollID(scrollID),
		e.client.Scroll.WithScroll(keepAlive),
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpScroll, Err: err}
	}
	return decode(db.OpScroll, res)
}

// ClearScroll releases scroll contexts. Unknown ids are not an error.
func (e *Executor) ClearScroll(ctx context.Context, scrollIDs ...string) error {
	if len(scrollIDs) == 0 {
		return nil
	}
	res, err := e.client.ClearScroll(
		e.client.ClearScroll.WithContext(ctx),
		e.client.ClearScroll.WithScrollID(scrollIDs...),
	)
	if err != nil {
		return &db.Error{Op: db.OpClearScroll, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return &db.Error{Op: db.OpClearScroll, Err: responseError(res)}
	}
	return nil
}

func decode(op string, res *esapi.Response) (*db.Response, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, &db.Error{Op: op, Err: responseError(res)}
	}
	resp, err := db.DecodeResponse(res.Body)
	if err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}
	return resp, nil
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type errorBody struct {
	Error struct {
		errorCause
		RootCause []errorCause `json:"root_cause"`
	} `json:"error"`
}

// responseError converts an error response into an error, mapping known
// failure types to db sentinels.
func responseError(res *esapi.Response) error {
	var e errorBody
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return fmt.Errorf("[%s] unreadable error body: %w", res.Status(), err)
	}
	causes := append([]errorCause{e.Error.errorCause}, e.Error.RootCause...)
	for _, c := range causes {
		switch c.Type {
		case "index_not_found_exception":
			return fmt.Errorf("%w: %s", db.ErrIndexNotFound, c.Reason)
		case "search_context_missing_exception":
			return fmt.Errorf("%w: %s", db.ErrScrollExpired, c.Reason)
		}
	}
	return fmt.Errorf("[%s] %s: %s", res.Status(), e.Error.Type, e.Error.Reason)
}
