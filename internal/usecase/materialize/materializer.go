// Package materialize streams scrolled hits through a result window and
// decodes them into caller shapes.
package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/geo"
	"github.com/kailas-cloud/sift/internal/domain/search/codec"
	"github.com/kailas-cloud/sift/internal/domain/search/sorting"
	"github.com/kailas-cloud/sift/internal/metrics"
)

// DefaultKeepAlive is how long the engine keeps a scroll context between batches.
const DefaultKeepAlive = 60 * time.Second

// GeoDistanceKey is the source key receiving the computed distance.
// Index mappings must not use it for a real field.
const GeoDistanceKey = "geoDistance"

// Operation names carried by SearchExecutionError.
const (
	OpScroll = "scroll"
	OpDecode = "decode"
)

// Window is the half-open range [From, From+Offset) of the logical hit stream.
type Window struct {
	From   int
	Offset int
}

// End returns the first index past the window.
func (w Window) End() int { return w.From + w.Offset }

// Validate checks that the window is not negative.
func (w Window) Validate() error {
	if w.From < 0 || w.Offset < 0 {
		return fmt.Errorf("%w: window from=%d offset=%d must not be negative",
			domain.ErrInvalidRequest, w.From, w.Offset)
	}
	return nil
}

// Materializer walks scrolled responses. It is safe for concurrent use;
// every call works on its own cursor.
type Materializer struct {
	scroller  Scroller
	codec     *codec.Codec
	keepAlive time.Duration
	logger    *zap.Logger
}

// New creates a materializer. A zero keepAlive uses DefaultKeepAlive.
func New(s Scroller, c *codec.Codec, keepAlive time.Duration, logger *zap.Logger) *Materializer {
	if c == nil {
		c = codec.Default()
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{scroller: s, codec: c, keepAlive: keepAlive, logger: logger}
}

// KeepAlive returns the scroll keep-alive used for continuations.
func (m *Materializer) KeepAlive() time.Duration { return m.keepAlive }

// Materialize decodes the hits of win from the stream that starts at first.
// Batches are fetched through the scroll cursor until the window is filled,
// the stream is exhausted, or a batch comes back empty. When sorts holds a
// geo-distance key, the rounded distance is injected under GeoDistanceKey.
// The scroll context of first is cleared on every return when the scroller
// supports it, including windows that need no hits.
func Materialize[T any](
	ctx context.Context, m *Materializer, first *db.Response,
	shape Shape[T], win Window, sorts sorting.Descriptor,
) ([]T, error) {
	if err := win.Validate(); err != nil {
		return nil, err
	}
	results := make([]T, 0, win.Offset)
	if first == nil {
		return results, nil
	}

	log := m.logger.With(zap.String("search_id", uuid.NewString()))
	scrollID := first.ScrollID
	defer func() { m.clear(ctx, log, scrollID) }()
	if first.TotalHits == 0 || win.Offset == 0 {
		return results, nil
	}

	geoIdx := sorts.GeoIndex()
	end := win.End()

	log.Debug("Materialize started",
		zap.Int64("total_hits", first.TotalHits),
		zap.Int("from", win.From),
		zap.Int("offset", win.Offset),
		zap.Int("geo_sort_index", geoIdx),
	)

	resp := first
	start := -1
	for {
		for i := range resp.Hits {
			start++
			if start >= end {
				break
			}
			if start < win.From {
				continue
			}
			v, err := decodeHit(m, &resp.Hits[i], shape, geoIdx)
			if err != nil {
				return nil, domain.NewSearchExecutionError(OpDecode, scrollID,
					fmt.Errorf("hit %q: %w", resp.Hits[i].ID, err))
			}
			results = append(results, v)
			metrics.MaterializedHitsTotal.Inc()
		}

		if start+1 >= end || int64(start+1) >= first.TotalHits || scrollID == "" {
			break
		}

		next, err := m.scroller.Scroll(ctx, scrollID, m.keepAlive)
		if err != nil {
			metrics.ScrollFetchesTotal.WithLabelValues("error").Inc()
			return nil, domain.NewSearchExecutionError(OpScroll, scrollID, err)
		}
		metrics.ScrollFetchesTotal.WithLabelValues("ok").Inc()
		if next == nil {
			break
		}
		if next.ScrollID != "" {
			scrollID = next.ScrollID
		}
		log.Debug("Scroll batch fetched", zap.Int("hits", len(next.Hits)), zap.Int("position", start+1))
		if len(next.Hits) == 0 {
			break
		}
		resp = next
	}

	log.Debug("Materialize finished", zap.Int("results", len(results)))
	return results, nil
}

func decodeHit[T any](m *Materializer, hit *db.Hit, shape Shape[T], geoIdx int) (T, error) {
	source := hit.Source
	if geoIdx >= 0 {
		injected, err := withGeoDistance(source, hit.Sort, geoIdx)
		if err != nil {
			var zero T
			return zero, err
		}
		source = injected
	}
	return shape.decode(m.codec, source)
}

// withGeoDistance returns source with the distance at sort[idx], rounded
// half-down, set under GeoDistanceKey.
func withGeoDistance(source json.RawMessage, sort []any, idx int) (json.RawMessage, error) {
	if idx >= len(sort) {
		return nil, fmt.Errorf("no sort value at geo sort index %d", idx)
	}
	d, err := geo.ParseDistance(sort[idx])
	if err != nil {
		return nil, err
	}
	rounded, err := geo.RoundHalfDown(d, geo.DistancePlaces)
	if err != nil {
		return nil, err
	}
	doc, err := sourceMap(source)
	if err != nil {
		return nil, err
	}
	doc[GeoDistanceKey] = rounded
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	return out, nil
}

func (m *Materializer) clear(ctx context.Context, log *zap.Logger, scrollID string) {
	if scrollID == "" {
		return
	}
	c, ok := m.scroller.(db.ScrollClearer)
	if !ok {
		return
	}
	if err := c.ClearScroll(context.WithoutCancel(ctx), scrollID); err != nil {
		log.Warn("Failed to clear scroll", zap.Error(err))
	}
}

// Sources renders the sources of a single batch as a JSON array.
// Returns an empty string when the search matched nothing.
func Sources(resp *db.Response) (string, error) {
	if resp == nil || resp.TotalHits == 0 {
		return "", nil
	}
	docs := make([]json.RawMessage, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		src := h.Source
		if len(src) == 0 {
			src = json.RawMessage("null")
		}
		docs = append(docs, src)
	}
	out, err := json.Marshal(docs)
	if err != nil {
		return "", domain.NewSearchExecutionError(OpDecode, resp.ScrollID, err)
	}
	return string(out), nil
}
