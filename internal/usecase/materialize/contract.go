package materialize

import (
	"context"
	"time"

	"github.com/kailas-cloud/sift/internal/db"
)

// Scroller continues a scrolled search.
type Scroller interface {
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*db.Response, error)
}
