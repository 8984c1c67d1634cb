package sift

import (
	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrQueryCompile    = domain.ErrQueryCompile
	ErrFormat          = domain.ErrFormat
	ErrSearchExecution = domain.ErrSearchExecution
	ErrInvalidRequest  = domain.ErrInvalidRequest
	ErrIndexNotFound   = db.ErrIndexNotFound
	ErrScrollExpired   = db.ErrScrollExpired
)
