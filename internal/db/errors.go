package db

import "errors"

// Sentinel errors for backend operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrScrollExpired = errors.New("db: scroll context not found")
)

// Op constants name the backend call for error context.
const (
	OpSearch      = "SEARCH"
	OpScroll      = "SCROLL"
	OpClearScroll = "CLEAR_SCROLL"
	OpInfo        = "INFO"
	OpGet         = "GET"
	OpSet         = "SET"
	OpDel         = "DEL"
	OpPing        = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
