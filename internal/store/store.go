// Package store is the shared room document every client reads, subscribes to
// and partially writes. Backends only guarantee atomicity within one Update.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("document not found")
var ErrAlreadyExists = errors.New("document already exists")
var ErrPreconditionFailed = errors.New("precondition failed")
var ErrInvalidPath = errors.New("invalid path")

// Snapshot is an immutable view of a document at Version.
type Snapshot struct {
	Version int64
	Data    json.RawMessage
}

func (s Snapshot) Decode(v any) error {
	return json.Unmarshal(s.Data, v)
}

// Update is a batch of leaf writes applied atomically.
//
// Set writes each value at its path; a nil value removes the path.
// SetIfAbsent writes only where nothing is stored yet.
// Expect lists values that must currently be stored at their paths (a missing
// path equals nil); when any differ nothing is written and
// ErrPreconditionFailed is returned.
type Update struct {
	Set         map[string]any
	SetIfAbsent map[string]any
	Expect      map[string]any
}

type Store interface {
	Create(ctx context.Context, id string, doc any) error
	Get(ctx context.Context, id string) (Snapshot, error)
	ApplyPartialUpdate(ctx context.Context, id string, u Update) (Snapshot, error)
	// Subscribe delivers the current snapshot and then one per change. The
	// channel is closed when the document is removed, the subscriber falls too
	// far behind, or unsubscribe is called.
	Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error)
	Remove(ctx context.Context, id string) error
	RemovePath(ctx context.Context, id, path string) error
	Close() error
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, ErrInvalidPath),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// ApplyWithRetry applies u, retrying errors Retryable reports as transient
// with exponential backoff.
func ApplyWithRetry(ctx context.Context, s Store, id string, u Update, attempts int, backoff time.Duration) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	for i := 0; i < attempts; i++ {
		snap, err = s.ApplyPartialUpdate(ctx, id, u)
		if !Retryable(err) {
			return snap, err
		}
		select {
		case <-time.After(backoff << i):
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
	return snap, fmt.Errorf("apply to %s after %d attempts: %w", id, attempts, err)
}
