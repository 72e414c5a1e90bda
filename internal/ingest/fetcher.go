package ingest

import (
	"context"
	"io"
	"time"

	"github.com/sony/gobreaker"
)

// ObjectFetcher retrieves the raw bytes of a source spreadsheet from
// object storage. This core depends on the interface but never
// implements it — the object-store event source and file-format
// parsing are explicit external collaborators (spec §1, §6); by the
// time a row reaches RowTransformer it is already a column-name to
// value-string map.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// BreakerFetcher wraps an ObjectFetcher with a circuit breaker so
// repeated object-store outages fail fast instead of exhausting the
// connection pool waiting on a collaborator that's down (SPEC_FULL.md
// §6 Resilience).
type BreakerFetcher struct {
	inner   ObjectFetcher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps inner with a circuit breaker named name,
// tripping after five consecutive failures and probing again after 30
// seconds half-open.
func NewBreakerFetcher(name string, inner ObjectFetcher) *BreakerFetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerFetcher{inner: inner, breaker: cb}
}

// Fetch executes the wrapped fetch through the breaker.
func (f *BreakerFetcher) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.inner.Fetch(ctx, bucket, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(io.ReadCloser), nil
}
