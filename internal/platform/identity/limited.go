package identity

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited caps the request rate and the number of in-flight searches
// against the registry.
type Limited struct {
	next    Lookup
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

func NewLimited(next Lookup, rps float64, maxConcurrent int64) *Limited {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

func (l *Limited) Search(ctx context.Context, q Query) (*Record, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for lookup slot: %w", err)
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	return l.next.Search(ctx, q)
}
