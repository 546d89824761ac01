package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type slowLookup struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowLookup) Search(context.Context, Query) (*Record, error) {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.inFlight.Add(-1)
	return &Record{NHSNumber: "9449306168"}, nil
}

func TestLimited_CapsConcurrency(t *testing.T) {
	inner := &slowLookup{}
	l := NewLimited(inner, 1000, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Search(context.Background(), Query{}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent searches, saw %d", peak)
	}
}

func TestLimited_CancelledContext(t *testing.T) {
	l := NewLimited(&slowLookup{}, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Search(ctx, Query{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
