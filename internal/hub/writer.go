package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPersistConcurrency = 16
	persistTimeout            = 10 * time.Second
)

// asyncWriter runs storage writes off the hub loop. At most limit writes are
// in flight at once; failures are logged and counted, never returned.
type asyncWriter struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	log     zerolog.Logger
	stats   stats.StatsProvider
	timeout time.Duration

	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newAsyncWriter(limit int, l zerolog.Logger, st stats.StatsProvider) *asyncWriter {
	if limit <= 0 {
		limit = defaultPersistConcurrency
	}
	return &asyncWriter{
		sem:     semaphore.NewWeighted(int64(limit)),
		log:     l,
		stats:   st,
		timeout: persistTimeout,
		tails:   make(map[string]chan struct{}),
	}
}

// Go runs fn in the background with no ordering guarantee.
func (w *asyncWriter) Go(op string, fn func(ctx context.Context) error) {
	w.run(op, nil, nil, fn)
}

// GoOrdered runs fn after every write previously queued under the same key
// has finished, whatever its outcome.
func (w *asyncWriter) GoOrdered(key, op string, fn func(ctx context.Context) error) {
	done := make(chan struct{})

	w.mu.Lock()
	prev := w.tails[key]
	w.tails[key] = done
	w.mu.Unlock()

	w.run(op, prev, func() {
		close(done)
		w.mu.Lock()
		if w.tails[key] == done {
			delete(w.tails, key)
		}
		w.mu.Unlock()
	}, fn)
}

// run waits for after before taking a semaphore slot, so a queued write never
// holds a slot while its predecessor waits for one. finish runs when the
// write is over, including when it never got a slot.
func (w *asyncWriter) run(op string, after <-chan struct{}, finish func(), fn func(ctx context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if finish != nil {
			defer finish()
		}

		if after != nil {
			<-after
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.fail(op, err)
			return
		}
		defer w.sem.Release(1)

		if err := fn(ctx); err != nil {
			w.fail(op, err)
		}
	}()
}

func (w *asyncWriter) fail(op string, err error) {
	w.stats.Incr(stats.NumPersistFailures)
	w.log.Error().
		Err(fmt.Errorf("%w: %w", ErrPersistence, err)).
		Str("op", op).
		Msg("async write failed")
}

// Wait blocks until every queued write has finished or ctx is done.
func (w *asyncWriter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
