package revocation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically purges a Store. Purges run on their own goroutine and
// only touch the store through PurgeOlderThan.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store Store, interval, retention time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if interval <= 0 || retention <= 0 {
		return nil, errInvalidSchedule
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}, nil
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight purge to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep runs a single purge.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		s.logger.WarnContext(ctx, "revocation purge failed", slog.Any("error", err))
		return n, err
	}
	if n > 0 {
		s.logger.DebugContext(ctx, "revocation purge", slog.Int("removed", n))
	}
	return n, nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Sweep(ctx)
		}
	}
}
