package runtime

import (
	"context"
	"log/slog"
	"time"
)

// tickerScheduler is the default Scheduler: a single ticking goroutine that
// asks the orchestrator which submissions have passed their ttl_ms and
// expires them. TTL enforcement is not wired in the protocol's reference
// core; this is a swappable, supplemental completion of that open seam (see
// SPEC_FULL.md), not a requirement any embedder must use.
type tickerScheduler struct {
	interval time.Duration
	logger   *slog.Logger
	scan     func(ctx context.Context) []string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTickerScheduler builds a Scheduler that polls scan every interval for
// submission IDs past their TTL and calls the orchestrator's expire
// callback for each.
func NewTickerScheduler(interval time.Duration, scan func(ctx context.Context) []string, logger *slog.Logger) Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &tickerScheduler{interval: interval, scan: scan, logger: logger}
}

func (s *tickerScheduler) Start(ctx context.Context, expire func(ctx context.Context, submissionID string) error) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range s.scan(ctx) {
					if err := expire(ctx, id); err != nil {
						s.logger.Warn("runtime: scheduler failed to expire submission", "submission_id", id, "error", err)
					}
				}
			}
		}
	}()
}

func (s *tickerScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
