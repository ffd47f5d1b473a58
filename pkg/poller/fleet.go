package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Poll is one observed poll of one resource
type Poll struct {
	State     *schedule.State
	PollTime  time.Time
	Published []time.Time
}

// Fleet observes the polls of many resources concurrently
type Fleet struct {
	poller      *Poller
	concurrency int
	limiter     *rate.Limiter
}

// NewFleet creates a fleet. concurrency <= 0 means unlimited and
// pollsPerSecond <= 0 disables rate limiting.
func NewFleet(p *Poller, concurrency int, pollsPerSecond float64) *Fleet {
	f := &Fleet{poller: p, concurrency: concurrency}
	if pollsPerSecond > 0 {
		burst := int(pollsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(pollsPerSecond), burst)
	}
	return f
}

// ObserveAll observes every poll and returns the results in input order. Polls
// of the same resource are serialized but their order is not guaranteed, so a
// batch should carry at most one poll per resource.
func (f *Fleet) ObserveAll(ctx context.Context, polls []Poll) ([]Result, error) {
	results := make([]Result, len(polls))

	g, ctx := errgroup.WithContext(ctx)
	if f.concurrency > 0 {
		g.SetLimit(f.concurrency)
	}

	for i, poll := range polls {
		i, poll := i, poll
		g.Go(func() error {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			res, err := f.poller.Observe(ctx, poll.State, poll.PollTime, poll.Published)
			if err != nil {
				return fmt.Errorf("poll %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.poller.logger.Warn("fleet observation stopped", zap.Error(err))
		return nil, err
	}
	return results, nil
}
