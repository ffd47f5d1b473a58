package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaneisley/cadence/pkg/dataset"
	"github.com/shaneisley/cadence/pkg/logging"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPolls stops runaway replays of strategies that keep polling every minute
const DefaultMaxPolls = 1_000_000

// ReplayOptions control a replay
type ReplayOptions struct {
	// Start is the first poll, defaults to the first item of the dataset
	Start time.Time
	// End is the last moment a poll may happen, defaults to the last item
	End time.Time
	// UpdateMode of the replayed state
	UpdateMode schedule.UpdateMode
	// TrainFor is how long polls run in training mode, measured from Start.
	// Only used by strategies with an explicit training mode. Hourly rate
	// strategies are trained on the items published in that period.
	TrainFor time.Duration
	// TrainingInterval is the poll interval in minutes while training,
	// defaults to one day
	TrainingInterval int
	// MaxPolls caps the number of polls, defaults to DefaultMaxPolls
	MaxPolls int
}

// ReplayReport summarizes how a strategy would have polled a resource
type ReplayReport struct {
	RunID      string    `json:"run_id"`
	ResourceID string    `json:"resource_id"`
	Strategy   string    `json:"strategy"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`

	Polls         int `json:"polls"`
	TrainingPolls int `json:"training_polls"`
	EmptyPolls    int `json:"empty_polls"`
	// InitialItems were already published at the first poll
	InitialItems int `json:"initial_items"`
	NewItems     int `json:"new_items"`
	// Misses are items that scrolled out of the window between two polls
	Misses int `json:"misses"`
	// Unseen are items published after the last poll
	Unseen int `json:"unseen"`

	AverageDelay time.Duration `json:"average_delay"`
	MinInterval  int           `json:"min_interval"`
	MaxInterval  int           `json:"max_interval"`
	Truncated    bool          `json:"truncated"`
}

// HitRate is the share of non-training polls that found new items
func (r *ReplayReport) HitRate() float64 {
	if r.Polls == 0 {
		return 0
	}
	return float64(r.Polls-r.EmptyPolls) / float64(r.Polls)
}

// Replay walks the dataset timeline with the poller's strategy. Each poll sees
// the newest WindowSize items published at or before it and the next poll
// happens after the returned interval.
func Replay(ctx context.Context, p *Poller, ds *dataset.Dataset, opts ReplayOptions) (*ReplayReport, error) {
	if ds == nil || len(ds.Items) == 0 {
		return nil, fmt.Errorf("dataset has no items")
	}

	start := opts.Start
	if start.IsZero() {
		start = ds.First()
	}
	end := opts.End
	if end.IsZero() {
		end = ds.Last()
	}
	if end.Before(start) {
		return nil, fmt.Errorf("replay end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	trainingInterval := opts.TrainingInterval
	if trainingInterval <= 0 {
		trainingInterval = 1440
	}
	trainUntil := start
	if p.strategy.HasExplicitTrainingMode() {
		trainUntil = start.Add(opts.TrainFor)
	}

	report := &ReplayReport{
		RunID:      uuid.New().String(),
		ResourceID: ds.ID,
		Strategy:   p.strategy.Name(),
		Start:      start,
		End:        end,
	}
	logger := logging.WithResource(p.logger, ds.ID).With(zap.String("run_id", report.RunID))

	state := schedule.NewState(ds.ID, opts.UpdateMode)
	state.WindowSize = ds.WindowSize
	state.TTL = ds.TTL
	if trainUntil.After(start) {
		if err := p.trainHourlyRates(state, ds, start, trainUntil, logger); err != nil {
			return nil, err
		}
	}

	var delay time.Duration
	var prev time.Time
	pollTime := start
	polls := 0

	for !pollTime.After(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if polls >= maxPolls {
			report.Truncated = true
			logger.Warn("replay truncated", zap.Int("max_polls", maxPolls))
			break
		}
		polls++

		training := pollTime.Before(trainUntil)
		res, err := p.observe(ctx, state, pollTime, ds.Window(pollTime), training)
		if err != nil {
			return nil, err
		}

		next := pollTime.Add(time.Duration(res.Interval) * time.Minute)
		switch {
		case training:
			report.TrainingPolls++
			next = pollTime.Add(time.Duration(trainingInterval) * time.Minute)
		case prev.IsZero():
			report.InitialItems = res.NewItems
			report.Polls++
			report.trackInterval(res.Interval)
		default:
			report.Polls++
			report.trackInterval(res.Interval)
			report.NewItems += res.NewItems
			if res.NewItems == 0 {
				report.EmptyPolls++
			}
			for _, item := range state.NewItems() {
				delay += pollTime.Sub(item.Published)
			}
			published := len(ds.Between(prev.Add(time.Nanosecond), pollTime.Add(time.Nanosecond)))
			if missed := published - res.NewItems; missed > 0 {
				report.Misses += missed
			}
		}

		if !next.After(pollTime) {
			next = pollTime.Add(time.Minute)
		}
		prev = pollTime
		pollTime = next
	}

	if !prev.IsZero() {
		report.Unseen = len(ds.Between(prev.Add(time.Nanosecond), end.Add(time.Nanosecond)))
	}
	if report.NewItems > 0 {
		report.AverageDelay = delay / time.Duration(report.NewItems)
	}

	logger.Info("replay finished",
		zap.Int("polls", report.Polls),
		zap.Int("new_items", report.NewItems),
		zap.Int("misses", report.Misses),
		zap.Duration("average_delay", report.AverageDelay))
	return report, nil
}

// trainHourlyRates builds the model of hourly rate strategies from the items
// published in [from, to), stores it and installs it in the state
func (p *Poller) trainHourlyRates(state *schedule.State, ds *dataset.Dataset, from, to time.Time, logger *zap.Logger) error {
	switch p.strategy.(type) {
	case *strategy.IndHist, *strategy.IndHistTTL:
	default:
		return nil
	}

	rates, err := strategy.TrainHourlyRates(ds.Items, from, to)
	if err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.SaveHourlyRates(ds.ID, rates); err != nil {
			logger.Warn("failed to save trained hourly rates", zap.Error(err))
			p.countModelError("save_rates")
		}
	}
	copied := *rates
	state.Models.HourlyRates = &copied
	logger.Debug("trained hourly rates", zap.Float64("items_per_day", rates.Daily()))
	return nil
}

func (r *ReplayReport) trackInterval(interval int) {
	if r.Polls == 1 || interval < r.MinInterval {
		r.MinInterval = interval
	}
	if interval > r.MaxInterval {
		r.MaxInterval = interval
	}
}

// ReplayAll replays every dataset concurrently. Reports are returned in input
// order; the first error cancels the remaining replays.
func ReplayAll(ctx context.Context, p *Poller, datasets []*dataset.Dataset, opts ReplayOptions, concurrency int) ([]*ReplayReport, error) {
	reports := make([]*ReplayReport, len(datasets))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, ds := range datasets {
		i, ds := i, ds
		g.Go(func() error {
			report, err := Replay(ctx, p, ds, opts)
			if err != nil {
				return fmt.Errorf("replay %s: %w", ds.ID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
