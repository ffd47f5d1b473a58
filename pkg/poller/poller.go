// Package poller drives a scheduling strategy the way a crawler does after
// every poll of a resource.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaneisley/cadence/pkg/history"
	"github.com/shaneisley/cadence/pkg/logging"
	"github.com/shaneisley/cadence/pkg/metrics"
	"github.com/shaneisley/cadence/pkg/modelstore"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"go.uber.org/zap"
)

// ErrNilState is returned when Observe is called without a state
var ErrNilState = errors.New("state must not be nil")

// Result is the outcome of one observed poll
type Result struct {
	Interval int
	NextPoll time.Time
	NewItems int
	Activity schedule.ActivityPattern
	Delegate string
}

// Poller applies one strategy to the polls of many resources
type Poller struct {
	strategy strategy.Strategy
	store    modelstore.Store
	recorder *metrics.Recorder
	tracker  *metrics.SelectionTracker
	history  *history.PollHistory
	logger   *zap.Logger
	training bool

	// locks holds a mutex per resource with a poll in flight
	mu    sync.Mutex
	locks map[string]*resourceLock
}

type resourceLock struct {
	sync.Mutex
	refs int
}

// Option configures a Poller
type Option func(*Poller)

// WithStore persists models between polls
func WithStore(store modelstore.Store) Option {
	return func(p *Poller) { p.store = store }
}

// WithRecorder records prometheus metrics for every poll
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(p *Poller) { p.recorder = recorder }
}

// WithSelectionTracker tracks delegate choices of hybrid strategies
func WithSelectionTracker(tracker *metrics.SelectionTracker) Option {
	return func(p *Poller) { p.tracker = tracker }
}

// WithHistory keeps a record of every decision
func WithHistory(h *history.PollHistory) Option {
	return func(p *Poller) { p.history = h }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTraining passes the training flag to the strategy
func WithTraining(training bool) Option {
	return func(p *Poller) { p.training = training }
}

// New creates a poller for the given strategy
func New(s strategy.Strategy, opts ...Option) *Poller {
	p := &Poller{
		strategy: s,
		logger:   zap.NewNop(),
		locks:    make(map[string]*resourceLock),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("poller")
	return p
}

// Strategy returns the strategy applied by the poller
func (p *Poller) Strategy() strategy.Strategy {
	return p.strategy
}

func (p *Poller) lock(resourceID string) func() {
	p.mu.Lock()
	l, ok := p.locks[resourceID]
	if !ok {
		l = &resourceLock{}
		p.locks[resourceID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, resourceID)
		}
		p.mu.Unlock()
	}
}

// Observe records a poll made at pollTime that returned items with the given
// publish times, runs the strategy and persists its models. Store failures are
// logged and never prevent a new interval from being computed.
func (p *Poller) Observe(ctx context.Context, state *schedule.State, pollTime time.Time, published []time.Time) (Result, error) {
	return p.observe(ctx, state, pollTime, published, p.training)
}

func (p *Poller) observe(ctx context.Context, state *schedule.State, pollTime time.Time, published []time.Time, training bool) (Result, error) {
	if state == nil {
		return Result{}, ErrNilState
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	unlock := p.lock(state.ID)
	defer unlock()

	logger := logging.WithResource(p.logger, state.ID)
	p.loadModels(state, logger)

	newItems, future := replaceWindow(state, pollTime, published)
	state.LastPollTime = pollTime
	if future > 0 {
		logger.Warn("ignoring items published after the poll time",
			zap.Int("items", future),
			zap.Time("poll_time", pollTime))
	}

	stats := schedule.ComputeStatistics(state)
	if !stats.Valid && len(state.Items) > 1 {
		logger.Warn("window statistics are not usable", zap.Int("items", len(state.Items)))
	}

	p.strategy.Update(state, stats, training)

	result := Result{
		Interval: state.UpdateInterval,
		NextPoll: pollTime.Add(time.Duration(state.UpdateInterval) * time.Minute),
		NewItems: newItems,
		Activity: schedule.ClassifyActivity(state, stats),
	}
	if d, ok := p.strategy.(strategy.Delegator); ok {
		result.Delegate = d.Delegate(state)
	}

	p.record(state, pollTime, result)
	p.saveModels(state, logger)
	state.Checks++

	logger.Debug("poll observed",
		zap.Int("interval", result.Interval),
		zap.Int("new_items", result.NewItems),
		zap.Stringer("activity", result.Activity),
		zap.String("delegate", result.Delegate))

	return result, nil
}

func (p *Poller) loadModels(state *schedule.State, logger *zap.Logger) {
	if p.store == nil || !state.Models.IsEmpty() {
		return
	}
	models, err := p.store.LoadModels(state.ID)
	if errors.Is(err, modelstore.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("failed to load models", zap.Error(err))
		p.countModelError("load")
		return
	}
	state.Models = models
}

func (p *Poller) saveModels(state *schedule.State, logger *zap.Logger) {
	if p.store == nil || state.Models.IsEmpty() {
		return
	}
	if err := p.store.SaveModels(state.ID, state.Models.Clone()); err != nil {
		logger.Warn("failed to save models", zap.Error(err))
		p.countModelError("save")
	}
}

func (p *Poller) countModelError(operation string) {
	if p.recorder != nil {
		p.recorder.RecordModelError(operation)
	}
}

func (p *Poller) record(state *schedule.State, pollTime time.Time, result Result) {
	name := p.strategy.Name()
	if p.recorder != nil {
		p.recorder.RecordUpdate(name, result.Interval, result.NewItems)
		if result.Delegate != "" {
			p.recorder.RecordDelegate(name, result.Delegate)
		}
	}
	if p.tracker != nil && result.Delegate != "" {
		p.tracker.RecordSelection(result.Delegate, result.Interval, result.NewItems, pollTime)
	}
	if p.history != nil {
		p.history.Store(history.PollRecord{
			Timestamp:  pollTime,
			ResourceID: state.ID,
			Strategy:   name,
			Delegate:   result.Delegate,
			Interval:   result.Interval,
			NewItems:   result.NewItems,
			Activity:   result.Activity.String(),
		})
	}
}

// replaceWindow installs the polled items as the new window, flags items newer
// than the last known item as new and updates the item timestamps. Items
// published after pollTime are unreliable and left out of the window until the
// poll time passes them. It returns the number of new and of skipped items.
func replaceWindow(state *schedule.State, pollTime time.Time, published []time.Time) (newItems, future int) {
	known := state.LastItemTime
	state.Items = state.Items[:0]
	for _, t := range published {
		if t.IsZero() {
			continue
		}
		if !pollTime.IsZero() && t.After(pollTime) {
			future++
			continue
		}
		isNew := known.IsZero() || t.After(known)
		if isNew {
			newItems++
		}
		state.Items = append(state.Items, schedule.Item{Published: t, New: isNew})
	}

	times := state.Timestamps()
	n := len(times)
	if n == 0 {
		return 0, future
	}
	newest := times[n-1]
	if newest.After(state.LastItemTime) {
		second := state.LastItemTime
		if n > 1 && times[n-2].After(second) {
			second = times[n-2]
		}
		state.SecondLastItemTime = second
		state.LastItemTime = newest
	}
	state.OldestItemInWindow = times[0]
	return newItems, future
}
