package strategy

import (
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// MovingAverage schedules from the average gap between the items of the window
type MovingAverage struct {
	base
}

// NewMovingAverage creates a moving average strategy
func NewMovingAverage(bounds schedule.Bounds, opts ...Option) (*MovingAverage, error) {
	b, err := newBase("mav", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &MovingAverage{base: b}, nil
}

// Update sets the min or max interval depending on the state's update mode
func (m *MovingAverage) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	m.ignoreTraining(state, training)
	est := movingAverage(state, statsOrCompute(state, stats), m.bounds)
	state.UpdateInterval = m.allowed(est.pick(state.UpdateMode))
}

// Name returns "mav"
func (m *MovingAverage) Name() string {
	return "mav"
}

// HasExplicitTrainingMode is false
func (m *MovingAverage) HasExplicitTrainingMode() bool {
	return false
}

// estimate holds the unclamped intervals for both update modes
type estimate struct {
	minInterval int
	maxInterval int
	avgGap      float64
	degenerate  bool
}

func (e estimate) pick(mode schedule.UpdateMode) int {
	if mode == schedule.MaxDelay {
		return e.maxInterval
	}
	return e.minInterval
}

// movingAverage computes both candidate intervals. minInterval is the expected
// gap to the next item, maxInterval the time until the whole window is refreshed.
func movingAverage(state *schedule.State, stats *schedule.Statistics, bounds schedule.Bounds) estimate {
	n := state.ItemCount()
	if n <= 1 {
		return estimate{minInterval: DefaultCheckTime / 2, maxInterval: DefaultCheckTime}
	}

	// identical timestamps or batch publishing: gaps say nothing, check rarely
	if !stats.Valid || stats.AverageGap <= 0 || schedule.ClassifyActivity(state, stats) == schedule.ActivityChunked {
		highest := bounds.HighestOr(DefaultCheckTime)
		return estimate{minInterval: highest, maxInterval: highest, degenerate: true}
	}

	avg := stats.AverageGap
	if !state.HasNewItems() && len(stats.Gaps) > 0 && stats.DelayToNewestPost > 0 {
		// the gap since the newest item is still open; let it replace the oldest one
		var sum time.Duration
		for _, gap := range stats.Gaps {
			sum += gap
		}
		sum = sum - stats.OldestGap() + stats.DelayToNewestPost
		avg = sum.Minutes() / float64(len(stats.Gaps))
	}

	return estimate{
		minInterval: floatMinutes(avg),
		maxInterval: floatMinutes(float64(n) * avg),
		avgGap:      avg,
	}
}

func statsOrCompute(state *schedule.State, stats *schedule.Statistics) *schedule.Statistics {
	if stats != nil {
		return stats
	}
	return schedule.ComputeStatistics(state)
}

// TTLMode controls how an advertised TTL hint is applied
type TTLMode int

const (
	// TTLIgnore never looks at the advertised TTL
	TTLIgnore TTLMode = iota
	// TTLFloor never polls more often than the TTL
	TTLFloor
	// TTLOverride uses the TTL as the interval whenever one is advertised
	TTLOverride
)

func (m TTLMode) String() string {
	switch m {
	case TTLFloor:
		return "floor"
	case TTLOverride:
		return "override"
	default:
		return "ignore"
	}
}

// ParseTTLMode parses "ignore", "floor" or "override"
func ParseTTLMode(s string) (TTLMode, error) {
	switch s {
	case "ignore", "":
		return TTLIgnore, nil
	case "floor":
		return TTLFloor, nil
	case "override":
		return TTLOverride, nil
	default:
		return TTLIgnore, &ParamError{Param: "ttl_mode", Value: s, Message: "must be ignore, floor or override"}
	}
}

// MovingAverageSync is a moving average that tries to poll exactly when the
// window is expected to be refreshed
type MovingAverageSync struct {
	base
	ttlMode TTLMode
}

// NewMovingAverageSync creates a synchronized moving average strategy
func NewMovingAverageSync(bounds schedule.Bounds, ttlMode TTLMode, opts ...Option) (*MovingAverageSync, error) {
	if ttlMode < TTLIgnore || ttlMode > TTLOverride {
		return nil, &ParamError{Param: "ttl_mode", Value: int(ttlMode), Message: "must be ignore, floor or override"}
	}
	b, err := newBase("mav_sync", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &MovingAverageSync{base: b, ttlMode: ttlMode}, nil
}

// Update aligns the next poll to the predicted window refresh when that is
// possible within bounds, otherwise falls back to the moving average
func (m *MovingAverageSync) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	m.ignoreTraining(state, training)
	stats = statsOrCompute(state, stats)

	est := movingAverage(state, stats, m.bounds)
	interval := est.pick(state.UpdateMode)

	if synced, ok := m.synchronize(state, stats, est); ok {
		m.logger.Debug("synchronization achieved",
			zap.String("resource", state.ID),
			zap.Int("interval", synced))
		interval = synced
	}

	if state.TTL > 0 {
		switch m.ttlMode {
		case TTLFloor:
			if interval < state.TTL {
				interval = state.TTL
			}
		case TTLOverride:
			interval = state.TTL
		}
	}

	state.UpdateInterval = m.allowed(interval)
}

func (m *MovingAverageSync) synchronize(state *schedule.State, stats *schedule.Statistics, est estimate) (int, bool) {
	if est.degenerate || est.avgGap <= 0 || state.LastPollTime.IsZero() {
		return 0, false
	}

	gap := time.Duration(est.avgGap * float64(time.Minute))
	var target time.Time
	if state.UpdateMode == schedule.MaxDelay {
		oldest := state.OldestItemInWindow
		if oldest.IsZero() {
			oldest = stats.OldestPost
		}
		if oldest.IsZero() {
			return 0, false
		}
		target = oldest.Add(time.Duration(state.ItemCount()) * gap)
	} else {
		if stats.NewestPost.IsZero() {
			return 0, false
		}
		target = stats.NewestPost.Add(gap)
	}

	interval := toMinutes(target.Sub(state.LastPollTime))
	if interval <= 0 || !m.bounds.Contains(interval) {
		return 0, false
	}
	return interval, true
}

// Name returns "mav_sync_<ttl mode>"
func (m *MovingAverageSync) Name() string {
	return "mav_sync_" + m.ttlMode.String()
}

// HasExplicitTrainingMode is false
func (m *MovingAverageSync) HasExplicitTrainingMode() bool {
	return false
}
