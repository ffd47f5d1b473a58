package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/shaneisley/cadence/pkg/schedule"
	"go.uber.org/zap"
)

// DefaultCheckTime is the interval in minutes used whenever there is not enough
// data to compute one
const DefaultCheckTime = 60

// Strategy decides how many minutes to wait before the next poll of a resource
type Strategy interface {
	// Update sets state.UpdateInterval, clamped to the strategy's bounds, and
	// updates the strategy's own model in state.Models. It never fails: missing
	// data degrades to a documented default.
	Update(state *schedule.State, stats *schedule.Statistics, training bool)

	// Name returns a stable identifier embedding the key parameters
	Name() string

	// HasExplicitTrainingMode reports whether the strategy builds a model during a
	// dedicated training period
	HasExplicitTrainingMode() bool
}

// Option configures the ambient dependencies of a strategy
type Option func(*base)

// WithLogger sets the logger used for warnings and delegate decisions
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// base carries what every strategy shares: its bounds and a logger
type base struct {
	bounds schedule.Bounds
	logger *zap.Logger
}

func newBase(name string, bounds schedule.Bounds, opts []Option) (base, error) {
	if err := bounds.Validate(); err != nil {
		return base{}, fmt.Errorf("%s: %w", name, err)
	}
	b := base{bounds: bounds, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.Named(name)
	return b, nil
}

// Bounds returns the clamping policy of the strategy
func (b *base) Bounds() schedule.Bounds {
	return b.bounds
}

func (b *base) allowed(minutes int) int {
	return b.bounds.Allowed(minutes)
}

func (b *base) ignoreTraining(state *schedule.State, training bool) {
	if training {
		b.logger.Debug("strategy has no training mode, treating poll as normal", zap.String("resource", state.ID))
	}
}

// toMinutes truncates a duration to whole minutes
func toMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// floatMinutes truncates a float minute value, saturating instead of overflowing
func floatMinutes(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// Fixed always schedules the same interval
type Fixed struct {
	base
	interval int
}

// NewFixed creates a fixed interval strategy; interval is in minutes
func NewFixed(bounds schedule.Bounds, interval int, opts ...Option) (*Fixed, error) {
	if interval <= 0 {
		return nil, &ParamError{Param: "fixed_interval", Value: interval, Message: "must be greater than 0"}
	}
	b, err := newBase("fixed", bounds, opts)
	if err != nil {
		return nil, err
	}
	return &Fixed{base: b, interval: interval}, nil
}

// Update sets the configured interval
func (f *Fixed) Update(state *schedule.State, stats *schedule.Statistics, training bool) {
	f.ignoreTraining(state, training)
	state.UpdateInterval = f.allowed(f.interval)
}

// Name returns "fixed_<interval>"
func (f *Fixed) Name() string {
	return fmt.Sprintf("fixed_%d", f.interval)
}

// HasExplicitTrainingMode is false
func (f *Fixed) HasExplicitTrainingMode() bool {
	return false
}
