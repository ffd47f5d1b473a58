package strategy

import (
	"fmt"
	"sort"

	"github.com/shaneisley/cadence/pkg/schedule"
)

// Params selects a strategy by name and carries every constant a strategy may need
type Params struct {
	Name            string
	Bounds          schedule.Bounds
	FixedInterval   int
	LearnedMode     LearnedMode
	TTLMode         TTLMode
	Theta           float64
	WeightM         float64
	TBurst          float64
	TimeWindowHours int
}

// DefaultParams returns the parameters used when nothing is configured
func DefaultParams() Params {
	return Params{
		Name:            "mav",
		Bounds:          schedule.NewBounds(1, 1440),
		FixedInterval:   DefaultCheckTime,
		LearnedMode:     LearnedWindow,
		TTLMode:         TTLIgnore,
		Theta:           0.5,
		WeightM:         DefaultWeightM,
		TBurst:          2.0,
		TimeWindowHours: 24,
	}
}

type builder func(p Params, rates RateSource, opts []Option) (Strategy, error)

var builders = map[string]builder{
	"fixed": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewFixed(p.Bounds, p.FixedInterval, opts...)
	},
	"fixed-learned": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewFixedLearned(p.Bounds, p.LearnedMode, opts...)
	},
	"mav": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewMovingAverage(p.Bounds, opts...)
	},
	"mav-sync": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewMovingAverageSync(p.Bounds, p.TTLMode, opts...)
	},
	"adaptive-ttl": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewAdaptiveTTL(p.Bounds, p.WeightM, opts...)
	},
	"lru2": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewLRU2(p.Bounds, opts...)
	},
	"post-rate": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewPostRate(p.Bounds, opts...)
	},
	"indhist": func(p Params, rates RateSource, opts []Option) (Strategy, error) {
		return NewIndHist(p.Bounds, p.Theta, rates, opts...)
	},
	"indhist-ttl": func(p Params, rates RateSource, opts []Option) (Strategy, error) {
		return NewIndHistTTL(p.Bounds, p.Theta, p.WeightM, p.TBurst, p.TimeWindowHours, rates, opts...)
	},
	"lihz": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewLIHZ(p.Bounds, p.Theta, opts...)
	},
	"mavpr": func(p Params, _ RateSource, opts []Option) (Strategy, error) {
		return NewMavPr(p.Bounds, opts...)
	},
}

// Names lists the strategy names accepted by Build
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the strategy named by p.Name. rates is only used by the
// hourly histogram strategies and may be nil.
func Build(p Params, rates RateSource, opts ...Option) (Strategy, error) {
	build, ok := builders[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, p.Name)
	}
	s, err := build(p, rates, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy %s: %w", p.Name, err)
	}
	return s, nil
}
