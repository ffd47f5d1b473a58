package schedule

import "time"

// ActivityPattern describes how a resource publishes items
type ActivityPattern int

const (
	ActivityUnknown ActivityPattern = iota
	ActivityEmpty
	ActivitySingleEntry
	ActivityZombie
	ActivitySpontaneous
	ActivitySliced
	ActivityConstant
	ActivityChunked
	ActivityOnTheFly
)

func (a ActivityPattern) String() string {
	switch a {
	case ActivityEmpty:
		return "empty"
	case ActivitySingleEntry:
		return "single_entry"
	case ActivityZombie:
		return "zombie"
	case ActivitySpontaneous:
		return "spontaneous"
	case ActivitySliced:
		return "sliced"
	case ActivityConstant:
		return "constant"
	case ActivityChunked:
		return "chunked"
	case ActivityOnTheFly:
		return "on_the_fly"
	default:
		return "unknown"
	}
}

// ClassifyActivity applies rule based classification to a window
func ClassifyActivity(state *State, stats *Statistics) ActivityPattern {
	n := len(state.Timestamps())
	switch {
	case n == 0:
		return ActivityEmpty
	case n == 1:
		return ActivitySingleEntry
	case stats == nil || len(stats.Gaps) == 0:
		return ActivityUnknown
	}

	// tiny gaps: generated at request time or posted in batches
	if stats.MedianGap < 5*time.Second {
		if stats.DelayToNewestPost < 5*time.Second {
			return ActivityOnTheFly
		}
		return ActivityChunked
	}

	if stats.DelayToNewestPost >= 8*stats.MedianGap && stats.DelayToNewestPost > 8*7*24*time.Hour {
		return ActivityZombie
	}

	if stats.GapStdDev >= stats.MedianGap/10 && stats.MedianGap > 24*time.Hour {
		return ActivitySpontaneous
	}

	if stats.LongestGap < 12*stats.MedianGap && stats.LongestGap < 2*time.Hour && stats.AvgItemsPerDay >= 4 {
		return ActivityConstant
	}
	return ActivitySliced
}
