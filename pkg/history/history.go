// Package history keeps the poll decisions of a run and aggregates them.
package history

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// PollHistory provides thread-safe storage and aggregation of poll records
type PollHistory struct {
	mu          sync.RWMutex
	records     []PollRecord
	maxSize     int
	maxAge      time.Duration
	lastCleanup time.Time
}

// PollRecord is one scheduling decision
type PollRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	ResourceID string    `json:"resource_id"`
	Strategy   string    `json:"strategy"`
	Delegate   string    `json:"delegate,omitempty"`
	Interval   int       `json:"interval"`
	NewItems   int       `json:"new_items"`
	Activity   string    `json:"activity,omitempty"`
}

// AggregatedStats represents aggregated statistics over a time period
type AggregatedStats struct {
	TimeRange       TimeRange       `json:"time_range"`
	TotalPolls      int             `json:"total_polls"`
	PollsWithItems  int             `json:"polls_with_items"`
	EmptyPolls      int             `json:"empty_polls"`
	HitRate         float64         `json:"hit_rate"`
	TotalNewItems   int             `json:"total_new_items"`
	AverageInterval float64         `json:"average_interval"`
	TopResources    []ResourceStats `json:"top_resources"`
	HourlyBreakdown []HourlyStats   `json:"hourly_breakdown"`
}

// TimeRange represents a time range for aggregation
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResourceStats represents statistics for a specific resource
type ResourceStats struct {
	ResourceID      string  `json:"resource_id"`
	Polls           int     `json:"polls"`
	NewItems        int     `json:"new_items"`
	HitRate         float64 `json:"hit_rate"`
	AverageInterval float64 `json:"average_interval"`
}

// HourlyStats represents statistics for a specific hour
type HourlyStats struct {
	Hour     time.Time `json:"hour"`
	Polls    int       `json:"polls"`
	NewItems int       `json:"new_items"`
}

// NewPollHistory creates a new history. maxAge is measured against the
// timestamp of the newest record, so replays of old data are kept.
func NewPollHistory(maxSize int, maxAge time.Duration) *PollHistory {
	return &PollHistory{
		records: make([]PollRecord, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// Store adds a record
func (h *PollHistory) Store(record PollRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)
	h.cleanupIfNeeded(record.Timestamp)
}

// GetRecent returns the most recent N records
func (h *PollHistory) GetRecent(limit int) []PollRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}

	start := len(h.records) - limit
	result := make([]PollRecord, limit)
	copy(result, h.records[start:])

	return result
}

// GetByResource returns every record of one resource in insertion order
func (h *PollHistory) GetByResource(resourceID string) []PollRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []PollRecord
	for _, record := range h.records {
		if record.ResourceID == resourceID {
			result = append(result, record)
		}
	}
	return result
}

// GetByTimeRange returns records within [start, end)
func (h *PollHistory) GetByTimeRange(start, end time.Time) []PollRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.getRecordsInRange(start, end)
}

// GetAggregatedStats returns aggregated statistics for a time range
func (h *PollHistory) GetAggregatedStats(start, end time.Time) *AggregatedStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := &AggregatedStats{
		TimeRange: TimeRange{Start: start, End: end},
	}

	recordsInRange := h.getRecordsInRange(start, end)
	if len(recordsInRange) == 0 {
		return stats
	}

	var totalInterval int
	resourceStats := make(map[string]*ResourceStats)
	hourlyStats := make(map[int64]*HourlyStats)

	for _, record := range recordsInRange {
		stats.TotalPolls++
		stats.TotalNewItems += record.NewItems
		totalInterval += record.Interval
		if record.NewItems > 0 {
			stats.PollsWithItems++
		} else {
			stats.EmptyPolls++
		}

		// Track resource statistics
		res, exists := resourceStats[record.ResourceID]
		if !exists {
			res = &ResourceStats{ResourceID: record.ResourceID}
			resourceStats[record.ResourceID] = res
		}
		res.Polls++
		res.NewItems += record.NewItems
		res.AverageInterval += (float64(record.Interval) - res.AverageInterval) / float64(res.Polls)
		if record.NewItems > 0 {
			res.HitRate = (res.HitRate*float64(res.Polls-1) + 1.0) / float64(res.Polls)
		} else {
			res.HitRate = res.HitRate * float64(res.Polls-1) / float64(res.Polls)
		}

		// Track hourly statistics
		hour := record.Timestamp.Truncate(time.Hour)
		hourStats, exists := hourlyStats[hour.Unix()]
		if !exists {
			hourStats = &HourlyStats{Hour: hour}
			hourlyStats[hour.Unix()] = hourStats
		}
		hourStats.Polls++
		hourStats.NewItems += record.NewItems
	}

	stats.HitRate = float64(stats.PollsWithItems) / float64(stats.TotalPolls)
	stats.AverageInterval = float64(totalInterval) / float64(stats.TotalPolls)
	stats.TopResources = sortResourceStats(resourceStats)
	stats.HourlyBreakdown = sortHourlyStats(hourlyStats)

	return stats
}

// GetStats returns current storage statistics
func (h *PollHistory) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"total_records": len(h.records),
		"max_size":      h.maxSize,
		"max_age":       h.maxAge.String(),
		"last_cleanup":  h.lastCleanup,
	}
}

// ExportJSON exports all records as JSON
func (h *PollHistory) ExportJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return json.MarshalIndent(h.records, "", "  ")
}

// Clear removes all records
func (h *PollHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = h.records[:0]
}

// cleanupIfNeeded enforces maxSize on every store and maxAge at most every
// five minutes of record time (assumes lock is held)
func (h *PollHistory) cleanupIfNeeded(now time.Time) {
	if h.maxSize > 0 && len(h.records) > h.maxSize {
		excess := len(h.records) - h.maxSize
		h.records = append(h.records[:0], h.records[excess:]...)
	}

	if h.maxAge <= 0 || now.Sub(h.lastCleanup) < 5*time.Minute {
		return
	}
	h.lastCleanup = now
	cutoff := now.Add(-h.maxAge)

	kept := h.records[:0]
	for _, record := range h.records {
		if !record.Timestamp.Before(cutoff) {
			kept = append(kept, record)
		}
	}
	h.records = kept
}

// getRecordsInRange returns records within [start, end) (assumes lock is held)
func (h *PollHistory) getRecordsInRange(start, end time.Time) []PollRecord {
	var result []PollRecord
	for _, record := range h.records {
		if !record.Timestamp.Before(start) && record.Timestamp.Before(end) {
			result = append(result, record)
		}
	}
	return result
}

// sortResourceStats converts the resource map to a slice, most polled first
func sortResourceStats(resourceStats map[string]*ResourceStats) []ResourceStats {
	stats := make([]ResourceStats, 0, len(resourceStats))
	for _, stat := range resourceStats {
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Polls != stats[j].Polls {
			return stats[i].Polls > stats[j].Polls
		}
		return stats[i].ResourceID < stats[j].ResourceID
	})

	// Limit to top 10
	if len(stats) > 10 {
		stats = stats[:10]
	}

	return stats
}

// sortHourlyStats converts the hourly map to a slice sorted by hour
func sortHourlyStats(hourlyStats map[int64]*HourlyStats) []HourlyStats {
	stats := make([]HourlyStats, 0, len(hourlyStats))
	for _, stat := range hourlyStats {
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Hour.Before(stats[j].Hour)
	})

	return stats
}
