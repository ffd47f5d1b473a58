// Package ui renders scheduling results for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shaneisley/cadence/pkg/poller"
	"github.com/shaneisley/cadence/pkg/schedule"
)

// Reporter handles status reporting and terminal output
type Reporter struct {
	writer io.Writer
	quiet  bool
}

// NewReporter creates a new status reporter
func NewReporter(writer io.Writer) *Reporter {
	return &Reporter{writer: writer}
}

// SetQuiet suppresses per poll messages; summaries are always written
func (r *Reporter) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// NextPoll reports the interval computed for one resource
func (r *Reporter) NextPoll(resourceID, strategyName string, res poller.Result) {
	if r.quiet {
		fmt.Fprintf(r.writer, "%s\t%d\n", resourceID, res.Interval)
		return
	}

	var builder strings.Builder
	builder.WriteString("[cadence] ")
	builder.WriteString(resourceID)
	builder.WriteString(": next poll in ")
	builder.WriteString(FormatMinutes(res.Interval))
	builder.WriteString(" at ")
	builder.WriteString(res.NextPoll.Format(time.RFC3339))
	fmt.Fprintf(&builder, " (%s", strategyName)
	if res.Delegate != "" {
		fmt.Fprintf(&builder, " via %s", res.Delegate)
	}
	fmt.Fprintf(&builder, ", %s, %s)\n", pluralize(res.NewItems, "new item"), res.Activity)

	fmt.Fprint(r.writer, builder.String())
}

// ReplaySummary reports the outcome of a replay
func (r *Reporter) ReplaySummary(report *poller.ReplayReport) {
	if report.Misses == 0 && report.Unseen == 0 {
		fmt.Fprintf(r.writer, "✅ [cadence] %s: %s caught every item.\n", report.ResourceID, report.Strategy)
	} else {
		fmt.Fprintf(r.writer, "❌ [cadence] %s: %s missed %s.\n", report.ResourceID, report.Strategy,
			pluralize(report.Misses+report.Unseen, "item"))
	}

	fmt.Fprintf(r.writer, "\nReplay Statistics:\n")
	fmt.Fprintf(r.writer, "  Run ID: %s\n", report.RunID)
	fmt.Fprintf(r.writer, "  Period: %s - %s\n", report.Start.Format(time.RFC3339), report.End.Format(time.RFC3339))
	fmt.Fprintf(r.writer, "  Polls: %d\n", report.Polls)
	if report.TrainingPolls > 0 {
		fmt.Fprintf(r.writer, "  Training Polls: %d\n", report.TrainingPolls)
	}
	fmt.Fprintf(r.writer, "  Empty Polls: %d\n", report.EmptyPolls)
	fmt.Fprintf(r.writer, "  Hit Rate: %.1f%%\n", report.HitRate()*100)
	fmt.Fprintf(r.writer, "  New Items: %d\n", report.NewItems)
	fmt.Fprintf(r.writer, "  Missed Items: %d\n", report.Misses)
	fmt.Fprintf(r.writer, "  Unseen Items: %d\n", report.Unseen)
	fmt.Fprintf(r.writer, "  Average Delay: %s\n", formatDuration(report.AverageDelay))
	fmt.Fprintf(r.writer, "  Interval Range: %s - %s\n", FormatMinutes(report.MinInterval), FormatMinutes(report.MaxInterval))
	if report.Truncated {
		fmt.Fprintf(r.writer, "  Truncated: poll limit reached\n")
	}
}

// Strategies lists the available strategy names
func (r *Reporter) Strategies(names []string) {
	for _, name := range names {
		fmt.Fprintln(r.writer, name)
	}
}

// TrainedRates reports a trained hourly rate model
func (r *Reporter) TrainedRates(resourceID string, rates *schedule.HourlyRates) {
	fmt.Fprintf(r.writer, "✅ [cadence] %s: trained hourly rates (%.2f items per day).\n", resourceID, rates.Daily())
	if r.quiet {
		return
	}
	for hour := 0; hour < 24; hour++ {
		// slot h counts the hour ending at h:00
		rate := rates[(hour+1)%24]
		if rate == 0 {
			continue
		}
		fmt.Fprintf(r.writer, "  %02d:00 %6.3f\n", hour, rate)
	}
}

// FormatMinutes formats an interval given in minutes
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes >= 10*365*24*60 {
		return "training"
	}
	days := minutes / (24 * 60)
	rest := time.Duration(minutes%(24*60)) * time.Minute
	if days == 0 {
		return formatDuration(rest)
	}
	if rest == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%s", days, formatDuration(rest))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d < time.Minute {
		seconds := float64(d) / float64(time.Second)
		if seconds == float64(int(seconds)) {
			return fmt.Sprintf("%.0fs", seconds)
		}
		formatted := fmt.Sprintf("%.2f", seconds)
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
		return formatted + "s"
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second

	if hours > 0 {
		if minutes > 0 && seconds > 0 {
			return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
		} else if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		} else if seconds > 0 {
			return fmt.Sprintf("%dh%ds", hours, seconds)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if seconds > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%dm", minutes)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
