package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shaneisley/cadence/pkg/dataset"
	"github.com/shaneisley/cadence/pkg/modelstore"
	"github.com/shaneisley/cadence/pkg/poller"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"github.com/shaneisley/cadence/pkg/ui"
	"github.com/spf13/cobra"
)

// createStrategiesCommand creates the strategies subcommand
func createStrategiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available strategies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ui.NewReporter(cmd.OutOrStdout()).Strategies(strategy.Names())
		},
	}
}

// createNextCommand creates the next subcommand
func createNextCommand(opts *rootOptions) *cobra.Command {
	var (
		paths []string
		at    string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "next --dataset FILE [--dataset FILE...] [--at TIME]",
		Short: "Compute the next poll interval",
		Long: `Polls every dataset at the given time (default: now) and prints the interval
until the next poll. Models are kept in the --db database between runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(paths) == 0 {
				return fmt.Errorf("at least one --dataset is required")
			}
			pollTime := time.Now().UTC()
			if at != "" {
				var err error
				if pollTime, err = dataset.ParseTimestamp(at); err != nil {
					return err
				}
			}

			datasets, err := loadDatasets(paths)
			if err != nil {
				return err
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			polls := make([]poller.Poll, len(datasets))
			for i, ds := range datasets {
				polls[i] = poller.Poll{
					State:     newState(ds, a.mode),
					PollTime:  pollTime,
					Published: ds.Window(pollTime),
				}
			}

			fleet := poller.NewFleet(a.poller(), a.cfg.Concurrency, a.cfg.RateLimit)
			results, err := fleet.ObserveAll(cmd.Context(), polls)
			if err != nil {
				return err
			}

			reporter := ui.NewReporter(cmd.OutOrStdout())
			reporter.SetQuiet(quiet)
			for i, res := range results {
				reporter.NextPoll(datasets[i].ID, a.strategy.Name(), res)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&paths, "dataset", "d", nil, "Dataset file (.yaml, .yml, .csv, .txt), repeatable")
	cmd.Flags().StringVar(&at, "at", "", "Poll time as RFC3339 or unix seconds (default: now)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only resource and interval")

	return cmd
}

// createSimulateCommand creates the simulate subcommand
func createSimulateCommand(opts *rootOptions) *cobra.Command {
	var (
		paths            []string
		start, end       string
		trainFor         time.Duration
		trainingInterval int
		maxPolls         int
		metricsOut       string
		historyOut       string
	)

	cmd := &cobra.Command{
		Use:     "simulate --dataset FILE [--dataset FILE...]",
		Aliases: []string{"sim"},
		Short:   "Replay datasets with a strategy",
		Long: `Replays the publish history of every dataset as if it had been polled with the
configured strategy and reports polls, misses and delays. Datasets are replayed
concurrently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(paths) == 0 {
				return fmt.Errorf("at least one --dataset is required")
			}
			replayOpts := poller.ReplayOptions{
				TrainFor:         trainFor,
				TrainingInterval: trainingInterval,
				MaxPolls:         maxPolls,
			}
			var err error
			if start != "" {
				if replayOpts.Start, err = dataset.ParseTimestamp(start); err != nil {
					return err
				}
			}
			if end != "" {
				if replayOpts.End, err = dataset.ParseTimestamp(end); err != nil {
					return err
				}
			}

			datasets, err := loadDatasets(paths)
			if err != nil {
				return err
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			replayOpts.UpdateMode = a.mode

			reports, err := poller.ReplayAll(cmd.Context(), a.poller(), datasets, replayOpts, a.cfg.Concurrency)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			reporter := ui.NewReporter(out)
			for i, report := range reports {
				if i > 0 {
					fmt.Fprintln(out)
				}
				reporter.ReplaySummary(report)
			}

			if len(reports) > 1 {
				from, to := reportSpan(reports)
				overall := a.history.GetAggregatedStats(from, to)
				fmt.Fprintf(out, "\nOverall: %d recorded polls over %d resources, hit rate %.1f%%\n",
					overall.TotalPolls, len(overall.TopResources), overall.HitRate*100)
			}
			if name, stats := a.tracker.MostSelected(); stats != nil {
				fmt.Fprintf(out, "Most selected delegate: %s (%d selections, average interval %s)\n",
					name, stats.Selections, ui.FormatMinutes(int(stats.AverageInterval)))
			}

			if metricsOut != "" {
				if err := writeMetrics(a, metricsOut); err != nil {
					return err
				}
			}
			if historyOut != "" {
				data, err := a.history.ExportJSON()
				if err != nil {
					return fmt.Errorf("failed to export poll history: %w", err)
				}
				if err := os.WriteFile(historyOut, data, 0644); err != nil {
					return fmt.Errorf("failed to write poll history: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&paths, "dataset", "d", nil, "Dataset file (.yaml, .yml, .csv, .txt), repeatable")
	cmd.Flags().StringVar(&start, "start", "", "First poll (default: first item of each dataset)")
	cmd.Flags().StringVar(&end, "end", "", "Last possible poll (default: last item of each dataset)")
	cmd.Flags().DurationVar(&trainFor, "train-for", 0, "Training period from the first poll, e.g. 168h (training strategies only)")
	cmd.Flags().IntVar(&trainingInterval, "training-interval", 0, "Poll interval while training in minutes (default: 1440)")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "Stop each replay after this many polls")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write prometheus metrics to this file")
	cmd.Flags().StringVar(&historyOut, "history-out", "", "Write every poll decision as JSON to this file")

	return cmd
}

// createTrainCommand creates the train subcommand
func createTrainCommand(opts *rootOptions) *cobra.Command {
	var (
		path     string
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "train --dataset FILE --db PATH",
		Short: "Train hourly arrival rates",
		Long: `Counts the items of a dataset per hour of day and stores the average arrivals
per hour in the model database, where indhist and indhist-ttl pick them up.
The training period defaults to the whole days covered by the dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--dataset is required")
			}
			ds, err := dataset.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load dataset %s: %w", path, err)
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.DBPath == "" {
				return fmt.Errorf("train requires a model database (--db or db_path)")
			}

			periodStart := ds.First().Truncate(24 * time.Hour)
			periodEnd := ds.Last().Truncate(24 * time.Hour).Add(24 * time.Hour)
			if from != "" {
				if periodStart, err = dataset.ParseTimestamp(from); err != nil {
					return err
				}
			}
			if to != "" {
				if periodEnd, err = dataset.ParseTimestamp(to); err != nil {
					return err
				}
			}

			rates, err := strategy.TrainHourlyRates(ds.Items, periodStart, periodEnd)
			if err != nil {
				return err
			}
			if err := a.store.SaveHourlyRates(ds.ID, rates); err != nil {
				return err
			}

			ui.NewReporter(cmd.OutOrStdout()).TrainedRates(ds.ID, rates)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "dataset", "d", "", "Dataset file (.yaml, .yml, .csv, .txt)")
	cmd.Flags().StringVar(&from, "from", "", "Start of the training period")
	cmd.Flags().StringVar(&to, "to", "", "End of the training period (exclusive)")

	return cmd
}

// createModelsCommand creates the models subcommand
func createModelsCommand(opts *rootOptions) *cobra.Command {
	var cleanup time.Duration

	cmd := &cobra.Command{
		Use:   "models --db PATH [--cleanup AGE]",
		Short: "Inspect the model database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			store, ok := a.store.(*modelstore.SQLiteStore)
			if !ok {
				return fmt.Errorf("models requires a model database (--db or db_path)")
			}

			out := cmd.OutOrStdout()
			if cleanup > 0 {
				removed, err := store.CleanupStaleModels(cleanup)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d stale models\n", removed)
			}

			stats, err := store.Stats()
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(stats))
			for table := range stats {
				tables = append(tables, table)
			}
			sort.Strings(tables)

			fmt.Fprintf(out, "Database: %s\n", store.Path())
			for _, table := range tables {
				fmt.Fprintf(out, "  %s: %d\n", table, stats[table])
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&cleanup, "cleanup", 0, "Remove models not updated within this age, e.g. 720h")

	return cmd
}

func loadDatasets(paths []string) ([]*dataset.Dataset, error) {
	datasets := make([]*dataset.Dataset, 0, len(paths))
	for _, path := range paths {
		ds, err := dataset.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func newState(ds *dataset.Dataset, mode schedule.UpdateMode) *schedule.State {
	state := schedule.NewState(ds.ID, mode)
	state.WindowSize = ds.WindowSize
	state.TTL = ds.TTL
	return state
}

// reportSpan returns the half open range covering every replay
func reportSpan(reports []*poller.ReplayReport) (time.Time, time.Time) {
	from, to := reports[0].Start, reports[0].End
	for _, report := range reports[1:] {
		if report.Start.Before(from) {
			from = report.Start
		}
		if report.End.After(to) {
			to = report.End
		}
	}
	return from, to.Add(time.Nanosecond)
}

func writeMetrics(a *app, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()

	if err := a.recorder.WriteText(f); err != nil {
		return err
	}
	return nil
}
