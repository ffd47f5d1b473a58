package main

import (
	"fmt"
	"io"
	"os"

	"github.com/shaneisley/cadence/pkg/config"
	"github.com/shaneisley/cadence/pkg/history"
	"github.com/shaneisley/cadence/pkg/logging"
	"github.com/shaneisley/cadence/pkg/metrics"
	"github.com/shaneisley/cadence/pkg/modelstore"
	"github.com/shaneisley/cadence/pkg/poller"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// historySize bounds the poll records kept per invocation
const historySize = 100_000

// flagKeys maps command line flags to configuration keys
var flagKeys = []struct {
	flag string
	key  string
}{
	{"strategy", "strategy"},
	{"lowest", "lowest_interval"},
	{"highest", "highest_interval"},
	{"spread", "spread"},
	{"update-mode", "update_mode"},
	{"fixed-interval", "fixed_interval"},
	{"learned-mode", "learned_mode"},
	{"theta", "theta"},
	{"weight-m", "weight_m"},
	{"t-burst", "t_burst"},
	{"time-window-hours", "time_window_hours"},
	{"ttl-mode", "ttl_mode"},
	{"training", "training"},
	{"db", "db_path"},
	{"log-level", "log_level"},
	{"log-format", "log_format"},
	{"concurrency", "concurrency"},
	{"rate-limit", "rate_limit"},
}

// rootOptions holds the global flags
type rootOptions struct {
	flags       config.Config
	configFile  string
	debugConfig bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cadence",
		Short: "Adaptive poll interval scheduling for feeds",
		Long: `cadence decides how many minutes to wait before checking a feed again,
based on when its items were published.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (CADENCE_*)
3. Configuration file
4. Default values

The tool looks for configuration files in the following order:
1. File specified by --config flag
2. .cadence.toml, cadence.toml, .cadence.yaml or cadence.yaml in the current directory
3. The same names in the home directory

Every configuration key can be set through the environment, for example
CADENCE_STRATEGY, CADENCE_HIGHEST_INTERVAL or CADENCE_DB_PATH.

EXAMPLES:
  # Next poll interval for a feed using the hourly histogram strategy
  cadence next --strategy indhist --db models.db --dataset feed.yaml

  # Replay several feeds and compare how many items were missed
  cadence simulate --strategy mavpr --dataset a.yaml --dataset b.csv

  # Train hourly arrival rates from a week of history
  cadence train --dataset feed.yaml --db models.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Configuration file path")
	flags.BoolVar(&opts.debugConfig, "debug-config", false, "Show configuration resolution debug information")

	flags.StringVarP(&opts.flags.Strategy, "strategy", "s", "", "Strategy name (default: mav, see 'cadence strategies')")
	flags.IntVar(&opts.flags.LowestInterval, "lowest", 0, "Lowest interval in minutes (default: 1, -1 disables)")
	flags.IntVar(&opts.flags.HighestInterval, "highest", 0, "Highest interval in minutes (default: 1440, -1 disables)")
	flags.BoolVar(&opts.flags.Spread, "spread", false, "Spread intervals clamped to the highest bound")
	flags.StringVar(&opts.flags.UpdateMode, "update-mode", "", "Update mode: min_delay or max_delay")
	flags.IntVar(&opts.flags.FixedInterval, "fixed-interval", 0, "Interval of the fixed strategy in minutes (default: 60)")
	flags.StringVar(&opts.flags.LearnedMode, "learned-mode", "", "Learning mode of fixed-learned: window or poll")
	flags.Float64Var(&opts.flags.Theta, "theta", 0, "Expected items before the next poll (default: 0.5)")
	flags.Float64Var(&opts.flags.WeightM, "weight-m", 0, "Weight of the adaptive TTL (default: 0.2)")
	flags.Float64Var(&opts.flags.TBurst, "t-burst", 0, "Burst threshold of indhist-ttl (default: 2)")
	flags.IntVar(&opts.flags.TimeWindowHours, "time-window-hours", 0, "Burst window of indhist-ttl in hours (default: 24)")
	flags.StringVar(&opts.flags.TTLMode, "ttl-mode", "", "TTL handling of mav-sync: ignore, floor or override")
	flags.BoolVar(&opts.flags.Training, "training", false, "Run polls in training mode")
	flags.StringVar(&opts.flags.DBPath, "db", "", "SQLite model database (default: in memory)")
	flags.StringVar(&opts.flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.flags.LogFormat, "log-format", "", "Log format: console or json")
	flags.IntVar(&opts.flags.Concurrency, "concurrency", 0, "Resources processed in parallel (default: 4, 0 = unlimited)")
	flags.Float64Var(&opts.flags.RateLimit, "rate-limit", 0, "Maximum polls observed per second (0 = no limit)")

	rootCmd.AddCommand(
		createStrategiesCommand(),
		createNextCommand(opts),
		createSimulateCommand(opts),
		createTrainCommand(opts),
		createModelsCommand(opts),
	)
	return rootCmd
}

// loadConfiguration loads configuration with full precedence support
func loadConfiguration(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	configPath := opts.configFile
	if configPath == "" {
		cwd, _ := os.Getwd()
		if found := config.FindConfigFile(cwd); found != "" {
			configPath = found
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configPath = config.FindConfigFile(homeDir)
		}
	}

	explicitFields := make(map[string]bool)
	for _, fk := range flagKeys {
		if cmd.Flags().Changed(fk.flag) {
			explicitFields[fk.key] = true
		}
	}

	cfg, debugInfo, err := config.Load(configPath, &opts.flags, explicitFields, opts.debugConfig)
	if err != nil {
		return nil, err
	}

	if opts.debugConfig && debugInfo != nil {
		debugInfo.PrintDebugInfo(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return cfg, nil
}

// app wires the configured components of one invocation
type app struct {
	cfg      *config.Config
	mode     schedule.UpdateMode
	logger   *zap.Logger
	store    modelstore.Store
	strategy strategy.Strategy
	recorder *metrics.Recorder
	tracker  *metrics.SelectionTracker
	history  *history.PollHistory
}

func newApp(cfg *config.Config, logOutput io.Writer) (*app, error) {
	logCfg := cfg.LoggingConfig()
	logCfg.Output = logOutput
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	var store modelstore.Store
	if cfg.DBPath != "" {
		store, err = modelstore.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open model database: %w", err)
		}
	} else {
		store = modelstore.NewMemoryStore()
	}

	params, err := cfg.StrategyParams()
	if err != nil {
		store.Close()
		return nil, err
	}
	s, err := strategy.Build(params, store, strategy.WithLogger(logging.WithComponent(logger, "strategy")))
	if err != nil {
		store.Close()
		return nil, err
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		mode:     mode,
		logger:   logger,
		store:    store,
		strategy: s,
		recorder: recorder,
		tracker:  metrics.NewSelectionTracker(),
		history:  history.NewPollHistory(historySize, 0),
	}, nil
}

func (a *app) poller() *poller.Poller {
	return poller.New(a.strategy,
		poller.WithStore(a.store),
		poller.WithRecorder(a.recorder),
		poller.WithSelectionTracker(a.tracker),
		poller.WithHistory(a.history),
		poller.WithLogger(a.logger),
		poller.WithTraining(a.cfg.Training),
	)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.LogError(a.logger, "close model store", err)
	}
	_ = a.logger.Sync()
}

// setup loads the configuration and builds the app for a subcommand
func setup(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfiguration(cmd, opts)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, cmd.ErrOrStderr())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
