// Package config resolves cadence settings from defaults, a config file,
// CADENCE_ environment variables and command line flags, in that order.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaneisley/cadence/pkg/logging"
	"github.com/shaneisley/cadence/pkg/schedule"
	"github.com/shaneisley/cadence/pkg/strategy"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by cadence
const EnvPrefix = "CADENCE"

// Config holds the scheduler configuration
type Config struct {
	Strategy        string  `mapstructure:"strategy"`
	LowestInterval  int     `mapstructure:"lowest_interval"`
	HighestInterval int     `mapstructure:"highest_interval"`
	Spread          bool    `mapstructure:"spread"`
	UpdateMode      string  `mapstructure:"update_mode"`
	FixedInterval   int     `mapstructure:"fixed_interval"`
	LearnedMode     string  `mapstructure:"learned_mode"`
	Theta           float64 `mapstructure:"theta"`
	WeightM         float64 `mapstructure:"weight_m"`
	TBurst          float64 `mapstructure:"t_burst"`
	TimeWindowHours int     `mapstructure:"time_window_hours"`
	TTLMode         string  `mapstructure:"ttl_mode"`
	Training        bool    `mapstructure:"training"`
	DBPath          string  `mapstructure:"db_path"`
	LogLevel        string  `mapstructure:"log_level"`
	LogFormat       string  `mapstructure:"log_format"`
	Concurrency     int     `mapstructure:"concurrency"`
	RateLimit       float64 `mapstructure:"rate_limit"`
}

// Keys lists every configuration key in display order
var Keys = []string{
	"strategy", "lowest_interval", "highest_interval", "spread", "update_mode",
	"fixed_interval", "learned_mode", "theta", "weight_m", "t_burst",
	"time_window_hours", "ttl_mode", "training", "db_path", "log_level",
	"log_format", "concurrency", "rate_limit",
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors collects every problem found by Validate
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, len(e))
	for i, err := range e {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// ConfigSource represents where a configuration value came from
type ConfigSource int

const (
	SourceDefault ConfigSource = iota
	SourceConfigFile
	SourceEnvironment
	SourceCLIFlag
)

func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceConfigFile:
		return "config file"
	case SourceEnvironment:
		return "environment variable"
	case SourceCLIFlag:
		return "CLI flag"
	default:
		return "unknown"
	}
}

// ConfigDebugInfo holds debugging information about configuration resolution
type ConfigDebugInfo struct {
	Sources map[string]ConfigSource
	Values  map[string]interface{}
}

// Load resolves the configuration. Flags override the other sources only for
// the keys marked in explicitFields, so a flag explicitly set to its zero value
// still wins. Debug info is nil unless debug is set.
func Load(configFile string, flags *Config, explicitFields map[string]bool, debug bool) (*Config, *ConfigDebugInfo, error) {
	var debugInfo *ConfigDebugInfo
	if debug {
		debugInfo = &ConfigDebugInfo{
			Sources: make(map[string]ConfigSource),
			Values:  make(map[string]interface{}),
		}
	}

	v := viper.New()
	setDefaults(v)
	if debug {
		defaults := Defaults()
		debugInfo.record(defaults.values(), SourceDefault, nil)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(configType(configFile))
		if err := v.ReadInConfig(); err != nil {
			return nil, debugInfo, fmt.Errorf("failed to read config file: %w", err)
		}
		if debug {
			for _, key := range Keys {
				if v.InConfig(key) {
					debugInfo.Sources[key] = SourceConfigFile
					debugInfo.Values[key] = v.Get(key)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range Keys {
		if err := v.BindEnv(key, envVar(key)); err != nil {
			return nil, debugInfo, fmt.Errorf("failed to bind %s: %w", key, err)
		}
		if debug {
			if value, ok := os.LookupEnv(envVar(key)); ok && value != "" {
				debugInfo.Sources[key] = SourceEnvironment
				debugInfo.Values[key] = value
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, debugInfo, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flags != nil && explicitFields != nil {
		config = *config.MergeWithExplicitFlags(flags, explicitFields)
		if debug {
			debugInfo.record(flags.values(), SourceCLIFlag, explicitFields)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, debugInfo, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, debugInfo, nil
}

// LoadFromFile loads a configuration file on top of the defaults
func LoadFromFile(configFile string) (*Config, error) {
	config, _, err := Load(configFile, nil, nil, false)
	return config, err
}

// Defaults returns a configuration with default values
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	defaults := strategy.DefaultParams()
	v.SetDefault("strategy", defaults.Name)
	v.SetDefault("lowest_interval", defaults.Bounds.Lowest)
	v.SetDefault("highest_interval", defaults.Bounds.Highest)
	v.SetDefault("spread", false)
	v.SetDefault("update_mode", schedule.MinDelay.String())
	v.SetDefault("fixed_interval", defaults.FixedInterval)
	v.SetDefault("learned_mode", defaults.LearnedMode.String())
	v.SetDefault("theta", defaults.Theta)
	v.SetDefault("weight_m", defaults.WeightM)
	v.SetDefault("t_burst", defaults.TBurst)
	v.SetDefault("time_window_hours", defaults.TimeWindowHours)
	v.SetDefault("ttl_mode", defaults.TTLMode.String())
	v.SetDefault("training", false)
	v.SetDefault("db_path", "")
	v.SetDefault("log_level", string(logging.LogLevelInfo))
	v.SetDefault("log_format", string(logging.FormatConsole))
	v.SetDefault("concurrency", 4)
	v.SetDefault("rate_limit", 0.0)
}

func envVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// values maps every key to its field value
func (c *Config) values() map[string]interface{} {
	return map[string]interface{}{
		"strategy":          c.Strategy,
		"lowest_interval":   c.LowestInterval,
		"highest_interval":  c.HighestInterval,
		"spread":            c.Spread,
		"update_mode":       c.UpdateMode,
		"fixed_interval":    c.FixedInterval,
		"learned_mode":      c.LearnedMode,
		"theta":             c.Theta,
		"weight_m":          c.WeightM,
		"t_burst":           c.TBurst,
		"time_window_hours": c.TimeWindowHours,
		"ttl_mode":          c.TTLMode,
		"training":          c.Training,
		"db_path":           c.DBPath,
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
		"concurrency":       c.Concurrency,
		"rate_limit":        c.RateLimit,
	}
}

// MergeWithExplicitFlags merges configuration with explicitly set flag values
func (c *Config) MergeWithExplicitFlags(flags *Config, explicitFields map[string]bool) *Config {
	result := *c

	if explicitFields["strategy"] {
		result.Strategy = flags.Strategy
	}
	if explicitFields["lowest_interval"] {
		result.LowestInterval = flags.LowestInterval
	}
	if explicitFields["highest_interval"] {
		result.HighestInterval = flags.HighestInterval
	}
	if explicitFields["spread"] {
		result.Spread = flags.Spread
	}
	if explicitFields["update_mode"] {
		result.UpdateMode = flags.UpdateMode
	}
	if explicitFields["fixed_interval"] {
		result.FixedInterval = flags.FixedInterval
	}
	if explicitFields["learned_mode"] {
		result.LearnedMode = flags.LearnedMode
	}
	if explicitFields["theta"] {
		result.Theta = flags.Theta
	}
	if explicitFields["weight_m"] {
		result.WeightM = flags.WeightM
	}
	if explicitFields["t_burst"] {
		result.TBurst = flags.TBurst
	}
	if explicitFields["time_window_hours"] {
		result.TimeWindowHours = flags.TimeWindowHours
	}
	if explicitFields["ttl_mode"] {
		result.TTLMode = flags.TTLMode
	}
	if explicitFields["training"] {
		result.Training = flags.Training
	}
	if explicitFields["db_path"] {
		result.DBPath = flags.DBPath
	}
	if explicitFields["log_level"] {
		result.LogLevel = flags.LogLevel
	}
	if explicitFields["log_format"] {
		result.LogFormat = flags.LogFormat
	}
	if explicitFields["concurrency"] {
		result.Concurrency = flags.Concurrency
	}
	if explicitFields["rate_limit"] {
		result.RateLimit = flags.RateLimit
	}

	return &result
}

// FindConfigFile searches dir for .cadence.toml, cadence.toml, .cadence.yaml
// or cadence.yaml
func FindConfigFile(dir string) string {
	configNames := []string{".cadence.toml", "cadence.toml", ".cadence.yaml", "cadence.yaml"}

	for _, name := range configNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs ValidationErrors

	if !isStrategyName(c.Strategy) {
		errs = append(errs, ValidationError{
			Field:   "strategy",
			Value:   c.Strategy,
			Message: "must be one of " + strings.Join(strategy.Names(), ", "),
		})
	}

	if err := c.Bounds().Validate(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "lowest_interval/highest_interval",
			Value:   fmt.Sprintf("%d/%d", c.LowestInterval, c.HighestInterval),
			Message: err.Error(),
		})
	}

	if _, err := schedule.ParseUpdateMode(c.UpdateMode); err != nil {
		errs = append(errs, ValidationError{Field: "update_mode", Value: c.UpdateMode, Message: "must be 'min_delay' or 'max_delay'"})
	}
	if c.FixedInterval <= 0 {
		errs = append(errs, ValidationError{Field: "fixed_interval", Value: c.FixedInterval, Message: "must be greater than 0"})
	}
	if _, err := strategy.ParseLearnedMode(c.LearnedMode); err != nil {
		errs = append(errs, ValidationError{Field: "learned_mode", Value: c.LearnedMode, Message: "must be 'window' or 'poll'"})
	}
	if c.Theta < 0 {
		errs = append(errs, ValidationError{Field: "theta", Value: c.Theta, Message: "must not be negative"})
	}
	if c.WeightM <= 0 {
		errs = append(errs, ValidationError{Field: "weight_m", Value: c.WeightM, Message: "must be greater than 0"})
	}
	if c.TBurst <= 0 {
		errs = append(errs, ValidationError{Field: "t_burst", Value: c.TBurst, Message: "must be greater than 0"})
	}
	if c.TimeWindowHours <= 0 {
		errs = append(errs, ValidationError{Field: "time_window_hours", Value: c.TimeWindowHours, Message: "must be greater than 0"})
	}
	if _, err := strategy.ParseTTLMode(c.TTLMode); err != nil {
		errs = append(errs, ValidationError{Field: "ttl_mode", Value: c.TTLMode, Message: "must be 'ignore', 'floor' or 'override'"})
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, ValidationError{Field: "log_level", Value: c.LogLevel, Message: "must be debug, info, warn or error"})
	}
	if c.LogFormat != string(logging.FormatJSON) && c.LogFormat != string(logging.FormatConsole) {
		errs = append(errs, ValidationError{Field: "log_format", Value: c.LogFormat, Message: "must be 'json' or 'console'"})
	}
	if c.Concurrency < 0 {
		errs = append(errs, ValidationError{Field: "concurrency", Value: c.Concurrency, Message: "must be non-negative (0 means unlimited)"})
	}
	if c.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "rate_limit", Value: c.RateLimit, Message: "must be non-negative (0 means no limit)"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isStrategyName(name string) bool {
	for _, n := range strategy.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Bounds returns the clamping policy
func (c *Config) Bounds() schedule.Bounds {
	return schedule.Bounds{Lowest: c.LowestInterval, Highest: c.HighestInterval, Spread: c.Spread}
}

// Mode returns the parsed update mode
func (c *Config) Mode() (schedule.UpdateMode, error) {
	return schedule.ParseUpdateMode(c.UpdateMode)
}

// StrategyParams converts the configuration into factory parameters
func (c *Config) StrategyParams() (strategy.Params, error) {
	learned, err := strategy.ParseLearnedMode(c.LearnedMode)
	if err != nil {
		return strategy.Params{}, err
	}
	ttl, err := strategy.ParseTTLMode(c.TTLMode)
	if err != nil {
		return strategy.Params{}, err
	}
	return strategy.Params{
		Name:            c.Strategy,
		Bounds:          c.Bounds(),
		FixedInterval:   c.FixedInterval,
		LearnedMode:     learned,
		TTLMode:         ttl,
		Theta:           c.Theta,
		WeightM:         c.WeightM,
		TBurst:          c.TBurst,
		TimeWindowHours: c.TimeWindowHours,
	}, nil
}

// LoggingConfig returns the logger settings
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.LogLevel),
		Format: logging.Format(c.LogFormat),
	}
}

func (debug *ConfigDebugInfo) record(values map[string]interface{}, source ConfigSource, only map[string]bool) {
	for key, value := range values {
		if only != nil && !only[key] {
			continue
		}
		debug.Sources[key] = source
		debug.Values[key] = value
	}
}

// PrintDebugInfo writes where every value came from
func (debug *ConfigDebugInfo) PrintDebugInfo(w io.Writer) {
	fmt.Fprintln(w, "Configuration Resolution Debug Info:")
	fmt.Fprintln(w, "===================================")

	for _, key := range Keys {
		fmt.Fprintf(w, "%-20s: %-15v (from %s)\n", key, debug.Values[key], debug.Sources[key])
	}
}
