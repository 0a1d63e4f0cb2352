package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/tracking"
)

// ErrInvalidSettings is returned (joined with the individual problems) when
// Settings fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// Recognized values for Settings.Strategy.
const (
	StrategyCooperative = "cooperative"
	StrategyDirect      = "direct"
	StrategyDiff        = "diff"
	StrategyParameters  = "parameters"
)

// Recognized values for Settings.Metrics.
const (
	MetricsNone       = "none"
	MetricsOTel       = "otel"
	MetricsPrometheus = "prometheus"
)

// Settings is the resolved configuration of an eventgate pipeline.
type Settings struct {
	// Enabled turns the publication boundary on. A disabled boundary calls
	// straight through to the wrapped operation.
	Enabled bool `yaml:"enabled"`

	// Strategy selects how touched entities are discovered.
	Strategy string `yaml:"strategy"`

	// LogTiming logs the duration of every wrapped operation at info level.
	LogTiming bool `yaml:"log_timing"`

	// NestedPolicy controls a second start on an already active scope.
	NestedPolicy string `yaml:"nested_policy"`

	Scan    ScanSettings    `yaml:"scan"`
	Metrics string          `yaml:"metrics"`
	Tracing bool            `yaml:"tracing"`
	NATS    NATSSettings    `yaml:"nats"`
	Journal JournalSettings `yaml:"journal"`
}

// ScanSettings bounds the object graph scanner.
type ScanSettings struct {
	MaxDepth         int      `yaml:"max_depth"`
	CaptureDepth     int      `yaml:"capture_depth"`
	ExcludedPackages []string `yaml:"excluded_packages"`
}

// NATSSettings configures the JetStream publisher.
type NATSSettings struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// JournalSettings configures the event journal.
type JournalSettings struct {
	Path string `yaml:"path"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		Strategy:     StrategyCooperative,
		NestedPolicy: tracking.RejectNested.String(),
		Scan: ScanSettings{
			MaxDepth:     10,
			CaptureDepth: 1,
		},
		Metrics: MetricsNone,
		NATS: NATSSettings{
			SubjectPrefix: "events",
			Timeout:       5 * time.Second,
		},
	}
}

// SettingsFrom resolves Settings from c, falling back to DefaultSettings for
// anything missing. The result is not validated.
func SettingsFrom(c Config) Settings {
	def := DefaultSettings()

	scan := c.Sub("scan")
	nats := c.Sub("nats")

	return Settings{
		Enabled:      c.Bool("enabled", def.Enabled),
		Strategy:     c.String("strategy", def.Strategy),
		LogTiming:    c.Bool("log_timing", def.LogTiming),
		NestedPolicy: c.String("nested_policy", def.NestedPolicy),
		Scan: ScanSettings{
			MaxDepth:         scan.Int("max_depth", def.Scan.MaxDepth),
			CaptureDepth:     scan.Int("capture_depth", def.Scan.CaptureDepth),
			ExcludedPackages: scan.StringSlice("excluded_packages", nil),
		},
		Metrics: c.String("metrics", def.Metrics),
		Tracing: c.Bool("tracing", def.Tracing),
		NATS: NATSSettings{
			URL:           nats.String("url", def.NATS.URL),
			SubjectPrefix: nats.String("subject_prefix", def.NATS.SubjectPrefix),
			Timeout:       nats.Duration("timeout", def.NATS.Timeout),
		},
		Journal: JournalSettings{
			Path: c.Sub("journal").String("path", ""),
		},
	}
}

// LoadSettings reads, resolves and validates the settings file at path.
func LoadSettings(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := SettingsFrom(c)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports every problem with s at once.
func (s Settings) Validate() error {
	var errs []error

	if !slices.Contains([]string{StrategyCooperative, StrategyDirect, StrategyDiff, StrategyParameters}, s.Strategy) {
		errs = append(errs, fmt.Errorf("unknown strategy %q", s.Strategy))
	}
	if _, err := tracking.ParseNestedPolicy(s.NestedPolicy); err != nil {
		errs = append(errs, fmt.Errorf("nested_policy %q: %w", s.NestedPolicy, err))
	}
	if !slices.Contains([]string{"", MetricsNone, MetricsOTel, MetricsPrometheus}, s.Metrics) {
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", s.Metrics))
	}
	if s.Scan.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("scan.max_depth must not be negative, got %d", s.Scan.MaxDepth))
	}
	if s.Scan.CaptureDepth < 0 {
		errs = append(errs, fmt.Errorf("scan.capture_depth must not be negative, got %d", s.Scan.CaptureDepth))
	}
	if s.NATS.Timeout < 0 {
		errs = append(errs, fmt.Errorf("nats.timeout must not be negative, got %s", s.NATS.Timeout))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidSettings}, errs...)...)
}

// Policy returns the parsed nested-start policy. Invalid values fall back to
// rejecting nested starts.
func (s Settings) Policy() tracking.NestedPolicy {
	p, err := tracking.ParseNestedPolicy(s.NestedPolicy)
	if err != nil {
		return tracking.RejectNested
	}
	return p
}
