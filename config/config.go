package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/loader"
	"github.com/wippyai/tickhost/scheduler"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TICKHOST"

// Source selects where the module artifact comes from. Exactly one of
// Path and URL must be set.
type Source struct {
	Path string `env:"SOURCE_PATH"`
	URL  string `env:"SOURCE_URL"`
	Wait bool   `env:"SOURCE_WAIT"`
}

// Exports names the module entry points.
type Exports struct {
	Create  string `env:"EXPORT_CREATE"`
	Advance string `env:"EXPORT_ADVANCE"`
	Poll    string `env:"EXPORT_POLL"`
}

// Config is the complete host configuration.
type Config struct {
	Source  Source
	Exports Exports

	CacheDir         string `env:"CACHE_DIR"`
	MemoryLimitPages uint32 `env:"MEMORY_LIMIT_PAGES"`
	WASI             bool   `env:"WASI"`

	Overlap                string        `env:"OVERLAP"`
	OnFailure              string        `env:"ON_FAILURE"`
	Period                 time.Duration `env:"PERIOD"`
	PollInterval           time.Duration `env:"POLL_INTERVAL"`
	MaxConsecutiveFailures uint64        `env:"MAX_CONSECUTIVE_FAILURES"`

	StatusAddr     string        `env:"STATUS_ADDR"`
	EventsURL      string        `env:"EVENTS_URL"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogFormat      string        `env:"LOG_FORMAT"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Exports: Exports{
			Create:  loader.DefaultExports.Create,
			Advance: loader.DefaultExports.Advance,
			Poll:    loader.DefaultExports.Poll,
		},
		Overlap:      scheduler.Coalesce.String(),
		OnFailure:    scheduler.Halt.String(),
		Period:       scheduler.DefaultPeriod,
		PollInterval: loader.DefaultPollInterval,
		LogLevel:     "info",
		LogFormat:    "console",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Source.Path == "" && c.Source.URL == "":
		return invalid("a module source path or url is required")
	case c.Source.Path != "" && c.Source.URL != "":
		return invalid("source path and url are mutually exclusive")
	}
	if c.Source.URL != "" {
		u, err := url.Parse(c.Source.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(fmt.Sprintf("source url %q must be an absolute http(s) url", c.Source.URL))
		}
		if c.Source.Wait {
			return invalid("source wait applies to path sources only")
		}
	}

	if strings.TrimSpace(c.Exports.Create) == "" || strings.TrimSpace(c.Exports.Advance) == "" {
		return invalid("create and advance export names must not be empty")
	}

	if c.Period <= 0 {
		return invalid(fmt.Sprintf("period must be positive, got %s", c.Period))
	}
	if c.PollInterval <= 0 {
		return invalid(fmt.Sprintf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.ReportInterval < 0 {
		return invalid(fmt.Sprintf("report interval must not be negative, got %s", c.ReportInterval))
	}

	if _, err := scheduler.ParseOverlapPolicy(c.Overlap); err != nil {
		return invalid(err.Error())
	}
	if _, err := scheduler.ParseFailurePolicy(c.OnFailure); err != nil {
		return invalid(err.Error())
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid(fmt.Sprintf("log level: %v", err))
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return invalid(fmt.Sprintf("unknown log format %q", c.LogFormat))
	}

	if c.EventsURL != "" {
		if u, err := url.Parse(c.EventsURL); err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Sprintf("events url %q must be absolute", c.EventsURL))
		}
	}
	return nil
}

func invalid(detail string) error {
	return errors.InvalidInput(errors.PhaseConfig, detail)
}

// LoaderExports converts the configured names for the loader.
func (c *Config) LoaderExports() loader.Exports {
	return loader.Exports{
		Create:  c.Exports.Create,
		Advance: c.Exports.Advance,
		Poll:    c.Exports.Poll,
	}
}

// SchedulerOptions converts the scheduling settings. The configuration must
// be valid.
func (c *Config) SchedulerOptions() []scheduler.Option {
	overlap, _ := scheduler.ParseOverlapPolicy(c.Overlap)
	onFailure, _ := scheduler.ParseFailurePolicy(c.OnFailure)
	return []scheduler.Option{
		scheduler.WithPeriod(c.Period),
		scheduler.WithOverlapPolicy(overlap),
		scheduler.WithFailurePolicy(onFailure),
		scheduler.WithMaxConsecutiveFailures(c.MaxConsecutiveFailures),
	}
}
