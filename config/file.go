package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/tickhost/errors"
)

// fileConfig mirrors Config as it appears in a file. Nil fields were not
// present and leave the current value untouched.
type fileConfig struct {
	Source *struct {
		Path *string `toml:"path" yaml:"path"`
		URL  *string `toml:"url" yaml:"url"`
		Wait *bool   `toml:"wait" yaml:"wait"`
	} `toml:"source" yaml:"source"`

	Exports *struct {
		Create  *string `toml:"create" yaml:"create"`
		Advance *string `toml:"advance" yaml:"advance"`
		Poll    *string `toml:"poll" yaml:"poll"`
	} `toml:"exports" yaml:"exports"`

	CacheDir         *string `toml:"cache_dir" yaml:"cache_dir"`
	MemoryLimitPages *uint32 `toml:"memory_limit_pages" yaml:"memory_limit_pages"`
	WASI             *bool   `toml:"wasi" yaml:"wasi"`

	Period                 *string `toml:"period" yaml:"period"`
	Overlap                *string `toml:"overlap" yaml:"overlap"`
	OnFailure              *string `toml:"on_failure" yaml:"on_failure"`
	MaxConsecutiveFailures *uint64 `toml:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	PollInterval           *string `toml:"poll_interval" yaml:"poll_interval"`

	StatusAddr     *string `toml:"status_addr" yaml:"status_addr"`
	ReportInterval *string `toml:"report_interval" yaml:"report_interval"`
	EventsURL      *string `toml:"events_url" yaml:"events_url"`
	LogLevel       *string `toml:"log_level" yaml:"log_level"`
	LogFormat      *string `toml:"log_format" yaml:"log_format"`
}

// Load builds a configuration from defaults, the file at path (if any) and
// TICKHOST_* environment variables, in that order, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(EnvPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the settings present in a .toml, .yaml or .yml file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("read %s", path).
			Cause(err).
			Build()
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return errors.ParseFailed(path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return errors.ParseFailed(path, fmt.Errorf("unknown key %q", undecoded[0].String()))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && err != io.EOF {
			return errors.ParseFailed(path, err)
		}
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unsupported config format %q", ext))
	}

	return c.overlay(&raw)
}

func (c *Config) overlay(raw *fileConfig) error {
	if s := raw.Source; s != nil {
		setString(&c.Source.Path, s.Path)
		setString(&c.Source.URL, s.URL)
		if s.Wait != nil {
			c.Source.Wait = *s.Wait
		}
	}
	if e := raw.Exports; e != nil {
		setString(&c.Exports.Create, e.Create)
		setString(&c.Exports.Advance, e.Advance)
		setString(&c.Exports.Poll, e.Poll)
	}

	setString(&c.CacheDir, raw.CacheDir)
	if raw.MemoryLimitPages != nil {
		c.MemoryLimitPages = *raw.MemoryLimitPages
	}
	if raw.WASI != nil {
		c.WASI = *raw.WASI
	}

	setString(&c.Overlap, raw.Overlap)
	setString(&c.OnFailure, raw.OnFailure)
	if raw.MaxConsecutiveFailures != nil {
		c.MaxConsecutiveFailures = *raw.MaxConsecutiveFailures
	}

	setString(&c.StatusAddr, raw.StatusAddr)
	setString(&c.EventsURL, raw.EventsURL)
	setString(&c.LogLevel, raw.LogLevel)
	setString(&c.LogFormat, raw.LogFormat)

	for _, d := range []struct {
		dst  *time.Duration
		src  *string
		name string
	}{
		{&c.Period, raw.Period, "period"},
		{&c.PollInterval, raw.PollInterval, "poll_interval"},
		{&c.ReportInterval, raw.ReportInterval, "report_interval"},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.src))
		if err != nil {
			return errors.ParseFailed(d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
