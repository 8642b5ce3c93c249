// Package config loads the optional TOML configuration file. Every key maps
// onto a command-line flag, and flags set explicitly on the command line win
// over the file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// File is the on-disk configuration.
type File struct {
	Listen   ListenConfig   `toml:"listen"`
	Upstream UpstreamConfig `toml:"upstream"`
	Timeouts TimeoutConfig  `toml:"timeouts"`
	Log      LogConfig      `toml:"log"`

	// TCPKeepAlive uses the --tcp-keepalive syntax: on|off|idle:intvl:cnt.
	TCPKeepAlive string `toml:"tcp_keepalive"`
}

// ListenConfig holds listener addresses. Empty disables a listener.
type ListenConfig struct {
	HTTP   string `toml:"http"`
	TProxy string `toml:"tproxy"`
	Debug  string `toml:"debug"`
}

// UpstreamConfig selects how and where requests are relayed.
type UpstreamConfig struct {
	URL    string `toml:"url"`
	Origin string `toml:"origin"`
	Strict *bool  `toml:"strict"`
}

// TimeoutConfig holds durations written as Go duration strings ("10s").
type TimeoutConfig struct {
	Dial        Duration `toml:"dial"`
	Negotiation Duration `toml:"negotiation"`
	IO          Duration `toml:"io"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Validate reports whether Level and Format name a known log level and
// format. Empty values select the defaults. Case is ignored.
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log level must be one of: debug, info, warn, error; got %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log format must be one of: json, text; got %q", c.Format)
	}
	return nil
}

// Duration is a time.Duration read from a TOML string.
type Duration struct {
	time.Duration
	set bool
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", b)
	}
	d.Duration, d.set = v, true
	return nil
}

// Load reads and validates the TOML file at path. Unknown keys are errors.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	return f.Log.Validate()
}

// FlagValues returns the file's settings keyed by flag name, omitting keys
// the file leaves unset.
func (f *File) FlagValues() map[string]string {
	out := make(map[string]string)
	set := func(name, v string) {
		if v != "" {
			out[name] = v
		}
	}
	duration := func(name string, d Duration) {
		if d.set {
			out[name] = d.String()
		}
	}

	set("http-listen", f.Listen.HTTP)
	set("tproxy-listen", f.Listen.TProxy)
	set("debug-listen", f.Listen.Debug)
	set("upstream", f.Upstream.URL)
	set("origin", f.Upstream.Origin)
	if f.Upstream.Strict != nil {
		out["strict"] = strconv.FormatBool(*f.Upstream.Strict)
	}
	duration("dial-timeout", f.Timeouts.Dial)
	duration("negotiation-timeout", f.Timeouts.Negotiation)
	duration("io-timeout", f.Timeouts.IO)
	set("tcp-keepalive", f.TCPKeepAlive)
	set("log-level", f.Log.Level)
	set("log-format", f.Log.Format)

	return out
}
