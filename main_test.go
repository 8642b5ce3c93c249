package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func TestParseTCPKeepAlive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "45:45", wantErr: true},
		{in: "0:45:3", wantErr: true},
		{in: "45:x:3", wantErr: true},
		{in: "45:45:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseTCPKeepAlive(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level    string
		format   string
		enabled  slog.Level
		disabled []slog.Level
		wantJSON bool
	}{
		{level: "debug", format: "text", enabled: slog.LevelDebug},
		{level: "INFO", format: "json", enabled: slog.LevelInfo, disabled: []slog.Level{slog.LevelDebug}, wantJSON: true},
		{level: "warn", enabled: slog.LevelWarn, disabled: []slog.Level{slog.LevelInfo}},
		{level: "error", enabled: slog.LevelError, disabled: []slog.Level{slog.LevelWarn}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			l, err := newLogger(tt.level, tt.format)
			if err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()
			if !l.Enabled(ctx, tt.enabled) {
				t.Errorf("level %v not enabled", tt.enabled)
			}
			for _, lvl := range tt.disabled {
				if l.Enabled(ctx, lvl) {
					t.Errorf("level %v enabled", lvl)
				}
			}
			_, isJSON := l.Handler().(*slog.JSONHandler)
			if isJSON != tt.wantJSON {
				t.Errorf("json handler=%v want %v", isJSON, tt.wantJSON)
			}
		})
	}
}

func TestNewLoggerRejectsUnknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   string
		format  string
		wantErr string
	}{
		{level: "bogus", format: "text", wantErr: "log level"},
		{level: "info", format: "xml", wantErr: "log format"},
	}

	for _, tt := range tests {
		l, err := newLogger(tt.level, tt.format)
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("newLogger(%q, %q) error = %v, want containing %q", tt.level, tt.format, err, tt.wantErr)
		}
		if l != nil {
			t.Errorf("newLogger(%q, %q) returned a logger with an error", tt.level, tt.format)
		}
	}
}

func TestApplyConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hoprelay.toml")
	data := `
[listen]
http = "127.0.0.1:8080"

[upstream]
url = "http://proxy.internal:3128"
strict = true

[timeouts]
dial = "3s"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	httpListen := fs.String("http-listen", "", "")
	_ = fs.String("tproxy-listen", "", "")
	_ = fs.String("debug-listen", "", "")
	upstream := fs.String("upstream", "direct://", "")
	_ = fs.String("origin", "", "")
	strict := fs.Bool("strict", false, "")
	dialTimeout := fs.Duration("dial-timeout", 10*time.Second, "")
	_ = fs.Duration("negotiation-timeout", 10*time.Second, "")
	_ = fs.Duration("io-timeout", 0, "")
	_ = fs.String("tcp-keepalive", "45:45:3", "")
	_ = fs.String("log-level", "info", "")
	_ = fs.String("log-format", "text", "")

	if err := fs.Parse([]string{"--upstream", "socks5://cli.internal:1080"}); err != nil {
		t.Fatal(err)
	}
	if err := applyConfigFile(fs, path); err != nil {
		t.Fatal(err)
	}

	if *httpListen != "127.0.0.1:8080" {
		t.Errorf("http-listen=%q", *httpListen)
	}
	if *upstream != "socks5://cli.internal:1080" {
		t.Errorf("command line should win, upstream=%q", *upstream)
	}
	if !*strict {
		t.Error("strict not applied")
	}
	if *dialTimeout != 3*time.Second {
		t.Errorf("dial-timeout=%v", *dialTimeout)
	}
}

func TestDefaultUpstream(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	if got := defaultUpstream(); got != "direct://" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("all_proxy", "socks5://127.0.0.1:1080")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1080" {
		t.Fatalf("got %q", got)
	}
}
