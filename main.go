package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/hoprelay/internal/config"
	"github.com/die-net/hoprelay/internal/dialer"
	"github.com/die-net/hoprelay/internal/metrics"
	"github.com/die-net/hoprelay/internal/proxy"
	"github.com/die-net/hoprelay/internal/tproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = pflag.String("config", "", "Optional TOML config file. Flags given on the command line override it.")
		httpListen   = pflag.String("http-listen", "", "HTTP proxy listen address (e.g. 127.0.0.1:8080). Empty disables.")
		tproxyListen = pflag.String("tproxy-listen", "", "Transparent HTTP relay listen address (e.g. 127.0.0.1:1234). Empty disables.")

		upstream = pflag.String("upstream", defaultUpstream(), "How to reach upstream servers: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")
		origin   = pflag.String("origin", "", "Relay every request to this host[:port] instead of the request's host")
		strict   = pflag.Bool("strict", false, "Reject requests whose fields are unsafe to forward verbatim")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for reading a request head and for upstream proxy handshakes")
		ioTimeout          = pflag.Duration("io-timeout", 0, "Deadline for a whole relayed exchange or tunnel. 0 disables.")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		logLevel           = pflag.String("log-level", "info", "Log level: debug|info|warn|error")
		logFormat          = pflag.String("log-format", "text", "Log format: text|json")
	)

	if !tproxy.IsSupported {
		_ = pflag.CommandLine.MarkHidden("tproxy-listen")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if *configPath != "" {
		if err := applyConfigFile(pflag.CommandLine, *configPath); err != nil {
			return err
		}
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		return fmt.Errorf("invalid log settings: %w", err)
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if *httpListen == "" && *tproxyListen == "" {
		return errors.New("no listeners enabled (set at least one of --http-listen, --tproxy-listen)")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := proxy.Config{
		Origin:             *origin,
		Strict:             *strict,
		NegotiationTimeout: *negotiationTimeout,
		IOTimeout:          *ioTimeout,
		KeepAlive:          ka,
		Metrics:            metrics.NewRelay(reg, "hoprelay"),
		Logger:             logger,
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          cfg.KeepAlive,
	}

	cfg.Dialer, err = dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		debugLn, err := proxy.ListenTCP("tcp", *debugListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", *debugListen)
	}

	if *httpListen != "" {
		ln, err := proxy.ListenTCP("tcp", *httpListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := proxy.NewHTTPProxyServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("http proxy serve: %w", err)
			}
			return nil
		})
		logger.Info("http proxy listening", "addr", *httpListen, "upstream", *upstream, "origin", *origin)
	}

	if *tproxyListen != "" {
		ln, err := tproxy.ListenTransparentTCP(*tproxyListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
			_ = tsrv.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		logger.Info("tproxy listening", "addr", *tproxyListen)
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

// applyConfigFile loads path and sets every flag it names that was not
// given on the command line.
func applyConfigFile(fs *pflag.FlagSet, path string) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	for name, v := range f.FlagValues() {
		if fs.Changed(name) {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("config %s: %s: %w", path, name, err)
		}
	}
	return nil
}

// newLogger builds the stderr logger. Unknown levels and formats are
// rejected with the same message a config file gets.
func newLogger(level, format string) (*slog.Logger, error) {
	if err := (config.LogConfig{Level: level, Format: format}).Validate(); err != nil {
		return nil, err
	}

	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h), nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

// defaultUpstream honours ALL_PROXY, which hoprelay shares with curl and
// most HTTP clients.
func defaultUpstream() string {
	for _, k := range []string{"ALL_PROXY", "all_proxy"} {
		if p := os.Getenv(k); p != "" {
			return p
		}
	}
	return "direct://"
}
