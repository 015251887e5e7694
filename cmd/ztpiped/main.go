// ztpiped -- runs the ZeroTier-overlay message transport adapter as a
// standalone daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/adminapi"
	"github.com/ztpipe/ztpipe/internal/config"
	"github.com/ztpipe/ztpipe/internal/overlay"
	"github.com/ztpipe/ztpipe/internal/ztmetrics"
	"github.com/ztpipe/ztpipe/internal/ztproto"
	appversion "github.com/ztpipe/ztpipe/internal/version"
	"github.com/ztpipe/ztpipe/internal/zturl"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("ztpiped starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := ztmetrics.NewCollector(reg)

	host, err := overlay.NewHost(overlay.NewNullNode(0), overlay.HostConfig{
		Home:               cfg.Overlay.Home,
		DefaultRecvMaxSize: cfg.Overlay.DefaultRecvMaxSize,
	}, collector, logger)
	if err != nil {
		logger.Error("failed to start overlay host", slog.String("error", err.Error()))
		return 1
	}
	defer host.Close()

	wireStateMetrics(host, collector)

	if err := runServers(cfg, host, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("ztpiped exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("ztpiped stopped")
	return 0
}

// wireStateMetrics registers a StateCallback that reports pipe lifecycle
// transitions to the Prometheus collector at startup.
func wireStateMetrics(host *overlay.Host, collector *ztmetrics.Collector) {
	host.OnStateChange(func(change ztproto.StateChange) {
		if change.Kind != "pipe" {
			return
		}
		switch change.NewState {
		case ztproto.PipeLive.String():
			collector.PipeEstablished(change.NWID)
		case ztproto.PipeDead.String():
			collector.PipeClosed(change.NWID)
		}
	})
}

// runServers sets up and runs the admin and metrics HTTP servers, the
// overlay Host's recv/scheduler loops, and declarative endpoint
// reconciliation, using an errgroup with signal-aware context for graceful
// shutdown.
func runServers(
	cfg *config.Config,
	host *overlay.Host,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	adminSrv := newAdminServer(cfg.Admin, host, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return host.Run(gCtx)
	})

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, host, logger)

	reconcileEndpoints(host, cfg, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	host *overlay.Host,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, host, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload -- log level + declarative endpoint reconciliation
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	host *overlay.Host,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, host, logger)
		}
	}
}

func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	host *overlay.Host,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	reconcileEndpoints(host, newCfg, logger)
}

// reconcileEndpoints brings up every declarative listener and dialer from
// cfg. Each call binds every listener and dials every dialer in cfg; it
// does not skip endpoints already brought up by an earlier call, and it
// does not tear down endpoints removed from a reloaded config.
func reconcileEndpoints(host *overlay.Host, cfg *config.Config, logger *slog.Logger) {
	for _, lc := range cfg.Listeners {
		target, err := zturl.Parse(lc.URL)
		if err != nil {
			logger.Error("invalid listener url, skipping",
				slog.String("url", lc.URL), slog.String("error", err.Error()))
			continue
		}

		ep, err := host.Bind(ztproto.ModeListen, target.NWID, target.Node, target.Port, lc.Protocol, lc.RecvMaxSize)
		if err != nil {
			logger.Error("failed to bind listener, skipping",
				slog.String("url", lc.URL), slog.String("error", err.Error()))
			continue
		}

		if err := host.Accept(ep, func(p *ztproto.Pipe, err error) {
			if err != nil {
				logger.Warn("listener accept failed", slog.String("url", lc.URL), slog.String("error", err.Error()))
				return
			}
			logger.Info("accepted pipe", slog.String("url", lc.URL), slog.String("remote", p.RemoteAddr().String()))
		}); err != nil {
			logger.Error("failed to register accept, skipping",
				slog.String("url", lc.URL), slog.String("error", err.Error()))
			continue
		}

		logger.Info("listener bound", slog.String("url", lc.URL))
	}

	for _, dc := range cfg.Dialers {
		target, err := zturl.Parse(dc.URL)
		if err != nil {
			logger.Error("invalid dialer url, skipping",
				slog.String("url", dc.URL), slog.String("error", err.Error()))
			continue
		}

		ep, err := host.Bind(ztproto.ModeDial, target.NWID, 0, 0, dc.Protocol, dc.RecvMaxSize)
		if err != nil {
			logger.Error("failed to bind dialer, skipping",
				slog.String("url", dc.URL), slog.String("error", err.Error()))
			continue
		}

		remote := addrbook.NewAddr(target.Node, target.Port)
		if err := host.Connect(ep, remote, func(p *ztproto.Pipe, err error) {
			if err != nil {
				logger.Warn("dial failed", slog.String("url", dc.URL), slog.String("error", err.Error()))
				return
			}
			logger.Info("dial completed", slog.String("url", dc.URL), slog.String("remote", p.RemoteAddr().String()))
		}); err != nil {
			logger.Error("failed to start dial, skipping",
				slog.String("url", dc.URL), slog.String("error", err.Error()))
			continue
		}

		logger.Info("dial started", slog.String("url", dc.URL))
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newAdminServer(cfg config.AdminConfig, host *overlay.Host, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	path, handler := adminapi.New(host, logger)
	mux.Handle(path, handler)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
