package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/Sentinel-Gate/httpbridge/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/httpbridge/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/httpbridge/internal/config"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/interceptor"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
	"github.com/Sentinel-Gate/httpbridge/internal/service"
	"github.com/Sentinel-Gate/httpbridge/internal/service/handlers"
)

// sessionCloseTimeout bounds destroying the remaining sessions on exit.
const sessionCloseTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server",
	Long: `Start the httpbridge server.

Examples:
  # Start with config file settings
  httpbridge start

  # Start with demo routes and debug logging
  httpbridge start --dev

  # Start with a specific config file
  httpbridge --config /path/to/httpbridge.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, demo routes)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(os.Stderr, cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("httpbridge stopped")
	return nil
}

// loadConfig loads the configuration, lets --dev override it, then validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. DevMode always forces debug.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// run wires every component and blocks until ctx is cancelled or the
// transport fails. Sessions still alive afterwards are destroyed with the
// shutdown reason.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	table, err := cfg.RouteTable()
	if err != nil {
		return fmt.Errorf("route table: %w", err)
	}

	registry := service.NewRegistry()
	if err := handlers.RegisterBuiltins(registry); err != nil {
		return err
	}
	if err := checkHandlers(table, registry); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := http.NewMetrics(promReg)

	store := memory.NewSessionStore(memory.WithStoreLogger(logger))
	metrics.ObserveSessions(store)
	store.OnDestroy(func(_ context.Context, sess *session.Session, reason session.DestroyReason) error {
		logger.Debug("session destroyed", "session_id", sess.ID(), "reason", reason, "lifetime", time.Since(sess.CreatedAt()))
		return nil
	})

	watchdog := service.NewWatchdog(store,
		cfg.Session.TTLDuration(service.DefaultSessionTTL),
		cfg.Session.SweepDuration(service.DefaultSweepInterval),
		service.WithWatchdogLogger(logger),
		service.WithSweepObserver(metrics.ObserveSweep),
	)

	interceptors := []interceptor.Interceptor{
		interceptor.NewConnectionInterceptor(logger, metrics.ActiveConnections),
		interceptor.NewSessionInterceptor(store, cfg.Session.CookieName, logger),
	}
	if cfg.Telemetry.TraceStdout {
		tp, err := newTracerProvider(os.Stdout, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		interceptors = append(interceptors, interceptor.NewTracingInterceptor(tp))
	}
	chain := interceptor.NewChain(interceptors,
		interceptor.WithLogger(logger),
		interceptor.WithFailureObserver(metrics.ObserveInterceptorFailure),
	)

	locale, err := language.Parse(cfg.Request.DefaultLocale)
	if err != nil {
		return fmt.Errorf("request.default_locale: %w", err)
	}
	bridge := service.NewBridgeService(service.BridgeConfig{
		Table:      table,
		Registry:   registry,
		Chain:      chain,
		CookieName: cfg.Session.CookieName,
		Request: request.Options{
			DefaultEncoding: cfg.Request.DefaultEncoding,
			DefaultLocale:   locale,
			Reporter:        request.LogReporter(logger),
			MaxBodyBytes:    cfg.Request.MaxBodyBytes,
		},
	}, logger)

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithMetrics(metrics, promReg),
		http.WithHealthChecker(http.NewHealthChecker(store, watchdog, Version)),
		http.WithMaxBodyBytes(cfg.Request.MaxBodyBytes),
	}
	if cfg.Server.TLS.Enabled() {
		opts = append(opts, http.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	transport := http.NewHTTPTransport(bridge, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watchdog.Start(gctx)
		<-gctx.Done()
		watchdog.Stop()
		return nil
	})
	g.Go(func() error {
		return transport.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-transport.Ready():
			printBanner(os.Stderr, Version, transport.Addr(), cfg.Server.TLS.Enabled(), cfg.DevMode, table)
		case <-gctx.Done():
		}
		return nil
	})

	runErr := g.Wait()

	cctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	if n := store.Close(cctx); n > 0 {
		logger.Info("destroyed sessions on shutdown", "count", n)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// checkHandlers fails fast on routes naming handlers nobody registered.
func checkHandlers(table *route.Table, registry *service.Registry) error {
	for _, r := range table.Routes() {
		if _, ok := registry.Lookup(r.Handler); !ok {
			return fmt.Errorf("route %s: %w: %q (known: %s)",
				r.Pattern, service.ErrHandlerNotRegistered, r.Handler, strings.Join(registry.Names(), ", "))
		}
	}
	return nil
}

// newTracerProvider exports spans as JSON lines to w.
func newTracerProvider(w io.Writer, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithBatcher(exporter),
	), nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a startup summary to w.
func printBanner(w io.Writer, version, addr string, tls, dev bool, table *route.Table) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	scheme := "http"
	if tls {
		scheme = "https"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	base := fmt.Sprintf("%s://%s%s", scheme, addr, table.ContextPath())

	modeStr := green + "production" + reset
	if dev {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s%s httpbridge %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "  %-14s %s\n", "Listening:", base)
	fmt.Fprintf(w, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(w, "  %-14s %d\n", "Routes:", table.Len())
	for _, r := range table.Routes() {
		fmt.Fprintf(w, "  %s  %-30s -> %s%s\n", dim, r.Pattern, r.Handler, reset)
	}
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "\n")
}
