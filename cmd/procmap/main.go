package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/procmap/internal/logging"
	"github.com/rendis/procmap/internal/override"
	"github.com/rendis/procmap/internal/store"
	"github.com/rendis/procmap/internal/telemetry"
	"github.com/rendis/procmap/pkg/mcp"
)

const usage = `usage: procmap [command]

commands:
  serve     run the MCP server on stdio (default)
  migrate   apply database migrations and exit
  version   print the version`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "migrate":
		err = migrate()
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "procmap: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes JSON to stderr; stdout belongs to the MCP transport.
func newLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(level)})
	return slog.New(logging.NewCorrelationHandler(h))
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.dbURI())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func migrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	return st.Close()
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := telemetry.NewPrometheus(reg)
	if err != nil {
		return err
	}

	// Stored tables win; files in OverridesDir seed resources never saved.
	var source override.Source = st
	if cfg.OverridesDir != "" {
		source = override.ChainSource{st, override.DirSource{Dir: cfg.OverridesDir}}
	}
	provider := override.NewProvider(source,
		override.WithProviderLogger(logger),
		override.WithCreator(func(ctx context.Context, resourceID string) (*override.Table, error) {
			t, err := override.NewTable(nil)
			if err != nil {
				return nil, err
			}
			if _, err := st.SaveOverrideTable(ctx, resourceID, t); err != nil {
				return nil, err
			}
			return t, nil
		}),
	)

	srv, err := mcp.NewServer(mcp.ServerDeps{
		MatcherConfig: cfg.Matcher,
		Overrides:     provider,
		Store:         st,
		Recorder:      recorder,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metrics := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
	}

	logger.Info("procmap started",
		slog.String("version", version),
		slog.String("db_path", cfg.DBPath),
		slog.String("overrides_dir", cfg.OverridesDir),
	)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("procmap stopped")
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
