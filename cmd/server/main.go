package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"streamgate/internal/aggregate"
	apihttp "streamgate/internal/api/http"
	"streamgate/internal/app"
	"streamgate/internal/engine"
	"streamgate/internal/httpx"
	"streamgate/internal/media"
	"streamgate/internal/metadata"
	"streamgate/internal/metrics"
	mongorepo "streamgate/internal/repository/mongo"
	"streamgate/internal/sources"
	"streamgate/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "streamgate")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "streamgate"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("downloadDir", cfg.DownloadDir),
		slog.Duration("sessionMaxAge", cfg.SessionMaxAge),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	userStore := mongorepo.NewUserStore(mongoClient, cfg.MongoDatabase, logger)
	addonStore := mongorepo.NewAddonStore(mongoClient, cfg.MongoDatabase)
	libraryStore := mongorepo.NewLibraryStore(mongoClient, cfg.MongoDatabase)
	for name, ensure := range map[string]func(context.Context) error{
		"users":   userStore.EnsureIndexes,
		"addons":  addonStore.EnsureIndexes,
		"library": libraryStore.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed",
				slog.String("collection", name),
				slog.String("error", err.Error()))
		}
	}
	if err := userStore.BootstrapAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Error("admin bootstrap failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions, err := engine.New(engine.Config{
		DataDir:       cfg.DownloadDir,
		MaxAge:        cfg.SessionMaxAge,
		SweepInterval: cfg.EvictionInterval,
	}, logger)
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	bypass := httpx.NewBypass(logger)
	httpClient := httpx.NewClient(logger, bypass)
	metaClient := metadata.NewClient(cfg.MetadataBaseURL, httpClient, logger)

	builtins := []sources.Connector{
		sources.NewMovieIndexClient(cfg.MovieIndexBaseURL, httpClient),
		sources.NewSeriesIndexClient(cfg.SeriesIndexBaseURL, httpClient),
		sources.NewFreeTextClient(cfg.FreeTextBaseURL, httpClient),
		sources.NewTVClient(cfg.TVBaseURL, httpClient),
		sources.NewDirectResolver(),
	}
	aggregator := aggregate.New(addonStore, httpClient, builtins, logger)

	proxy := &media.Proxy{
		FFmpegPath: cfg.FFMPEGPath,
		HelperURL:  cfg.TorrentHelperURL,
		Logger:     logger,
	}

	handler := apihttp.NewServer(
		apihttp.WithLogger(logger),
		apihttp.WithUserStore(userStore),
		apihttp.WithAddonStore(addonStore),
		apihttp.WithLibraryStore(libraryStore),
		apihttp.WithAggregator(aggregator),
		apihttp.WithSessionManager(sessions),
		apihttp.WithMetadata(metaClient),
		apihttp.WithVideoServer(proxy),
		apihttp.WithJSONGetter(httpClient),
		apihttp.WithAuth(cfg.JWTSecret, cfg.TokenTTL),
		apihttp.WithAllowedOrigins(cfg.CORSOrigins),
	)

	go updateSessionMetrics(rootCtx, sessions, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := sessions.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	bypass.Close()
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// updateSessionMetrics refreshes the Prometheus gauges and pushes session
// snapshots to the events websocket.
func updateSessionMetrics(ctx context.Context, sessions *engine.Manager, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, peers, speed := sessions.Stats()
			metrics.ActiveSessions.Set(float64(active))
			metrics.PeersConnected.Set(float64(peers))
			metrics.DownloadSpeedBytes.Set(float64(speed))
			handler.BroadcastSessions(sessions.Snapshot(ctx))
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
