package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidcrush/auth"
	"vidcrush/blobs"
	"vidcrush/config"
	"vidcrush/credentials"
	"vidcrush/engine"
	"vidcrush/history"
	"vidcrush/intake"
	"vidcrush/logger"
	"vidcrush/metrics"
	"vidcrush/quality"
	"vidcrush/routes"
	"vidcrush/transcode"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println("vidcrush: compress videos with ffmpeg over HTTP")
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vidcrush: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vidcrush: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogFile, true, level); err != nil {
		fmt.Fprintf(os.Stderr, "vidcrush: failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting vidcrush server initialization")

	if err := os.MkdirAll(config.GetDataDir(), 0755); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}

	logger.Debug("Initializing credentials database")
	creds, err := credentials.Open(config.GetCredentialsDBPath())
	if err != nil {
		logger.Fatalf("Failed to initialize credentials store: %v", err)
	}
	defer creds.Close()
	logger.Info("Credentials database initialized successfully")

	logger.Debug("Initializing history database")
	hist, err := history.Open(config.GetHistoryDBPath())
	if err != nil {
		logger.Fatalf("Failed to initialize history store: %v", err)
	}
	defer hist.Close()
	logger.Info("History database initialized successfully")

	ffmpeg := engine.NewFFmpeg(cfg.FFmpegPath, cfg.WorkspaceDir)
	defer ffmpeg.Close()

	policy := intake.DefaultPolicy()
	policy.TrustPick = cfg.TrustPick

	ctrl := transcode.New(transcode.Options{
		Engine:    ffmpeg,
		Quality:   quality.NewSelector(),
		Policy:    policy,
		Admission: cfg.Admission,
		History:   hist,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The engine is bootstrapped once at startup; a failure is reported by
	// /health and every job, and is not retried.
	if err := ctrl.Start(ctx); err != nil {
		logger.Errorf("Engine unavailable: %v", err)
	} else {
		logger.Infof("Engine ready: %s", ffmpeg.Version())
	}

	registry := blobs.NewRegistry(cfg.ReleaseDelay, cfg.LinkTTL)

	logger.Infof("Starting cleanup routine (records kept for %v)", cfg.RecordRetention)
	go cleanupRoutine(ctx, hist, registry, cfg.RecordRetention)

	server := &routes.Server{
		Controller:     ctrl,
		Blobs:          registry,
		Credentials:    creds,
		History:        hist,
		Auth:           auth.Verifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer, ClockSkew: time.Minute},
		BaseURL:        cfg.BaseURL,
		DefaultDeliver: cfg.DefaultOut,
		MaxUpload:      cfg.MaxUpload,
	}
	if !server.Auth.Enabled() {
		logger.Warn("VIDCRUSH_JWT_SECRET is not set; uploads are not authenticated")
	}

	logger.Info("Registering HTTP routes")
	mux := http.NewServeMux()
	server.Register(mux)
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(config.GetDirectServeBaseDir()))))
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("HTTP routes registered successfully")

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Graceful shutdown failed: %v", err)
		}
	}()

	logger.Infof("vidcrush server starting on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed to start: %v", err)
	}
	ctrl.Wait()
	logger.Info("Server stopped")
}

// cleanupRoutine drops expired history records daily and unfetched blobs
// every minute.
func cleanupRoutine(ctx context.Context, hist *history.Store, registry *blobs.Registry, retention time.Duration) {
	daily := time.NewTicker(24 * time.Hour)
	defer daily.Stop()
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-sweep.C:
			if n := registry.Sweep(); n > 0 {
				logger.Infof("Released %d expired download links", n)
			}
			metrics.BlobsLive.Set(float64(registry.Len()))
		case <-daily.C:
			logger.Debugf("Cleaning up history records older than %v", retention)
			n, err := hist.CleanupOldRecords(retention)
			if err != nil {
				logger.Errorf("Failed to cleanup old history records: %v", err)
				continue
			}
			logger.Infof("Removed %d old history records", n)
		}
	}
}
