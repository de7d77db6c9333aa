package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fusionn-srt/internal/client/apprise"
	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/internal/executor"
	"github.com/fusionn-srt/internal/fileops"
	"github.com/fusionn-srt/internal/handler"
	"github.com/fusionn-srt/internal/queue"
	"github.com/fusionn-srt/internal/service/processor"
	"github.com/fusionn-srt/internal/version"
	"github.com/fusionn-srt/pkg/logger"
)

func main() {
	// Initialize logger
	isDev := os.Getenv("ENV") != "production"
	logger.Init(isDev)
	defer logger.Sync()

	version.PrintBanner(nil)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	logger.Infof("📁 Loading config: %s", configPath)
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		logger.Fatalf("❌ Config error: %v", err)
	}
	defer cfgMgr.Stop()
	cfg := cfgMgr.Get()

	if err := fileops.EnsureDir(cfg.Upload.DataDir); err != nil {
		logger.Fatalf("❌ Directory setup error: %v", err)
	}

	// Initialize Apprise client
	appriseClient := apprise.NewClient(cfg.Apprise)
	if appriseClient.Enabled() {
		logger.Infof("🔔 Notifications: enabled (key=%s)", cfg.Apprise.Key)
	} else {
		logger.Info("🔔 Notifications: disabled")
	}

	// Build the transcription pipeline
	chain, err := executor.NewChainFromConfig(cfg.Transcribe)
	if err != nil {
		logger.Fatalf("❌ Transcriber setup error: %v", err)
	}
	decoder := executor.NewFFmpeg(cfg.Transcribe.FFmpegPath, cfg.Transcribe.FFprobe)
	proc := processor.New(decoder, chain, appriseClient)

	// Initialize job queue
	jobQueue := queue.New(queue.NewStore(), proc, queue.SettingsFromConfig(cfg))
	jobQueue.OnFinish(proc.NotifyFinished)
	jobQueue.Start()
	defer jobQueue.Stop()

	cfgMgr.OnChange(func(_, newCfg *config.Config) {
		jobQueue.Reload(queue.SettingsFromConfig(newCfg))
		logger.Infof("🔧 Job defaults updated (max words %d, retention %v)",
			newCfg.Subtitle.DefaultMaxWords, newCfg.Jobs.Retention)
	})

	// Initialize HTTP server
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// Register routes
	h := handler.New(jobQueue, proc, cfg.Server.UploadRPM)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.WithCORS(router, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Print startup info
	health := proc.Health()
	logger.Info("")
	logger.Infof("📂 Job data: %s", cfg.Upload.DataDir)
	logger.Infof("🎤 Adapters: %s (primary available: %v)", strings.Join(health.Adapters, " → "), health.PrimaryAvailable)
	logger.Infof("📏 Uploads: %s up to %dMB, %d words per cue by default",
		strings.Join(cfg.Upload.AllowedExts, ", "), cfg.Upload.MaxSizeMB, cfg.Subtitle.DefaultMaxWords)
	logger.Infof("⏲️  Job timeout %v, retention %v", cfg.Jobs.Timeout, cfg.Jobs.Retention)
	logger.Info("")
	logger.Infof("🌐 API server: http://localhost:%d", cfg.Server.Port)
	logger.Infof("   POST /upload         - Upload audio, returns job id")
	logger.Infof("   GET  /status/:id     - Job status")
	logger.Infof("   GET  /download/:id   - SRT subtitles")
	logger.Info("")
	logger.Info("────────────────────────────────────────────────────────────────")
	logger.Info("✅  Ready! Waiting for uploads...")
	logger.Info("────────────────────────────────────────────────────────────────")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("")
	logger.Info("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("❌ Shutdown error: %v", err)
	}

	logger.Info("👋 Goodbye!")
}

// requestLogger returns a gin middleware for logging HTTP requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if path != "/health" || status >= 400 {
			latency := time.Since(start)
			logger.Debugf("HTTP %s %s → %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
