package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/planning"
	"github.com/clipforge/clipforge/internal/playback"
	"github.com/clipforge/clipforge/internal/session"
	"github.com/clipforge/clipforge/internal/tempfiles"
	"github.com/clipforge/clipforge/internal/transcribe"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local session API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.OutputDir(), cfg.WorkDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	store := session.NewStore(database.Conn())

	deviceID, err := ensureConfigValue(store, "device_id", 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureConfigValue(store, api.AuthTokenKey, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    CLIPFORGE v%-7s                     ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	temp := tempfiles.NewRegistry(logger)
	toolchain := media.NewFFmpegToolchain(media.ToolchainConfig{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		WorkDir:       cfg.WorkDir(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		RenderTimeout: cfg.RenderTimeout(),
		Logger:        logger,
	})
	transcriber := transcribe.NewWhisperCPP(cfg.WhisperBin(), cfg.WhisperModel(), cfg.TranscribeTimeout(), logger)

	if cfg.PlanningBaseURL() == "" {
		logger.Warn("planning service URL not configured, AI edits will fail until it is set",
			"env", config.EnvPlanningBaseURL)
	}
	planner := planning.NewHTTPClient(cfg.PlanningBaseURL(), cfg.PlanningToken(), cfg.PlanningTimeout(), logger)

	pipe := pipeline.New(pipeline.Config{
		Prober:      toolchain,
		Transcriber: transcriber,
		Planner:     planner,
		Renderer:    toolchain,
		Temp:        temp,
		WorkDir:     cfg.WorkDir(),
		OutDir:      cfg.OutputDir(),
		Logger:      logger,
	})

	orch := session.NewOrchestrator(store, temp, cfg.OutputDir(), logger)
	if snap, err := orch.Restore(context.Background(), cfg.SessionTTL()); err != nil {
		logger.Warn("failed to restore previous session", "error", err)
	} else if snap != nil {
		logger.Info("restored previous session",
			"session_id", snap.SessionID,
			"source", snap.Source,
			"history_len", snap.HistoryLen,
		)
	}

	processor := api.NewProcessor(pipe, orch, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := session.NewSweeper(store, orch, cfg.SessionTTL(), logger)
	go sweeper.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Orchestrator: orch,
		Processor:    processor,
		Store:        store,
		Playback:     playback.NewServer(logger),
		Logger:       logger,
		StartTime:    startTime,
		DeviceID:     deviceID,
		Version:      config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	processor.Cancel()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// ensureConfigValue reads a config entry, minting a random hex value on
// first startup so the agent is usable without manual provisioning.
func ensureConfigValue(store session.Store, key string, numBytes int) (string, error) {
	ctx := context.Background()

	existing, err := store.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	raw := make([]byte, numBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	value := hex.EncodeToString(raw)

	if err := store.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
