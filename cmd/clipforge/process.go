package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/export"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/planning"
	"github.com/clipforge/clipforge/internal/tempfiles"
	"github.com/clipforge/clipforge/internal/transcribe"
)

func newProcessCmd() *cobra.Command {
	var (
		command string
		outDir  string
		edlPath string
	)

	cmd := &cobra.Command{
		Use:   "process [videos...]",
		Short: "Run one AI edit round without a session",
		Long:  "process analyzes the given videos, requests an edit plan and renders\nthe final cut, printing the output path. Useful for scripting; the\ninteractive session API lives behind 'serve'.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(args, command, outDir, edlPath)
		},
	}

	cmd.Flags().StringVarP(&command, "command", "c", "", "editing instruction for the planner (required)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: data dir renders)")
	cmd.Flags().StringVar(&edlPath, "edl", "", "also write a CMX 3600 EDL to this path")
	cmd.MarkFlagRequired("command")

	return cmd
}

func runProcess(videoPaths []string, command, outDir, edlPath string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if outDir == "" {
		outDir = cfg.OutputDir()
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	} else if err := export.ValidateOutputDir(outDir); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	videos := make([]edit.VideoRef, 0, len(videoPaths))
	for _, p := range videoPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("video not found: %s", p)
		}
		videos = append(videos, edit.VideoRef{Path: abs, Filename: filepath.Base(abs)})
	}

	logger := logging.NewLogger(cfg.LogLevel())
	toolchain := media.NewFFmpegToolchain(media.ToolchainConfig{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		WorkDir:       cfg.WorkDir(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		RenderTimeout: cfg.RenderTimeout(),
		Logger:        logger,
	})
	temp := tempfiles.NewRegistry(logger)

	pipe := pipeline.New(pipeline.Config{
		Prober:      toolchain,
		Transcriber: transcribe.NewWhisperCPP(cfg.WhisperBin(), cfg.WhisperModel(), cfg.TranscribeTimeout(), logger),
		Planner:     planning.NewHTTPClient(cfg.PlanningBaseURL(), cfg.PlanningToken(), cfg.PlanningTimeout(), logger),
		Renderer:    toolchain,
		Temp:        temp,
		WorkDir:     cfg.WorkDir(),
		OutDir:      outDir,
		Logger:      logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var result *pipeline.Success
	for ev := range pipe.Process(ctx, pipeline.Request{
		Videos:   videos,
		Command:  command,
		Mode:     pipeline.ModeCreate,
		Settings: media.DefaultExportSettings(),
	}) {
		switch e := ev.(type) {
		case pipeline.Progress:
			logger.Info(e.Message)
		case pipeline.Failure:
			return e.Err
		case pipeline.Success:
			result = &e
		}
	}
	if result == nil {
		return ctx.Err()
	}

	// One-shot output is the deliverable, not a temp artifact.
	temp.Release(result.OutputPath)

	if edlPath != "" {
		sources := make(map[string]string, len(videos))
		for _, v := range videos {
			sources[v.Filename] = v.Path
		}
		title := export.SanitizeName(command, 60)
		res := export.EDLFromPlan(result.Plan, sources, title, export.DefaultFrameRate)
		if err := os.WriteFile(edlPath, []byte(res.EDL), 0644); err != nil {
			return fmt.Errorf("failed to write EDL: %w", err)
		}
		logger.Info("wrote EDL", "path", edlPath, "clips", res.ClipCount)
	}

	fmt.Println(result.OutputPath)
	return nil
}
