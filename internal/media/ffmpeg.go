package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
)

// ToolchainConfig configures the ffmpeg/ffprobe adapter. A zero timeout
// disables the deadline for that stage.
type ToolchainConfig struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string

	// ProbeTimeout bounds each probe, frame and audio extraction call;
	// RenderTimeout bounds one whole Render invocation.
	ProbeTimeout  time.Duration
	RenderTimeout time.Duration

	Logger *slog.Logger
}

// FFmpegToolchain implements Prober and Renderer on top of the ffmpeg
// and ffprobe binaries.
type FFmpegToolchain struct {
	ffmpeg        string
	ffprobe       string
	workDir       string
	probeTimeout  time.Duration
	renderTimeout time.Duration
	logger        *slog.Logger
}

func NewFFmpegToolchain(cfg ToolchainConfig) *FFmpegToolchain {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &FFmpegToolchain{
		ffmpeg:        cfg.FFmpegPath,
		ffprobe:       cfg.FFprobePath,
		workDir:       cfg.WorkDir,
		probeTimeout:  cfg.ProbeTimeout,
		renderTimeout: cfg.RenderTimeout,
		logger:        cfg.Logger,
	}
}

// stageContext derives a per-subprocess context. Commands killed at the
// deadline surface as ordinary errors to the caller.
func stageContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

func (t *FFmpegToolchain) Probe(ctx context.Context, videoPath string) (ProbeInfo, error) {
	ctx, cancel := stageContext(ctx, t.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type",
		"-of", "json",
		videoPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe %s: %w\n%s", filepath.Base(videoPath), err, string(b))
	}

	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := ProbeInfo{}
	info.DurationSec, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			info.HasVideo = true
		}
	}
	return info, nil
}

func (t *FFmpegToolchain) ExtractFrame(ctx context.Context, videoPath string, offsetSec float64) ([]byte, error) {
	ctx, cancel := stageContext(ctx, t.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-ss", fmtSeconds(offsetSec),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-f", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract frame at %.2fs: %w\n%s", offsetSec, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, nil
	}
	return stdout.Bytes(), nil
}

func (t *FFmpegToolchain) ExtractAudio(ctx context.Context, videoPath, outWav string) error {
	ctx, cancel := stageContext(ctx, t.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// Render cuts each plan segment from its resolved source and joins the
// parts with the concat demuxer. Partial output is removed on any
// failure or cancellation.
func (t *FFmpegToolchain) Render(ctx context.Context, plan edit.EditPlan, sources map[string]string, settings ExportSettings, outPath string, onProgress func(float64)) error {
	if plan.IsEmpty() {
		return fmt.Errorf("media: cannot render an empty plan")
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	// The render deadline spans all cuts plus the concat.
	ctx, cancel := stageContext(ctx, t.renderTimeout)
	defer cancel()

	partsDir, err := os.MkdirTemp(t.workDir, "render-")
	if err != nil {
		return fmt.Errorf("create parts dir: %w", err)
	}
	defer os.RemoveAll(partsDir)

	cleanup := func() {
		os.Remove(outPath)
	}

	// Every referenced source must resolve before any cutting starts.
	resolved := make([]string, len(plan.Segments))
	for i, seg := range plan.Segments {
		path, err := ResolveSource(seg.SourceVideo, sources)
		if err != nil {
			return err
		}
		resolved[i] = path
	}

	totalSteps := float64(len(plan.Segments) + 1)
	var listBuf bytes.Buffer

	for i, seg := range plan.Segments {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}

		partPath := filepath.Join(partsDir, fmt.Sprintf("part-%03d.mp4", i))
		if err := t.cutSegment(ctx, resolved[i], seg, settings, partPath); err != nil {
			cleanup()
			return err
		}
		fmt.Fprintf(&listBuf, "file '%s'\n", escapeConcatPath(partPath))
		onProgress(float64(i+1) / totalSteps)
	}

	listPath := filepath.Join(partsDir, "concat.txt")
	if err := os.WriteFile(listPath, listBuf.Bytes(), 0644); err != nil {
		cleanup()
		return fmt.Errorf("write concat list: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return fmt.Errorf("ffmpeg concat: %w\n%s", err, string(b))
	}

	onProgress(1.0)
	if t.logger != nil {
		t.logger.Info("render complete",
			"segments", len(plan.Segments),
			"duration_sec", plan.Duration(),
			"output", filepath.Base(outPath),
		)
	}
	return nil
}

func (t *FFmpegToolchain) cutSegment(ctx context.Context, srcPath string, seg edit.EditSegment, settings ExportSettings, outPath string) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(seg.StartTime),
		"-to", fmtSeconds(seg.EndTime),
		"-i", srcPath,
	}
	if settings.Width > 0 && settings.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
			settings.Width, settings.Height, settings.Width, settings.Height))
	}
	preset := settings.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := settings.CRF
	if crf <= 0 {
		crf = 18
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)

	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	if b, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg cut %s [%.2f-%.2f]: %w\n%s",
			filepath.Base(srcPath), seg.StartTime, seg.EndTime, err, string(b))
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeConcatPath(p string) string {
	// The concat demuxer treats single quotes specially.
	return string(bytes.ReplaceAll([]byte(p), []byte("'"), []byte(`'\''`)))
}
