// Package transcribe runs speech recognition over extracted audio via a
// local whisper.cpp binary. An empty segment list is a valid "no
// speech" result, not an error.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
)

// Client is the transcription contract the pipeline consumes.
type Client interface {
	Transcribe(ctx context.Context, wavPath, workDir string) ([]edit.TranscriptSegment, error)
}

// WhisperCPP shells out to a whisper.cpp CLI build. A zero timeout
// leaves the subprocess unbounded.
type WhisperCPP struct {
	bin     string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewWhisperCPP(binPath, modelPath string, timeout time.Duration, logger *slog.Logger) *WhisperCPP {
	return &WhisperCPP{bin: binPath, model: modelPath, timeout: timeout, logger: logger}
}

type whisperOutput struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w *WhisperCPP) Transcribe(ctx context.Context, wavPath, workDir string) ([]edit.TranscriptSegment, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	outPrefix := filepath.Join(workDir, "whisper")
	args := []string{
		"-m", w.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, w.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, tail(string(b), 512))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(jb, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	segments := make([]edit.TranscriptSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		segments = append(segments, edit.TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  text,
		})
	}

	if w.logger != nil {
		w.logger.Info("transcription complete",
			"audio", filepath.Base(wavPath),
			"segments", len(segments),
		)
	}
	return segments, nil
}

func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

var _ Client = (*WhisperCPP)(nil)
