// Package media wraps the local ffmpeg/ffprobe toolchain behind the
// probe and renderer contracts the pipeline consumes.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/edit"
)

// ProbeInfo is the result of probing a source clip.
type ProbeInfo struct {
	DurationSec float64
	HasAudio    bool
	HasVideo    bool
}

// Prober inspects source clips and extracts representative artifacts.
type Prober interface {
	Probe(ctx context.Context, videoPath string) (ProbeInfo, error)
	// ExtractFrame returns a single JPEG frame at the given offset, or
	// nil when no frame could be decoded.
	ExtractFrame(ctx context.Context, videoPath string, offsetSec float64) ([]byte, error)
	// ExtractAudio writes a mono 16 kHz WAV next to the pipeline's
	// working files and returns its path.
	ExtractAudio(ctx context.Context, videoPath, outWav string) error
}

// ExportSettings controls the rendered output encoding.
type ExportSettings struct {
	Width  int
	Height int
	CRF    int
	Preset string
}

// DefaultExportSettings matches a typical phone-screen target.
func DefaultExportSettings() ExportSettings {
	return ExportSettings{CRF: 18, Preset: "veryfast"}
}

// Renderer turns an edit plan plus resolved source clips into a single
// output file. Implementations must report fractional progress and must
// clean up partial output on error or cancellation.
type Renderer interface {
	Render(ctx context.Context, plan edit.EditPlan, sources map[string]string, settings ExportSettings, outPath string, onProgress func(float64)) error
}

// UnresolvedSourceError reports a plan segment whose source video is
// absent from the source map. It is terminal: no partial render.
type UnresolvedSourceError struct {
	SourceVideo string
}

func (e *UnresolvedSourceError) Error() string {
	return fmt.Sprintf("media: plan references unknown source video %q", e.SourceVideo)
}

// ResolveSource maps a plan segment's source name onto the source map,
// tolerating extension and case mismatches. Returns the clip path or an
// UnresolvedSourceError.
func ResolveSource(name string, sources map[string]string) (string, error) {
	if path, ok := sources[name]; ok {
		return path, nil
	}

	lower := strings.ToLower(name)
	for k, path := range sources {
		if strings.ToLower(k) == lower {
			return path, nil
		}
	}

	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	for k, path := range sources {
		if strings.ToLower(strings.TrimSuffix(k, filepath.Ext(k))) == stem {
			return path, nil
		}
	}

	return "", &UnresolvedSourceError{SourceVideo: name}
}
