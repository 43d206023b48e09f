// Package pipeline orchestrates the probe, transcription, planning and
// render collaborators into one end-to-end "produce a new cut from a
// command" operation, emitting a sequence of processing events that
// terminates in exactly one Success or Failure.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/planning"
	"github.com/clipforge/clipforge/internal/tempfiles"
	"github.com/clipforge/clipforge/internal/transcribe"
)

// Mode selects between a fresh cut and a revision of an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Event is the closed set of values Process emits. A Progress may occur
// any number of times; the sequence ends with one Success or Failure,
// after which the channel is closed.
type Event interface{ isEvent() }

// Progress is a human-readable stage update.
type Progress struct {
	Message string
}

// Success carries the rendered output and everything a later edit round
// reuses: the plan and the per-filename analysis map.
type Success struct {
	OutputPath string
	Plan       edit.EditPlan
	Analyses   map[string]edit.VideoAnalysis
}

// Failure terminates an invocation with a typed error.
type Failure struct {
	Err error
}

func (Progress) isEvent() {}
func (Success) isEvent()  {}
func (Failure) isEvent()  {}

// Typed stage errors. Each aborts the invocation without attempting
// later stages; session state is left untouched by the caller.
var (
	ErrCannotExtractFrames = errors.New("pipeline: no representative frame could be extracted from any video")
	ErrCannotAnalyzeVideo  = errors.New("pipeline: planning service is not available")
	ErrEmptyEditPlan       = errors.New("pipeline: planning service returned an empty edit plan")
)

// AnalysisNotFoundError reports an edit-mode invocation whose prior
// analysis map is missing a selected video. There is no silent fallback
// to re-analysis: what the user sees and what gets planned must match.
type AnalysisNotFoundError struct {
	Filename string
}

func (e *AnalysisNotFoundError) Error() string {
	return fmt.Sprintf("pipeline: no prior analysis for video %q", e.Filename)
}

// Request describes one pipeline invocation.
type Request struct {
	Videos        []edit.VideoRef
	Command       string
	Mode          Mode
	Settings      media.ExportSettings
	PreviousPlan  *edit.EditPlan
	PriorAnalyses map[string]edit.VideoAnalysis
}

// Config wires the pipeline's collaborators.
type Config struct {
	Prober      media.Prober
	Transcriber transcribe.Client
	Planner     planning.Client
	Renderer    media.Renderer
	Temp        *tempfiles.Registry
	WorkDir     string
	OutDir      string
	Logger      *slog.Logger
}

type Pipeline struct {
	prober      media.Prober
	transcriber transcribe.Client
	planner     planning.Client
	renderer    media.Renderer
	temp        *tempfiles.Registry
	analyses    *cache.Cache
	workDir     string
	outDir      string
	logger      *slog.Logger
}

const analysisCacheTTL = time.Hour

func New(cfg Config) *Pipeline {
	return &Pipeline{
		prober:      cfg.Prober,
		transcriber: cfg.Transcriber,
		planner:     cfg.Planner,
		renderer:    cfg.Renderer,
		temp:        cfg.Temp,
		analyses:    cache.New(analysisCacheTTL, 10*time.Minute),
		workDir:     cfg.WorkDir,
		outDir:      cfg.OutDir,
		logger:      cfg.Logger,
	}
}

// Process runs the staged pipeline and returns the event stream. The
// caller may cancel between events via ctx; cancellation deletes any
// partially written output and the stream ends without a Success.
func (p *Pipeline) Process(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		p.run(ctx, req, events)
	}()
	return events
}

func (p *Pipeline) run(ctx context.Context, req Request, events chan<- Event) {
	fail := func(err error) {
		if p.logger != nil {
			p.logger.Warn("pipeline failed", "error", err)
		}
		p.emit(ctx, events, Failure{Err: err})
	}

	// Stage 1: analysis acquisition.
	p.emit(ctx, events, Progress{Message: "analyzing videos"})
	analyses, err := p.acquireAnalyses(ctx, req)
	if err != nil {
		fail(err)
		return
	}

	// Stage 2: planning needs visual context.
	if !hasAnyFrame(analyses) {
		fail(ErrCannotExtractFrames)
		return
	}

	// Stage 3: cheap health probe before the expensive planning call.
	p.emit(ctx, events, Progress{Message: "contacting planning service"})
	if err := p.planner.CheckHealth(ctx); err != nil {
		fail(fmt.Errorf("%w: %s: %v", ErrCannotAnalyzeVideo, planning.Category(err), err))
		return
	}

	// Stage 4: plan request.
	p.emit(ctx, events, Progress{Message: "generating edit plan"})
	plan, err := p.requestPlan(ctx, req, analyses)
	if err != nil {
		fail(err)
		return
	}

	// Stage 5: local render.
	p.emit(ctx, events, Progress{Message: "rendering final cut"})
	outPath, err := p.render(ctx, req, plan, events)
	if err != nil {
		fail(err)
		return
	}

	if ctx.Err() != nil {
		return
	}
	p.emit(ctx, events, Success{OutputPath: outPath, Plan: plan, Analyses: analyses})
}

func (p *Pipeline) acquireAnalyses(ctx context.Context, req Request) (map[string]edit.VideoAnalysis, error) {
	if req.Mode == ModeEdit && req.PriorAnalyses != nil {
		// Reuse what the previous round produced; a hole means the UI
		// and the planner would disagree about the material.
		analyses := make(map[string]edit.VideoAnalysis, len(req.Videos))
		for _, v := range req.Videos {
			a, ok := req.PriorAnalyses[v.Filename]
			if !ok {
				return nil, &AnalysisNotFoundError{Filename: v.Filename}
			}
			analyses[v.Filename] = a
		}
		return analyses, nil
	}

	analyses := make(map[string]edit.VideoAnalysis, len(req.Videos))
	for _, v := range req.Videos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := p.analyzeVideo(ctx, v)
		if err != nil {
			return nil, err
		}
		analyses[v.Filename] = a
	}
	return analyses, nil
}

func (p *Pipeline) analyzeVideo(ctx context.Context, v edit.VideoRef) (edit.VideoAnalysis, error) {
	cacheKey := analysisCacheKey(v.Path)
	if cacheKey != "" {
		if cached, ok := p.analyses.Get(cacheKey); ok {
			if a, ok := cached.(edit.VideoAnalysis); ok {
				return a, nil
			}
		}
	}

	info, err := p.prober.Probe(ctx, v.Path)
	if err != nil {
		return edit.VideoAnalysis{}, fmt.Errorf("probe %s: %w", v.Filename, err)
	}

	// One synthetic scene spanning the whole clip, frame taken from the
	// midpoint.
	scene := edit.SceneAnalysis{
		SceneNumber: 1,
		StartTime:   0,
		EndTime:     info.DurationSec,
	}
	frame, err := p.prober.ExtractFrame(ctx, v.Path, info.DurationSec/2)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("frame extraction failed", "file", v.Filename, "error", err)
		}
	} else if len(frame) > 0 {
		scene.FrameBase64 = base64.StdEncoding.EncodeToString(frame)
	}

	hasAudio := info.HasAudio
	var transcript []edit.TranscriptSegment
	if hasAudio {
		transcript, err = p.transcribeVideo(ctx, v)
		if err != nil {
			// Transcription failures do not fail the stage; the video
			// is submitted with an empty transcript.
			if p.logger != nil {
				p.logger.Warn("transcription failed, continuing without transcript",
					"file", v.Filename, "error", err)
			}
			transcript = nil
			hasAudio = false
		}
	}

	analysis := edit.VideoAnalysis{
		FileName: v.Filename,
		HasAudio: hasAudio,
		Scenes:   partitionTranscript([]edit.SceneAnalysis{scene}, transcript),
	}

	if cacheKey != "" {
		p.analyses.Set(cacheKey, analysis, cache.DefaultExpiration)
	}
	return analysis, nil
}

func (p *Pipeline) transcribeVideo(ctx context.Context, v edit.VideoRef) ([]edit.TranscriptSegment, error) {
	audioDir, err := os.MkdirTemp(p.workDir, "audio-")
	if err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	defer os.RemoveAll(audioDir)

	wavPath := filepath.Join(audioDir, "audio.wav")
	if err := p.prober.ExtractAudio(ctx, v.Path, wavPath); err != nil {
		return nil, err
	}
	return p.transcriber.Transcribe(ctx, wavPath, audioDir)
}

func (p *Pipeline) requestPlan(ctx context.Context, req Request, analyses map[string]edit.VideoAnalysis) (edit.EditPlan, error) {
	planReq := planning.AnalyzeRequest{
		UserCommand: req.Command,
		EditMode:    req.Mode == ModeEdit,
	}
	for _, v := range req.Videos {
		a := analyses[v.Filename]
		planReq.PerVideo = append(planReq.PerVideo, planning.VideoPayload{
			Filename:  v.Filename,
			Scenes:    a.Scenes,
			HasAudio:  a.HasAudio,
			AudioInfo: audioSummary(a),
		})
	}
	if req.Mode == ModeEdit {
		planReq.EditCommand = req.Command
		if req.PreviousPlan != nil {
			planReq.PreviousPlan = req.PreviousPlan.Segments
		}
	}

	resp, err := p.planner.Analyze(ctx, planReq)
	if err != nil {
		return edit.EditPlan{}, fmt.Errorf("plan request: %w", err)
	}
	if len(resp.FinalEdit) == 0 {
		return edit.EditPlan{}, ErrEmptyEditPlan
	}
	return edit.EditPlan{Segments: resp.FinalEdit}, nil
}

// audioSummary condenses a video's speech content into one line for the
// planner. Empty when the video carries no usable audio.
func audioSummary(a edit.VideoAnalysis) string {
	if !a.HasAudio {
		return ""
	}
	var count int
	var speechSec float64
	for _, scene := range a.Scenes {
		for _, seg := range scene.Transcription {
			count++
			speechSec += seg.End - seg.Start
		}
	}
	if count == 0 {
		return "audio track present, no speech detected"
	}
	return fmt.Sprintf("%d speech segments, %.1fs of speech", count, speechSec)
}

func (p *Pipeline) render(ctx context.Context, req Request, plan edit.EditPlan, events chan<- Event) (string, error) {
	sources := make(map[string]string, len(req.Videos))
	for _, v := range req.Videos {
		sources[v.Filename] = v.Path
	}

	outPath := filepath.Join(p.outDir, uuid.NewString()+".mp4")
	if p.temp != nil {
		p.temp.Register(outPath)
	}

	lastDecile := -1
	onProgress := func(fraction float64) {
		decile := int(fraction * 10)
		if decile > lastDecile {
			lastDecile = decile
			p.emit(ctx, events, Progress{Message: fmt.Sprintf("rendering %d%%", decile*10)})
		}
	}

	if err := p.renderer.Render(ctx, plan, sources, req.Settings, outPath, onProgress); err != nil {
		// Renderers clean their own partial output; make sure the
		// registry does not keep pointing at a file that never landed.
		if p.temp != nil {
			_ = p.temp.Remove(outPath)
		}
		return "", fmt.Errorf("render: %w", err)
	}
	return outPath, nil
}

func (p *Pipeline) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func hasAnyFrame(analyses map[string]edit.VideoAnalysis) bool {
	for _, a := range analyses {
		for _, s := range a.Scenes {
			if s.FrameBase64 != "" {
				return true
			}
		}
	}
	return false
}

// partitionTranscript assigns transcript segments to the scene whose
// time range contains the segment start.
func partitionTranscript(scenes []edit.SceneAnalysis, transcript []edit.TranscriptSegment) []edit.SceneAnalysis {
	for _, seg := range transcript {
		for i := range scenes {
			if seg.Start >= scenes[i].StartTime && seg.Start < scenes[i].EndTime {
				scenes[i].Transcription = append(scenes[i].Transcription, seg)
				break
			}
		}
	}
	return scenes
}

func analysisCacheKey(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}
