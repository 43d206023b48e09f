package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/session"
)

// ErrProcessorBusy rejects a new AI round while one is in flight. The
// orchestrator guarantees at most one mutation; the processor
// guarantees at most one expensive pipeline run.
var ErrProcessorBusy = errors.New("api: an AI edit is already in progress")

// PipelineRunner is the slice of the pipeline the processor needs.
type PipelineRunner interface {
	Process(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
}

// ProcessorStatus is a point-in-time view of the background run.
type ProcessorStatus struct {
	Busy        bool   `json:"busy"`
	LastMessage string `json:"last_message,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Processor runs AI edit rounds in the background, one at a time, and
// feeds successful results back into the orchestrator.
type Processor struct {
	pipe   PipelineRunner
	orch   *session.Orchestrator
	logger *slog.Logger

	mu          sync.Mutex
	busy        bool
	cancel      context.CancelFunc
	lastMessage string
	lastError   string
}

func NewProcessor(pipe PipelineRunner, orch *session.Orchestrator, logger *slog.Logger) *Processor {
	return &Processor{pipe: pipe, orch: orch, logger: logger}
}

// Start launches a pipeline run for the given intent. It returns
// immediately; the session mutates later through OnAIEditComplete.
func (p *Processor) Start(intent *session.AIIntent, settings media.ExportSettings) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrProcessorBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.busy = true
	p.cancel = cancel
	p.lastMessage = ""
	p.lastError = ""
	p.mu.Unlock()

	go p.run(ctx, intent, settings)
	return nil
}

// Cancel aborts the in-flight run, if any. The pipeline deletes its
// partial output and OnAIEditComplete is never called.
func (p *Processor) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Processor) Status() ProcessorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProcessorStatus{Busy: p.busy, LastMessage: p.lastMessage, LastError: p.lastError}
}

func (p *Processor) run(ctx context.Context, intent *session.AIIntent, settings media.ExportSettings) {
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	events := p.pipe.Process(ctx, pipeline.Request{
		Videos:        intent.Videos,
		Command:       intent.Command,
		Mode:          intent.Mode,
		Settings:      settings,
		PreviousPlan:  intent.PreviousPlan,
		PriorAnalyses: intent.PriorAnalyses,
	})

	for ev := range events {
		switch e := ev.(type) {
		case pipeline.Progress:
			p.mu.Lock()
			p.lastMessage = e.Message
			p.mu.Unlock()

		case pipeline.Failure:
			p.mu.Lock()
			p.lastError = e.Err.Error()
			p.mu.Unlock()
			p.logger.Warn("AI edit failed",
				"session_id", intent.SessionID,
				"error", e.Err,
			)

		case pipeline.Success:
			// Fold under a fresh context: the run's own context may be
			// cancelled between the final event and the commit.
			if _, err := p.orch.OnAIEditComplete(context.Background(), intent, e); err != nil {
				p.mu.Lock()
				p.lastError = err.Error()
				p.mu.Unlock()
				p.logger.Warn("AI result not committed",
					"session_id", intent.SessionID,
					"error", err,
				)
			}
		}
	}
}
