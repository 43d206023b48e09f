// Package planning talks to the remote edit-planning service: a health
// probe plus the analyze call that turns per-video scene summaries and
// a natural-language command into an ordered edit plan.
package planning

import (
	"context"

	"github.com/clipforge/clipforge/internal/edit"
)

// Client is the planning service contract the pipeline consumes.
type Client interface {
	// CheckHealth returns nil only when the service reports a healthy
	// status. Any other status or transport failure is an error.
	CheckHealth(ctx context.Context) error
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// VideoPayload carries one source clip's analysis to the planner.
type VideoPayload struct {
	Filename string               `json:"filename"`
	Scenes   []edit.SceneAnalysis `json:"scenes"`
	HasAudio bool                 `json:"has_audio"`
	AudioInfo string              `json:"audio_info,omitempty"`
}

// AnalyzeRequest matches the planner's analyze endpoint schema.
type AnalyzeRequest struct {
	UserCommand  string             `json:"user_command"`
	PerVideo     []VideoPayload     `json:"per_video"`
	EditMode     bool               `json:"edit_mode"`
	EditCommand  string             `json:"edit_command,omitempty"`
	PreviousPlan []edit.EditSegment `json:"previous_plan,omitempty"`
}

// AnalyzeResponse is the planner's reply. FinalEdit may legitimately be
// empty at this layer; the pipeline treats emptiness as a hard error.
type AnalyzeResponse struct {
	FinalEdit []edit.EditSegment `json:"final_edit"`
}

type healthResponse struct {
	Status string `json:"status"`
}
