package api

import (
	"time"

	"github.com/clipforge/clipforge/internal/edit"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State      string           `json:"state"`
	Session    *SessionSummary  `json:"session,omitempty"`
	Processing *ProcessorStatus `json:"processing,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
}

// SessionSummary is the wire form of a session snapshot.
type SessionSummary struct {
	SessionID      string          `json:"session_id"`
	StateID        string          `json:"state_id"`
	Source         string          `json:"source"`
	VideoPath      string          `json:"video_path,omitempty"`
	Plan           edit.EditPlan   `json:"plan"`
	SelectedVideos []edit.VideoRef `json:"selected_videos"`
	CanUndo        bool            `json:"can_undo"`
	CanRedo        bool            `json:"can_redo"`
	HistoryLen     int             `json:"history_len"`
	CreatedAt      string          `json:"created_at"`
	LastModified   string          `json:"last_modified"`
}

type InitSessionRequest struct {
	Videos []edit.VideoRef `json:"videos"`
	Resume *ResumePayload  `json:"resume,omitempty"`
}

// ResumePayload re-creates a session around a previously rendered AI
// result.
type ResumePayload struct {
	VideoPath string                        `json:"video_path"`
	Plan      *edit.EditPlan                `json:"plan"`
	Analyses  map[string]edit.VideoAnalysis `json:"analyses"`
	Command   string                        `json:"command,omitempty"`
}

// Action type discriminants for ActionRequest.
const (
	ActionCreateWithAI = "create_with_ai"
	ActionEditWithAI   = "edit_with_ai"
	ActionEditManually = "edit_manually"
	ActionUndo         = "undo"
	ActionRedo         = "redo"
	ActionReset        = "reset"
)

type ActionRequest struct {
	Type    string                `json:"type"`
	Command string                `json:"command,omitempty"`
	Changes []edit.TimelineChange `json:"changes,omitempty"`
}

type ActionResponse struct {
	Accepted bool            `json:"accepted"`
	Session  *SessionSummary `json:"session,omitempty"`
}

type HistoryResponse struct {
	Operations []OperationSummary `json:"operations"`
}

type OperationSummary struct {
	Type        string `json:"type"`
	Timestamp   string `json:"timestamp"`
	ResultPath  string `json:"result_path"`
	Command     string `json:"command,omitempty"`
	Segments    int    `json:"segments"`
	ChangeCount int    `json:"change_count,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func operationSummary(op edit.Operation) OperationSummary {
	s := OperationSummary{
		Timestamp:  op.OpTimestamp().Format(time.RFC3339),
		ResultPath: op.OpResultPath(),
		Segments:   len(op.OpPlan().Segments),
	}
	switch o := op.(type) {
	case *edit.AIProcessOp:
		s.Type = "ai_process"
		s.Command = o.Command
	case *edit.ManualEditOp:
		s.Type = "manual_edit"
		s.ChangeCount = len(o.Changes)
	}
	return s
}
