// Package session owns the single mutable editing session: the current
// state, its append-only operation history and the undo/redo stacks.
// All mutation is serialised through the orchestrator's lock; reads go
// through a lock-free published snapshot.
package session

import (
	"errors"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/pipeline"
)

var (
	ErrNoActiveSession       = errors.New("session: no active session")
	ErrInvalidInitialization = errors.New("session: arguments are neither a fresh-start nor a resume shape")
	ErrNothingToUndo         = errors.New("session: nothing to undo")
	ErrNothingToRedo         = errors.New("session: nothing to redo")
	ErrNoChanges             = errors.New("session: manual edit carries no changes")
	ErrAIEditNotAllowed      = errors.New("session: current state does not allow AI editing")
	ErrManualEditNotAllowed  = errors.New("session: current state does not allow manual editing")

	// ErrStaleResult rejects an AI result that was computed against a
	// state that is no longer current. Folding it anyway would silently
	// produce a Combined state the user never asked for.
	ErrStaleResult = errors.New("session: AI result no longer matches the current state")
)

// Session is one continuous editing effort over a fixed set of
// originally selected videos. History is an append-only audit log of
// committed operations; undo and redo navigate materialised states and
// never touch it.
type Session struct {
	ID           string
	Current      edit.VideoState
	History      []edit.Operation
	UndoStack    []edit.VideoState
	RedoStack    []edit.VideoState
	CreatedAt    time.Time
	LastModified time.Time
}

// Action is the closed set of user actions the orchestrator dispatches.
type Action interface{ isAction() }

// CreateWithAI asks for a first cut from the raw selection.
type CreateWithAI struct {
	Command string
}

// EditWithAI asks for a revision of the current cut.
type EditWithAI struct {
	Command string
}

// EditManually folds a batch of timeline changes synchronously.
type EditManually struct {
	Changes []edit.TimelineChange
}

type Undo struct{}
type Redo struct{}

// Reset returns the session to its Initial ancestor and clears both
// navigation stacks.
type Reset struct{}

func (CreateWithAI) isAction() {}
func (EditWithAI) isAction()   {}
func (EditManually) isAction() {}
func (Undo) isAction()         {}
func (Redo) isAction()         {}
func (Reset) isAction()        {}

// AIIntent is what an AI action returns instead of a mutation: the
// validated inputs for a pipeline run, plus the identity of the state
// it was issued against. OnAIEditComplete refuses to fold a result
// whose origin state is no longer current.
type AIIntent struct {
	SessionID     string
	OriginStateID string
	Command       string
	Mode          pipeline.Mode
	Videos        []edit.VideoRef
	PreviousPlan  *edit.EditPlan
	PriorAnalyses map[string]edit.VideoAnalysis
}

// ActionResult is the outcome of dispatching an action. Intent is
// non-nil only for CreateWithAI and EditWithAI, whose mutation arrives
// later via OnAIEditComplete.
type ActionResult struct {
	Intent   *AIIntent
	Snapshot *Snapshot
}

// Snapshot is the published, immutable read view of the session.
// Observers see either the old or the new snapshot, never a partial
// state.
type Snapshot struct {
	SessionID      string             `json:"session_id"`
	StateID        string             `json:"state_id"`
	Source         edit.SourceType    `json:"source"`
	VideoPath      string             `json:"video_path,omitempty"`
	Plan           edit.EditPlan      `json:"plan"`
	SelectedVideos []edit.VideoRef    `json:"selected_videos"`
	CanUndo        bool               `json:"can_undo"`
	CanRedo        bool               `json:"can_redo"`
	HistoryLen     int                `json:"history_len"`
	CreatedAt      time.Time          `json:"created_at"`
	LastModified   time.Time          `json:"last_modified"`
}

func snapshotOf(s *Session) *Snapshot {
	snap := &Snapshot{
		SessionID:    s.ID,
		StateID:      s.Current.StateID(),
		Source:       s.Current.Source(),
		VideoPath:    stateVideoPath(s.Current),
		Plan:         s.Current.Plan(),
		CanUndo:      len(s.UndoStack) > 0,
		CanRedo:      len(s.RedoStack) > 0,
		HistoryLen:   len(s.History),
		CreatedAt:    s.CreatedAt,
		LastModified: s.LastModified,
	}
	if root := edit.RootInitial(s.Current); root != nil {
		snap.SelectedVideos = root.SelectedVideos
	}
	return snap
}

func stateVideoPath(state edit.VideoState) string {
	switch s := state.(type) {
	case *edit.AIProcessed:
		return s.VideoPath
	case *edit.ManuallyEdited:
		return s.VideoPath
	case *edit.Combined:
		return s.VideoPath
	}
	return ""
}

// latestAnalyses walks the lineage for the most recent AI analysis map,
// which a subsequent edit round reuses.
func latestAnalyses(state edit.VideoState) map[string]edit.VideoAnalysis {
	for s := state; s != nil; s = s.Previous() {
		switch v := s.(type) {
		case *edit.AIProcessed:
			return v.Analyses
		case *edit.Combined:
			for i := len(v.History) - 1; i >= 0; i-- {
				if op, ok := v.History[i].(*edit.AIProcessOp); ok {
					return op.Analyses
				}
			}
		}
	}
	return nil
}
