package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/tempfiles"
)

// Orchestrator owns exactly one mutable session slot. Every mutating
// method holds mu for its full duration, so at most one mutation is
// ever in flight; AI actions only validate and capture an intent under
// the lock, the network-bound pipeline work happens outside it.
type Orchestrator struct {
	mu      sync.Mutex
	session *Session

	store  Store
	temp   *tempfiles.Registry
	outDir string
	logger *slog.Logger
	clock  func() time.Time

	snapshot atomic.Pointer[Snapshot]
}

// InitArgs selects between the two valid initialization shapes: a
// fresh start (SelectedVideos only) or a resume of a previous AI
// result (SelectedVideos plus plan, analyses and rendered path).
type InitArgs struct {
	SelectedVideos []edit.VideoRef
	EditPlan       *edit.EditPlan
	Analyses       map[string]edit.VideoAnalysis
	VideoPath      string
	Command        string
}

func NewOrchestrator(store Store, temp *tempfiles.Registry, outDir string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		temp:   temp,
		outDir: outDir,
		logger: logger,
		clock:  time.Now,
	}
}

// Snapshot returns the last published read view, or nil when no
// session is active. Lock-free.
func (o *Orchestrator) Snapshot() *Snapshot {
	return o.snapshot.Load()
}

// Current returns the live current state for callers that need the
// full lineage (history listing, export).
func (o *Orchestrator) Current() (edit.VideoState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, ErrNoActiveSession
	}
	return o.session.Current, nil
}

// History returns a copy of the session's committed operation log.
func (o *Orchestrator) History() ([]edit.Operation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, ErrNoActiveSession
	}
	return append([]edit.Operation(nil), o.session.History...), nil
}

// Initialize creates a fresh session, replacing any active one. The
// arguments must match exactly one of the two valid shapes; anything
// else is rejected without touching the active session.
func (o *Orchestrator) Initialize(ctx context.Context, args InitArgs) (*Snapshot, error) {
	fresh := args.EditPlan == nil && args.Analyses == nil && args.VideoPath == ""
	resume := args.EditPlan != nil && !args.EditPlan.IsEmpty() &&
		len(args.Analyses) > 0 && args.VideoPath != ""
	if len(args.SelectedVideos) == 0 || (!fresh && !resume) {
		return nil, ErrInvalidInitialization
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil {
		if err := o.store.DeleteSession(ctx, o.session.ID); err != nil {
			o.logger.Warn("failed to delete replaced session", "session_id", o.session.ID, "error", err)
		}
	}

	now := o.clock()
	id := uuid.NewString()
	s := &Session{
		ID:           id,
		Current:      edit.NewInitial(id, args.SelectedVideos, now),
		CreatedAt:    now,
		LastModified: now,
	}
	o.session = s

	if resume {
		op := &edit.AIProcessOp{
			Command:    args.Command,
			Timestamp:  o.clock(),
			ResultPath: args.VideoPath,
			Plan:       *args.EditPlan,
			Analyses:   args.Analyses,
		}
		next, err := edit.Transition(s.Current, op)
		if err != nil {
			o.session = nil
			return nil, err
		}
		o.commit(ctx, op, next)
		return o.Snapshot(), nil
	}

	o.persist(ctx)
	o.publish()
	o.logger.Info("session initialized", "session_id", id, "videos", len(args.SelectedVideos))
	return o.Snapshot(), nil
}

// Restore loads the most recently modified persisted session, if any.
// A session idle past ttl is deleted instead of restored, so the
// inactivity lifecycle holds across restarts without waiting for the
// sweeper's first pass. Returns (nil, nil) when there is nothing to
// restore.
func (o *Orchestrator) Restore(ctx context.Context, ttl time.Duration) (*Snapshot, error) {
	rec, err := o.store.LoadLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted session: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	if ttl > 0 && o.clock().Sub(rec.LastModified) > ttl {
		if err := o.store.DeleteSession(ctx, rec.ID); err != nil {
			o.logger.Warn("failed to delete stale session", "session_id", rec.ID, "error", err)
		}
		o.logger.Info("discarded stale session",
			"session_id", rec.ID,
			"last_modified", rec.LastModified.Format(time.RFC3339),
		)
		return nil, nil
	}

	s, err := rec.toSession()
	if err != nil {
		return nil, fmt.Errorf("decode persisted session %s: %w", rec.ID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = s
	o.publish()
	o.logger.Info("session restored",
		"session_id", s.ID,
		"state_id", s.Current.StateID(),
		"undo_depth", len(s.UndoStack),
	)
	return o.Snapshot(), nil
}

// Apply dispatches a user action. AI actions validate preconditions
// and return an intent; the mutation arrives later through
// OnAIEditComplete. All other actions mutate synchronously.
func (o *Orchestrator) Apply(ctx context.Context, action Action) (*ActionResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil, ErrNoActiveSession
	}

	switch a := action.(type) {
	case CreateWithAI:
		return o.beginAIEdit(a.Command, pipeline.ModeCreate)
	case EditWithAI:
		return o.beginAIEdit(a.Command, pipeline.ModeEdit)
	case EditManually:
		return o.editManually(ctx, a.Changes)
	case Undo:
		return o.undo(ctx)
	case Redo:
		return o.redo(ctx)
	case Reset:
		return o.reset(ctx)
	}
	return nil, fmt.Errorf("session: unknown action %T", action)
}

func (o *Orchestrator) beginAIEdit(command string, mode pipeline.Mode) (*ActionResult, error) {
	s := o.session
	if !s.Current.CanEditWithAI() {
		return nil, ErrAIEditNotAllowed
	}

	root := edit.RootInitial(s.Current)
	if root == nil {
		return nil, fmt.Errorf("session %s has no initial ancestor", s.ID)
	}

	intent := &AIIntent{
		SessionID:     s.ID,
		OriginStateID: s.Current.StateID(),
		Command:       command,
		Mode:          mode,
		Videos:        root.SelectedVideos,
		PriorAnalyses: latestAnalyses(s.Current),
	}
	if plan := s.Current.Plan(); mode == pipeline.ModeEdit && !plan.IsEmpty() {
		intent.PreviousPlan = &plan
	}

	o.logger.Info("AI edit requested",
		"session_id", s.ID,
		"origin_state_id", intent.OriginStateID,
		"mode", string(mode),
	)
	return &ActionResult{Intent: intent, Snapshot: o.Snapshot()}, nil
}

func (o *Orchestrator) editManually(ctx context.Context, changes []edit.TimelineChange) (*ActionResult, error) {
	s := o.session
	if !s.Current.CanEditManually() {
		return nil, ErrManualEditNotAllowed
	}
	if len(changes) == 0 {
		return nil, ErrNoChanges
	}

	outPath := filepath.Join(o.outDir, uuid.NewString()+".mp4")
	op := &edit.ManualEditOp{
		Changes:    changes,
		Timestamp:  o.clock(),
		ResultPath: outPath,
		Plan:       edit.ApplyChanges(s.Current.Plan(), changes),
	}

	next, err := edit.Transition(s.Current, op)
	if err != nil {
		return nil, err
	}

	if o.temp != nil {
		o.temp.Register(outPath)
	}
	o.commit(ctx, op, next)
	return &ActionResult{Snapshot: o.Snapshot()}, nil
}

// OnAIEditComplete folds a successful pipeline result. The result must
// have been computed against the state that is still current; a stale
// result is rejected and its rendered output deleted.
func (o *Orchestrator) OnAIEditComplete(ctx context.Context, intent *AIIntent, res pipeline.Success) (*Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.session
	if s == nil || s.ID != intent.SessionID || s.Current.StateID() != intent.OriginStateID {
		if o.temp != nil {
			_ = o.temp.Remove(res.OutputPath)
		}
		o.logger.Warn("rejecting stale AI result",
			"intent_session", intent.SessionID,
			"origin_state_id", intent.OriginStateID,
		)
		return nil, ErrStaleResult
	}

	op := &edit.AIProcessOp{
		Command:    intent.Command,
		Timestamp:  o.clock(),
		ResultPath: res.OutputPath,
		Plan:       res.Plan,
		Analyses:   res.Analyses,
	}
	next, err := edit.Transition(s.Current, op)
	if err != nil {
		return nil, err
	}

	if o.temp != nil {
		o.temp.Register(res.OutputPath)
	}
	o.commit(ctx, op, next)
	return o.Snapshot(), nil
}

func (o *Orchestrator) undo(ctx context.Context) (*ActionResult, error) {
	s := o.session
	if len(s.UndoStack) == 0 {
		return nil, ErrNothingToUndo
	}

	prior := s.UndoStack[len(s.UndoStack)-1]
	s.UndoStack = s.UndoStack[:len(s.UndoStack)-1]
	s.RedoStack = append(s.RedoStack, s.Current)
	s.Current = prior
	s.LastModified = o.clock()

	o.persist(ctx)
	o.publish()
	return &ActionResult{Snapshot: o.Snapshot()}, nil
}

func (o *Orchestrator) redo(ctx context.Context) (*ActionResult, error) {
	s := o.session
	if len(s.RedoStack) == 0 {
		return nil, ErrNothingToRedo
	}

	next := s.RedoStack[len(s.RedoStack)-1]
	s.RedoStack = s.RedoStack[:len(s.RedoStack)-1]
	s.UndoStack = append(s.UndoStack, s.Current)
	s.Current = next
	s.LastModified = o.clock()

	o.persist(ctx)
	o.publish()
	return &ActionResult{Snapshot: o.Snapshot()}, nil
}

func (o *Orchestrator) reset(ctx context.Context) (*ActionResult, error) {
	s := o.session
	root := edit.RootInitial(s.Current)
	if root == nil {
		return nil, fmt.Errorf("session %s has no initial ancestor", s.ID)
	}

	s.Current = root
	s.UndoStack = nil
	s.RedoStack = nil
	s.LastModified = o.clock()

	o.persist(ctx)
	o.publish()
	o.logger.Info("session reset", "session_id", s.ID)
	return &ActionResult{Snapshot: o.Snapshot()}, nil
}

// Clear releases the session: the persisted record is deleted and
// every tracked render output is swept.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil
	}

	id := o.session.ID
	if err := o.store.DeleteSession(ctx, id); err != nil {
		o.logger.Warn("failed to delete persisted session", "session_id", id, "error", err)
	}
	if o.temp != nil {
		o.temp.Sweep()
	}
	o.session = nil
	o.snapshot.Store(nil)
	o.logger.Info("session cleared", "session_id", id)
	return nil
}

// commit applies the commit discipline for a successful transition:
// the prior state goes on the undo stack, the redo stack is cleared,
// the operation joins the audit log and the new state becomes current.
// Callers hold mu.
func (o *Orchestrator) commit(ctx context.Context, op edit.Operation, next edit.VideoState) {
	s := o.session
	s.UndoStack = append(s.UndoStack, s.Current)
	s.RedoStack = nil
	s.History = append(s.History, op)
	s.Current = next
	s.LastModified = o.clock()

	o.persist(ctx)
	o.publish()
	o.logger.Info("state committed",
		"session_id", s.ID,
		"state_id", next.StateID(),
		"source", string(next.Source()),
		"undo_depth", len(s.UndoStack),
	)
}

// persist saves the session best-effort. The in-memory session stays
// authoritative; a write failure only degrades resumability.
func (o *Orchestrator) persist(ctx context.Context) {
	rec, err := recordOf(o.session)
	if err != nil {
		o.logger.Error("failed to encode session", "session_id", o.session.ID, "error", err)
		return
	}
	if err := o.store.Save(ctx, rec); err != nil {
		o.logger.Error("failed to persist session", "session_id", o.session.ID, "error", err)
	}
}

func (o *Orchestrator) publish() {
	o.snapshot.Store(snapshotOf(o.session))
}
