package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/tempfiles"
)

type memStore struct {
	mu   sync.Mutex
	recs map[string]*Record
	cfg  map[string]string
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*Record), cfg: make(map[string]string)}
}

func (m *memStore) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *memStore) Load(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[id], nil
}

func (m *memStore) LoadLatest(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Record
	for _, rec := range m.recs {
		if latest == nil || rec.LastModified.After(latest.LastModified) {
			latest = rec
		}
	}
	return latest, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *memStore) ListStaleSessions(ctx context.Context, olderThan time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, rec := range m.recs {
		if rec.LastModified.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) GetConfig(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg[key], nil
}

func (m *memStore) SetConfig(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg[key] = value
	return nil
}

var _ Store = (*memStore)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memStore, *tempfiles.Registry) {
	t.Helper()
	store := newMemStore()
	reg := tempfiles.NewRegistry(nil)
	o := NewOrchestrator(store, reg, t.TempDir(), discardLogger())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	o.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return o, store, reg
}

func sessionVideos() []edit.VideoRef {
	return []edit.VideoRef{
		{Path: "/clips/v1.mp4", Filename: "v1.mp4"},
		{Path: "/clips/v2.mp4", Filename: "v2.mp4"},
	}
}

func aiSuccess(path string) pipeline.Success {
	return pipeline.Success{
		OutputPath: path,
		Plan: edit.EditPlan{Segments: []edit.EditSegment{
			{SourceVideo: "v1.mp4", StartTime: 0, EndTime: 5},
			{SourceVideo: "v2.mp4", StartTime: 2, EndTime: 7},
		}},
		Analyses: map[string]edit.VideoAnalysis{
			"v1.mp4": {FileName: "v1.mp4", Scenes: []edit.SceneAnalysis{{SceneNumber: 1, EndTime: 30}}},
			"v2.mp4": {FileName: "v2.mp4", Scenes: []edit.SceneAnalysis{{SceneNumber: 1, EndTime: 20}}},
		},
	}
}

// fresh session, one committed AI round
func committedAISession(t *testing.T, o *Orchestrator) *Snapshot {
	t.Helper()
	ctx := context.Background()
	if _, err := o.Initialize(ctx, InitArgs{SelectedVideos: sessionVideos()}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	res, err := o.Apply(ctx, CreateWithAI{Command: "make a highlight"})
	if err != nil {
		t.Fatalf("Apply(CreateWithAI) error = %v", err)
	}
	snap, err := o.OnAIEditComplete(ctx, res.Intent, aiSuccess("/out/first.mp4"))
	if err != nil {
		t.Fatalf("OnAIEditComplete() error = %v", err)
	}
	return snap
}

func TestInitialize_Fresh(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	snap, err := o.Initialize(context.Background(), InitArgs{SelectedVideos: sessionVideos()})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if snap.Source != edit.SourceRaw {
		t.Errorf("Source = %s, want RAW", snap.Source)
	}
	if snap.CanUndo || snap.CanRedo {
		t.Error("fresh session must have empty stacks")
	}
	if len(snap.SelectedVideos) != 2 {
		t.Errorf("SelectedVideos = %d, want 2", len(snap.SelectedVideos))
	}
	if _, ok := store.recs[snap.SessionID]; !ok {
		t.Error("fresh session was not persisted")
	}
}

func TestInitialize_InvalidShapes(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		args InitArgs
	}{
		{name: "no videos", args: InitArgs{}},
		{name: "path without plan", args: InitArgs{SelectedVideos: sessionVideos(), VideoPath: "/out/x.mp4"}},
		{name: "plan without analyses", args: InitArgs{
			SelectedVideos: sessionVideos(),
			EditPlan:       &edit.EditPlan{Segments: []edit.EditSegment{{SourceVideo: "v1.mp4", EndTime: 1}}},
			VideoPath:      "/out/x.mp4",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := o.Initialize(ctx, tc.args); !errors.Is(err, ErrInvalidInitialization) {
				t.Errorf("Initialize() error = %v, want ErrInvalidInitialization", err)
			}
		})
	}
}

func TestInitialize_ResumeShape(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	res := aiSuccess("/out/resumed.mp4")
	snap, err := o.Initialize(context.Background(), InitArgs{
		SelectedVideos: sessionVideos(),
		EditPlan:       &res.Plan,
		Analyses:       res.Analyses,
		VideoPath:      res.OutputPath,
		Command:        "make a highlight",
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if snap.Source != edit.SourceAIGenerated {
		t.Errorf("Source = %s, want AI_GENERATED", snap.Source)
	}
	if !snap.CanUndo {
		t.Error("resumed session should allow undo back to Initial")
	}
	if snap.HistoryLen != 1 {
		t.Errorf("HistoryLen = %d, want 1", snap.HistoryLen)
	}
	if snap.VideoPath != "/out/resumed.mp4" {
		t.Errorf("VideoPath = %q", snap.VideoPath)
	}
}

func TestApply_NoActiveSession(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	if _, err := o.Apply(context.Background(), Undo{}); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Apply() error = %v, want ErrNoActiveSession", err)
	}
}

func TestApply_CreateWithAIReturnsIntent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	snap, err := o.Initialize(ctx, InitArgs{SelectedVideos: sessionVideos()})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	res, err := o.Apply(ctx, CreateWithAI{Command: "make a highlight"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	intent := res.Intent
	if intent == nil {
		t.Fatal("CreateWithAI must return an intent")
	}
	if intent.OriginStateID != snap.StateID {
		t.Errorf("OriginStateID = %s, want %s", intent.OriginStateID, snap.StateID)
	}
	if intent.Mode != pipeline.ModeCreate {
		t.Errorf("Mode = %s, want create", intent.Mode)
	}
	if len(intent.Videos) != 2 {
		t.Errorf("Videos = %d, want 2", len(intent.Videos))
	}
	if got := o.Snapshot().StateID; got != snap.StateID {
		t.Error("an AI intent must not mutate the session")
	}
}

func TestApply_EditWithAICarriesPlanAndAnalyses(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	committedAISession(t, o)

	res, err := o.Apply(context.Background(), EditWithAI{Command: "make it snappier"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	intent := res.Intent
	if intent.Mode != pipeline.ModeEdit {
		t.Errorf("Mode = %s, want edit", intent.Mode)
	}
	if intent.PreviousPlan == nil || len(intent.PreviousPlan.Segments) != 2 {
		t.Errorf("PreviousPlan = %+v, want 2 segments", intent.PreviousPlan)
	}
	if len(intent.PriorAnalyses) != 2 {
		t.Errorf("PriorAnalyses = %d entries, want 2", len(intent.PriorAnalyses))
	}
}

func TestOnAIEditComplete_Commits(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	snap := committedAISession(t, o)
	if snap.Source != edit.SourceAIGenerated {
		t.Errorf("Source = %s, want AI_GENERATED", snap.Source)
	}
	if !snap.CanUndo {
		t.Error("committed session must allow undo")
	}
	if snap.HistoryLen != 1 {
		t.Errorf("HistoryLen = %d, want 1", snap.HistoryLen)
	}

	rec := store.recs[snap.SessionID]
	if rec == nil {
		t.Fatal("commit was not persisted")
	}
	if rec.CurrentStateID != snap.StateID {
		t.Errorf("persisted current state = %s, want %s", rec.CurrentStateID, snap.StateID)
	}
}

func TestOnAIEditComplete_RejectsStaleResult(t *testing.T) {
	o, _, reg := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Initialize(ctx, InitArgs{SelectedVideos: sessionVideos()}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	res, err := o.Apply(ctx, CreateWithAI{Command: "make a highlight"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// The user edits manually while the AI round is in flight.
	if _, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeTrim, SourceVideo: "v1.mp4", StartTime: 0, EndTime: 3},
	}}); err != nil {
		t.Fatalf("Apply(EditManually) error = %v", err)
	}
	before := o.Snapshot()

	stale := aiSuccess("/out/stale.mp4")
	reg.Register(stale.OutputPath)
	if _, err := o.OnAIEditComplete(ctx, res.Intent, stale); !errors.Is(err, ErrStaleResult) {
		t.Fatalf("OnAIEditComplete() error = %v, want ErrStaleResult", err)
	}

	after := o.Snapshot()
	if after.StateID != before.StateID || after.HistoryLen != before.HistoryLen {
		t.Error("a rejected stale result must not mutate the session")
	}
	for _, p := range reg.Tracked() {
		if p == stale.OutputPath {
			t.Error("stale output must be removed from the registry")
		}
	}
}

func TestEditManually_FoldsSynchronously(t *testing.T) {
	o, _, reg := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Initialize(ctx, InitArgs{SelectedVideos: sessionVideos()}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	res, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeTrim, SourceVideo: "v1.mp4", StartTime: 0, EndTime: 3},
	}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	snap := res.Snapshot
	if snap.Source != edit.SourceManual {
		t.Errorf("Source = %s, want MANUAL", snap.Source)
	}
	if len(snap.Plan.Segments) != 1 {
		t.Errorf("plan = %d segments, want 1", len(snap.Plan.Segments))
	}
	if snap.VideoPath == "" {
		t.Error("manual edit must mint a fresh output path")
	}
	if got := len(reg.Tracked()); got != 1 {
		t.Errorf("registry tracks %d paths, want 1", got)
	}
}

func TestEditManually_EmptyChanges(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Initialize(ctx, InitArgs{SelectedVideos: sessionVideos()}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := o.Apply(ctx, EditManually{}); !errors.Is(err, ErrNoChanges) {
		t.Errorf("Apply() error = %v, want ErrNoChanges", err)
	}
}

func TestUndoThenRedoIsIdentity(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	committedAISession(t, o)
	if _, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeDelete, SourceVideo: "v2.mp4"},
	}}); err != nil {
		t.Fatalf("Apply(EditManually) error = %v", err)
	}
	before := o.Snapshot()

	if _, err := o.Apply(ctx, Undo{}); err != nil {
		t.Fatalf("Apply(Undo) error = %v", err)
	}
	if _, err := o.Apply(ctx, Redo{}); err != nil {
		t.Fatalf("Apply(Redo) error = %v", err)
	}

	after := o.Snapshot()
	if after.StateID != before.StateID {
		t.Errorf("StateID = %s, want %s", after.StateID, before.StateID)
	}
	if after.CanUndo != before.CanUndo || after.CanRedo != before.CanRedo {
		t.Error("undo/redo pair must restore stack shapes")
	}
	if after.HistoryLen != before.HistoryLen {
		t.Error("undo/redo must never touch history")
	}
}

func TestUndoToInitialThenFails(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	committedAISession(t, o)
	if _, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeTrim, SourceVideo: "v1.mp4", StartTime: 0, EndTime: 3},
	}}); err != nil {
		t.Fatalf("Apply(EditManually) error = %v", err)
	}
	if got := o.Snapshot().Source; got != edit.SourceCombined {
		t.Fatalf("Source = %s, want COMBINED", got)
	}

	for i := 0; i < 2; i++ {
		if _, err := o.Apply(ctx, Undo{}); err != nil {
			t.Fatalf("Apply(Undo) #%d error = %v", i+1, err)
		}
	}
	if got := o.Snapshot().Source; got != edit.SourceRaw {
		t.Errorf("Source after two undos = %s, want RAW", got)
	}
	if _, err := o.Apply(ctx, Undo{}); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("third Undo error = %v, want ErrNothingToUndo", err)
	}
}

func TestRedoOnEmptyStack(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	committedAISession(t, o)
	if _, err := o.Apply(context.Background(), Redo{}); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo error = %v, want ErrNothingToRedo", err)
	}
}

func TestCommitClearsRedoStack(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	committedAISession(t, o)
	if _, err := o.Apply(ctx, Undo{}); err != nil {
		t.Fatalf("Apply(Undo) error = %v", err)
	}
	if !o.Snapshot().CanRedo {
		t.Fatal("undo must populate the redo stack")
	}

	if _, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeTrim, SourceVideo: "v2.mp4", StartTime: 1, EndTime: 2},
	}}); err != nil {
		t.Fatalf("Apply(EditManually) error = %v", err)
	}
	if o.Snapshot().CanRedo {
		t.Error("a new commit must clear the redo stack")
	}
}

func TestReset(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	snap := committedAISession(t, o)
	historyLen := snap.HistoryLen

	res, err := o.Apply(ctx, Reset{})
	if err != nil {
		t.Fatalf("Apply(Reset) error = %v", err)
	}
	if res.Snapshot.Source != edit.SourceRaw {
		t.Errorf("Source = %s, want RAW", res.Snapshot.Source)
	}
	if res.Snapshot.CanUndo || res.Snapshot.CanRedo {
		t.Error("reset must clear both stacks")
	}
	if res.Snapshot.HistoryLen != historyLen {
		t.Error("reset must not rewrite the audit log")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx := context.Background()

	committedAISession(t, o)
	if _, err := o.Apply(ctx, EditManually{Changes: []edit.TimelineChange{
		{Kind: edit.ChangeTrim, SourceVideo: "v1.mp4", StartTime: 0, EndTime: 3},
	}}); err != nil {
		t.Fatalf("Apply(EditManually) error = %v", err)
	}
	want := o.Snapshot()

	o2 := NewOrchestrator(store, tempfiles.NewRegistry(nil), t.TempDir(), discardLogger())
	snap, err := o2.Restore(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if snap == nil {
		t.Fatal("Restore() returned no session")
	}
	if snap.StateID != want.StateID {
		t.Errorf("StateID = %s, want %s", snap.StateID, want.StateID)
	}
	if snap.HistoryLen != want.HistoryLen {
		t.Errorf("HistoryLen = %d, want %d", snap.HistoryLen, want.HistoryLen)
	}

	// Navigation still works on the rebuilt state chain.
	if _, err := o2.Apply(ctx, Undo{}); err != nil {
		t.Errorf("Apply(Undo) after restore error = %v", err)
	}
	if got := o2.Snapshot().Source; got != edit.SourceAIGenerated {
		t.Errorf("Source after undo = %s, want AI_GENERATED", got)
	}
}

func TestRestore_NothingPersisted(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	snap, err := o.Restore(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if snap != nil {
		t.Errorf("Restore() = %+v, want nil", snap)
	}
}

func TestRestore_DiscardsExpiredSession(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	snap := committedAISession(t, o)

	// Restart two days later: the 24h inactivity lifecycle has lapsed.
	o2 := NewOrchestrator(store, tempfiles.NewRegistry(nil), t.TempDir(), discardLogger())
	o2.clock = func() time.Time {
		return snap.LastModified.Add(48 * time.Hour)
	}

	got, err := o2.Restore(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got != nil {
		t.Errorf("Restore() = %+v, want nil for an expired session", got)
	}
	if _, ok := store.recs[snap.SessionID]; ok {
		t.Error("expired session must be deleted from the store")
	}
}

func TestClear(t *testing.T) {
	o, store, reg := newTestOrchestrator(t)
	ctx := context.Background()

	snap := committedAISession(t, o)
	if err := o.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if o.Snapshot() != nil {
		t.Error("Clear() must drop the published snapshot")
	}
	if _, ok := store.recs[snap.SessionID]; ok {
		t.Error("Clear() must delete the persisted session")
	}
	if len(reg.Tracked()) != 0 {
		t.Error("Clear() must sweep tracked outputs")
	}
}
