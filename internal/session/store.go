package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/edit"
)

// Record is the persisted form of a session. Each distinct state is
// serialised as its own lineage arena keyed by state ID, so the
// current state and every stack entry can be rebuilt independently.
type Record struct {
	ID             string
	CurrentStateID string
	UndoStateIDs   []string
	RedoStateIDs   []string
	History        []byte
	States         map[string][]byte
	CreatedAt      time.Time
	LastModified   time.Time
}

func recordOf(s *Session) (*Record, error) {
	rec := &Record{
		ID:             s.ID,
		CurrentStateID: s.Current.StateID(),
		States:         make(map[string][]byte),
		CreatedAt:      s.CreatedAt,
		LastModified:   s.LastModified,
	}

	addState := func(state edit.VideoState) error {
		id := state.StateID()
		if _, ok := rec.States[id]; ok {
			return nil
		}
		payload, err := edit.MarshalState(state)
		if err != nil {
			return err
		}
		rec.States[id] = payload
		return nil
	}

	if err := addState(s.Current); err != nil {
		return nil, err
	}
	for _, st := range s.UndoStack {
		rec.UndoStateIDs = append(rec.UndoStateIDs, st.StateID())
		if err := addState(st); err != nil {
			return nil, err
		}
	}
	for _, st := range s.RedoStack {
		rec.RedoStateIDs = append(rec.RedoStateIDs, st.StateID())
		if err := addState(st); err != nil {
			return nil, err
		}
	}

	history, err := edit.MarshalOperations(s.History)
	if err != nil {
		return nil, err
	}
	rec.History = history
	return rec, nil
}

func (r *Record) toSession() (*Session, error) {
	states := make(map[string]edit.VideoState, len(r.States))
	for id, payload := range r.States {
		st, err := edit.UnmarshalState(payload)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", id, err)
		}
		states[id] = st
	}

	current, ok := states[r.CurrentStateID]
	if !ok {
		return nil, fmt.Errorf("current state %s missing from record", r.CurrentStateID)
	}

	s := &Session{
		ID:           r.ID,
		Current:      current,
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
	for _, id := range r.UndoStateIDs {
		st, ok := states[id]
		if !ok {
			return nil, fmt.Errorf("undo state %s missing from record", id)
		}
		s.UndoStack = append(s.UndoStack, st)
	}
	for _, id := range r.RedoStateIDs {
		st, ok := states[id]
		if !ok {
			return nil, fmt.Errorf("redo state %s missing from record", id)
		}
		s.RedoStack = append(s.RedoStack, st)
	}

	if len(r.History) > 0 {
		history, err := edit.UnmarshalOperations(r.History)
		if err != nil {
			return nil, err
		}
		s.History = history
	}
	return s, nil
}

// Store persists sessions. Last writer wins; there is no cross-process
// coordination because only one session is active per device.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Load(ctx context.Context, sessionID string) (*Record, error)
	// LoadLatest returns the most recently modified session, or nil.
	LoadLatest(ctx context.Context) (*Record, error)
	DeleteSession(ctx context.Context, sessionID string) error
	// ListStaleSessions returns ids of sessions not modified since the
	// given cutoff.
	ListStaleSessions(ctx context.Context, olderThan time.Time) ([]string, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (st *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	undoIDs, err := json.Marshal(rec.UndoStateIDs)
	if err != nil {
		return err
	}
	redoIDs, err := json.Marshal(rec.RedoStateIDs)
	if err != nil {
		return err
	}

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, current_state_id, undo_state_ids, redo_state_ids, history, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_state_id = excluded.current_state_id,
			undo_state_ids = excluded.undo_state_ids,
			redo_state_ids = excluded.redo_state_ids,
			history = excluded.history,
			last_modified = excluded.last_modified
	`, rec.ID, rec.CurrentStateID, string(undoIDs), string(redoIDs), rec.History,
		rec.CreatedAt.Format(time.RFC3339), rec.LastModified.Format(time.RFC3339))
	if err != nil {
		return err
	}

	for stateID, payload := range rec.States {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_snapshots (session_id, state_id, payload, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id, state_id) DO UPDATE SET payload = excluded.payload
		`, rec.ID, stateID, payload, rec.LastModified.Format(time.RFC3339))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (st *SQLiteStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, current_state_id, undo_state_ids, redo_state_ids, history, created_at, last_modified
		FROM sessions WHERE id = ?
	`, sessionID)
	return st.scanRecord(ctx, row)
}

func (st *SQLiteStore) LoadLatest(ctx context.Context) (*Record, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, current_state_id, undo_state_ids, redo_state_ids, history, created_at, last_modified
		FROM sessions ORDER BY last_modified DESC LIMIT 1
	`)
	return st.scanRecord(ctx, row)
}

func (st *SQLiteStore) scanRecord(ctx context.Context, row *sql.Row) (*Record, error) {
	var rec Record
	var undoIDs, redoIDs, createdAt, lastModified string
	var history []byte

	err := row.Scan(&rec.ID, &rec.CurrentStateID, &undoIDs, &redoIDs, &history, &createdAt, &lastModified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(undoIDs), &rec.UndoStateIDs); err != nil {
		return nil, fmt.Errorf("session %s: undo ids: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(redoIDs), &rec.RedoStateIDs); err != nil {
		return nil, fmt.Errorf("session %s: redo ids: %w", rec.ID, err)
	}
	rec.History = history
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.LastModified, _ = time.Parse(time.RFC3339, lastModified)

	rows, err := st.db.QueryContext(ctx, `
		SELECT state_id, payload FROM session_snapshots WHERE session_id = ?
	`, rec.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec.States = make(map[string][]byte)
	for rows.Next() {
		var stateID string
		var payload []byte
		if err := rows.Scan(&stateID, &payload); err != nil {
			return nil, err
		}
		rec.States[stateID] = payload
	}
	return &rec, rows.Err()
}

func (st *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Snapshots cascade via the foreign key.
	_, err := st.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

func (st *SQLiteStore) ListStaleSessions(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT id FROM sessions WHERE last_modified < ? ORDER BY last_modified ASC
	`, olderThan.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (st *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := st.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (st *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

var _ Store = (*SQLiteStore)(nil)
