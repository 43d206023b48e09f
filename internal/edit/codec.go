package edit

import (
	"encoding/json"
	"fmt"
	"time"
)

// The persisted form of a state is an append-only arena of records,
// root first, with parent links as indexes. The store is schema-less,
// so every record carries an explicit variant discriminant.

const (
	recordInitial        = "initial"
	recordAIProcessed    = "ai_processed"
	recordManuallyEdited = "manually_edited"
	recordCombined       = "combined"

	recordAIProcessOp  = "ai_process"
	recordManualEditOp = "manual_edit"
)

type stateRecord struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Parent    int       `json:"parent"` // index into the arena; -1 for the root

	SelectedVideos []VideoRef               `json:"selected_videos,omitempty"`
	VideoPath      string                   `json:"video_path,omitempty"`
	Plan           *EditPlan                `json:"plan,omitempty"`
	Command        string                   `json:"command,omitempty"`
	Analyses       map[string]VideoAnalysis `json:"analyses,omitempty"`
	Changes        []TimelineChange         `json:"changes,omitempty"`
	History        []operationRecord        `json:"history,omitempty"`
}

type operationRecord struct {
	Type       string                   `json:"type"`
	Timestamp  time.Time                `json:"timestamp"`
	ResultPath string                   `json:"result_path"`
	Plan       EditPlan                 `json:"plan"`
	Command    string                   `json:"command,omitempty"`
	Analyses   map[string]VideoAnalysis `json:"analyses,omitempty"`
	Changes    []TimelineChange         `json:"changes,omitempty"`
}

type stateEnvelope struct {
	Arena []stateRecord `json:"arena"`
	Root  int           `json:"root"` // index of the leaf state in the arena
}

// MarshalState serialises a state and its full lineage.
func MarshalState(state VideoState) ([]byte, error) {
	var lineage []VideoState
	for s := state; s != nil; s = s.Previous() {
		lineage = append(lineage, s)
	}

	arena := make([]stateRecord, 0, len(lineage))
	for i := len(lineage) - 1; i >= 0; i-- {
		parent := len(arena) - 1
		if i == len(lineage)-1 {
			parent = -1
		}
		rec, err := encodeState(lineage[i], parent)
		if err != nil {
			return nil, err
		}
		arena = append(arena, rec)
	}

	return json.Marshal(stateEnvelope{Arena: arena, Root: len(arena) - 1})
}

// UnmarshalState rebuilds a state chain from its serialised arena.
func UnmarshalState(data []byte) (VideoState, error) {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("edit: unmarshal state envelope: %w", err)
	}
	if env.Root < 0 || env.Root >= len(env.Arena) {
		return nil, fmt.Errorf("edit: state envelope root %d out of range", env.Root)
	}

	states := make([]VideoState, len(env.Arena))
	for i, rec := range env.Arena {
		var prev VideoState
		if rec.Parent >= 0 {
			if rec.Parent >= i {
				return nil, fmt.Errorf("edit: state record %d references forward parent %d", i, rec.Parent)
			}
			prev = states[rec.Parent]
		}
		s, err := decodeState(rec, prev)
		if err != nil {
			return nil, err
		}
		states[i] = s
	}

	return states[env.Root], nil
}

// MarshalOperations serialises an operation list (the session audit log).
func MarshalOperations(ops []Operation) ([]byte, error) {
	records := make([]operationRecord, 0, len(ops))
	for _, op := range ops {
		rec, err := encodeOperation(op)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return json.Marshal(records)
}

// UnmarshalOperations is the inverse of MarshalOperations.
func UnmarshalOperations(data []byte) ([]Operation, error) {
	var records []operationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("edit: unmarshal operations: %w", err)
	}
	ops := make([]Operation, 0, len(records))
	for _, rec := range records {
		op, err := decodeOperation(rec)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func encodeState(state VideoState, parent int) (stateRecord, error) {
	rec := stateRecord{
		ID:        state.StateID(),
		SessionID: state.SessionID(),
		CreatedAt: state.CreatedAt(),
		Parent:    parent,
	}

	switch s := state.(type) {
	case *Initial:
		rec.Type = recordInitial
		rec.SelectedVideos = s.SelectedVideos
	case *AIProcessed:
		rec.Type = recordAIProcessed
		rec.VideoPath = s.VideoPath
		rec.Plan = planPtr(s.EditPlan)
		rec.Command = s.Command
		rec.Analyses = s.Analyses
	case *ManuallyEdited:
		rec.Type = recordManuallyEdited
		rec.VideoPath = s.VideoPath
		rec.Plan = planPtr(s.EditPlan)
		rec.Changes = s.Changes
	case *Combined:
		rec.Type = recordCombined
		rec.VideoPath = s.VideoPath
		rec.Plan = planPtr(s.EditPlan)
		for _, op := range s.History {
			opRec, err := encodeOperation(op)
			if err != nil {
				return stateRecord{}, err
			}
			rec.History = append(rec.History, opRec)
		}
	default:
		return stateRecord{}, fmt.Errorf("edit: cannot encode state %T", state)
	}

	return rec, nil
}

func decodeState(rec stateRecord, prev VideoState) (VideoState, error) {
	plan := EditPlan{}
	if rec.Plan != nil {
		plan = *rec.Plan
	}

	switch rec.Type {
	case recordInitial:
		return &Initial{
			ID:             rec.ID,
			Session:        rec.SessionID,
			Created:        rec.CreatedAt,
			SelectedVideos: rec.SelectedVideos,
		}, nil
	case recordAIProcessed:
		return &AIProcessed{
			ID:        rec.ID,
			Session:   rec.SessionID,
			Created:   rec.CreatedAt,
			Prev:      prev,
			VideoPath: rec.VideoPath,
			EditPlan:  plan,
			Command:   rec.Command,
			Analyses:  rec.Analyses,
		}, nil
	case recordManuallyEdited:
		return &ManuallyEdited{
			ID:        rec.ID,
			Session:   rec.SessionID,
			Created:   rec.CreatedAt,
			Prev:      prev,
			VideoPath: rec.VideoPath,
			EditPlan:  plan,
			Changes:   rec.Changes,
		}, nil
	case recordCombined:
		history := make([]Operation, 0, len(rec.History))
		for _, opRec := range rec.History {
			op, err := decodeOperation(opRec)
			if err != nil {
				return nil, err
			}
			history = append(history, op)
		}
		return &Combined{
			ID:        rec.ID,
			Session:   rec.SessionID,
			Created:   rec.CreatedAt,
			Prev:      prev,
			VideoPath: rec.VideoPath,
			EditPlan:  plan,
			History:   history,
		}, nil
	}
	return nil, fmt.Errorf("edit: unknown state discriminant %q", rec.Type)
}

func encodeOperation(op Operation) (operationRecord, error) {
	switch o := op.(type) {
	case *AIProcessOp:
		return operationRecord{
			Type:       recordAIProcessOp,
			Timestamp:  o.Timestamp,
			ResultPath: o.ResultPath,
			Plan:       o.Plan,
			Command:    o.Command,
			Analyses:   o.Analyses,
		}, nil
	case *ManualEditOp:
		return operationRecord{
			Type:       recordManualEditOp,
			Timestamp:  o.Timestamp,
			ResultPath: o.ResultPath,
			Plan:       o.Plan,
			Changes:    o.Changes,
		}, nil
	}
	return operationRecord{}, fmt.Errorf("edit: cannot encode operation %T", op)
}

func decodeOperation(rec operationRecord) (Operation, error) {
	switch rec.Type {
	case recordAIProcessOp:
		return &AIProcessOp{
			Command:    rec.Command,
			Timestamp:  rec.Timestamp,
			ResultPath: rec.ResultPath,
			Plan:       rec.Plan,
			Analyses:   rec.Analyses,
		}, nil
	case recordManualEditOp:
		return &ManualEditOp{
			Changes:    rec.Changes,
			Timestamp:  rec.Timestamp,
			ResultPath: rec.ResultPath,
			Plan:       rec.Plan,
		}, nil
	}
	return nil, fmt.Errorf("edit: unknown operation discriminant %q", rec.Type)
}

func planPtr(p EditPlan) *EditPlan {
	return &p
}
