package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is reserved for a future restricted-capability
// mode. The current operation set is total over all states, so
// Transition never returns it.
var ErrInvalidTransition = errors.New("edit: transition not permitted from current state")

// Transition folds an operation into a state and returns the next
// state. It is a pure function: no I/O, deterministic given its inputs
// (state IDs are derived by hashing, not generated randomly).
//
// Transition table:
//
//	Initial        x AIProcess  -> AIProcessed
//	Initial        x ManualEdit -> ManuallyEdited
//	AIProcessed    x AIProcess  -> AIProcessed (plan/path/command replaced)
//	AIProcessed    x ManualEdit -> Combined (reconstructed AI op + new op)
//	ManuallyEdited x AIProcess  -> Combined (reconstructed manual op + new op)
//	ManuallyEdited x ManualEdit -> ManuallyEdited (changes appended)
//	Combined       x any        -> Combined (operation appended)
//
// The output state's Previous always points at the input state.
func Transition(state VideoState, op Operation) (VideoState, error) {
	switch s := state.(type) {
	case *Initial:
		switch o := op.(type) {
		case *AIProcessOp:
			return newAIProcessed(s, o), nil
		case *ManualEditOp:
			return newManuallyEdited(s, o, o.Changes), nil
		}

	case *AIProcessed:
		switch o := op.(type) {
		case *AIProcessOp:
			// A new AI round replaces the previous one wholesale; the
			// old cut survives only through the back-reference.
			return newAIProcessed(s, o), nil
		case *ManualEditOp:
			return newCombined(s, []Operation{ReconstructOperation(s), o}, o), nil
		}

	case *ManuallyEdited:
		switch o := op.(type) {
		case *AIProcessOp:
			return newCombined(s, []Operation{ReconstructOperation(s), o}, o), nil
		case *ManualEditOp:
			changes := make([]TimelineChange, 0, len(s.Changes)+len(o.Changes))
			changes = append(changes, s.Changes...)
			changes = append(changes, o.Changes...)
			return newManuallyEdited(s, o, changes), nil
		}

	case *Combined:
		history := make([]Operation, 0, len(s.History)+1)
		history = append(history, s.History...)
		history = append(history, op)
		return newCombined(s, history, op), nil
	}

	// A state x operation pair outside the table is a programming
	// contract violation, not an expected condition.
	return nil, fmt.Errorf("edit: no transition defined for %T x %T", state, op)
}

func newAIProcessed(prev VideoState, o *AIProcessOp) *AIProcessed {
	return &AIProcessed{
		ID:        deriveStateID(prev.StateID(), "ai_processed:"+o.ResultPath, o.Timestamp),
		Session:   prev.SessionID(),
		Created:   o.Timestamp,
		Prev:      prev,
		VideoPath: o.ResultPath,
		EditPlan:  o.Plan,
		Command:   o.Command,
		Analyses:  o.Analyses,
	}
}

func newManuallyEdited(prev VideoState, o *ManualEditOp, changes []TimelineChange) *ManuallyEdited {
	return &ManuallyEdited{
		ID:        deriveStateID(prev.StateID(), "manually_edited:"+o.ResultPath, o.Timestamp),
		Session:   prev.SessionID(),
		Created:   o.Timestamp,
		Prev:      prev,
		VideoPath: o.ResultPath,
		EditPlan:  o.Plan,
		Changes:   changes,
	}
}

func newCombined(prev VideoState, history []Operation, o Operation) *Combined {
	return &Combined{
		ID:        deriveStateID(prev.StateID(), "combined:"+o.OpResultPath(), o.OpTimestamp()),
		Session:   prev.SessionID(),
		Created:   o.OpTimestamp(),
		Prev:      prev,
		VideoPath: o.OpResultPath(),
		EditPlan:  o.OpPlan(),
		History:   history,
	}
}

// ReconstructOperation rebuilds the operation that produced the given
// state, from the state's own fields. Used when a lineage folds into a
// Combined history and by History.
func ReconstructOperation(state VideoState) Operation {
	switch s := state.(type) {
	case *AIProcessed:
		return &AIProcessOp{
			Command:    s.Command,
			Timestamp:  s.Created,
			ResultPath: s.VideoPath,
			Plan:       s.EditPlan,
			Analyses:   s.Analyses,
		}
	case *ManuallyEdited:
		changes := s.Changes
		// Changes accumulate across successive manual edits; the op
		// that produced this state carried only the suffix beyond what
		// the previous manual state already held.
		if prev, ok := s.Prev.(*ManuallyEdited); ok && len(prev.Changes) <= len(changes) {
			changes = changes[len(prev.Changes):]
		}
		return &ManualEditOp{
			Changes:    changes,
			Timestamp:  s.Created,
			ResultPath: s.VideoPath,
			Plan:       s.EditPlan,
		}
	case *Combined:
		if len(s.History) > 0 {
			return s.History[len(s.History)-1]
		}
	}
	return nil
}

// History reconstructs the full ordered operation list for a state by
// walking Previous links back to the root. For a Combined state this is
// equivalent, in operation sequence, to its History field; it also
// works for lineages that never materialised a Combined.
func History(state VideoState) []Operation {
	var lineage []VideoState
	for s := state; s != nil; s = s.Previous() {
		lineage = append(lineage, s)
	}

	var ops []Operation
	for i := len(lineage) - 1; i >= 0; i-- {
		if _, ok := lineage[i].(*Initial); ok {
			continue
		}
		if op := ReconstructOperation(lineage[i]); op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

// deriveStateID produces a stable ID from the parent ID, a variant
// discriminant and the operation timestamp, keeping Transition
// deterministic.
func deriveStateID(parentID, discriminant string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", parentID, discriminant, at.UnixNano())))
	return hex.EncodeToString(sum[:16])
}
