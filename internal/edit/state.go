package edit

import "time"

// VideoState is the closed set of states an editing session can be in.
// States are immutable; each non-initial state keeps a back-reference to
// the state it was produced from, which is a non-owning relation used
// only for lineage walks, never for mutation.
type VideoState interface {
	StateID() string
	SessionID() string
	CreatedAt() time.Time
	// Previous returns the state this one was folded from, or nil for
	// the session's Initial state.
	Previous() VideoState
	// Plan returns the current edit plan; empty for Initial.
	Plan() EditPlan
	Source() SourceType
	// CanEditManually and CanEditWithAI are capability flags. All
	// variants currently allow both; they exist so a restricted mode
	// can be introduced without changing callers.
	CanEditManually() bool
	CanEditWithAI() bool

	isVideoState()
}

// Initial is the session's starting state: the raw selection, no plan.
type Initial struct {
	ID             string
	Session        string
	Created        time.Time
	SelectedVideos []VideoRef
}

func (s *Initial) StateID() string       { return s.ID }
func (s *Initial) SessionID() string     { return s.Session }
func (s *Initial) CreatedAt() time.Time  { return s.Created }
func (s *Initial) Previous() VideoState  { return nil }
func (s *Initial) Plan() EditPlan        { return EditPlan{} }
func (s *Initial) Source() SourceType    { return SourceRaw }
func (s *Initial) CanEditManually() bool { return true }
func (s *Initial) CanEditWithAI() bool   { return true }
func (s *Initial) isVideoState()         {}

// AIProcessed is a cut produced by a single AI planning round.
type AIProcessed struct {
	ID        string
	Session   string
	Created   time.Time
	Prev      VideoState
	VideoPath string
	EditPlan  EditPlan
	Command   string
	Analyses  map[string]VideoAnalysis
}

func (s *AIProcessed) StateID() string       { return s.ID }
func (s *AIProcessed) SessionID() string     { return s.Session }
func (s *AIProcessed) CreatedAt() time.Time  { return s.Created }
func (s *AIProcessed) Previous() VideoState  { return s.Prev }
func (s *AIProcessed) Plan() EditPlan        { return s.EditPlan }
func (s *AIProcessed) Source() SourceType    { return SourceAIGenerated }
func (s *AIProcessed) CanEditManually() bool { return true }
func (s *AIProcessed) CanEditWithAI() bool   { return true }
func (s *AIProcessed) isVideoState()         {}

// ManuallyEdited is a cut shaped only by manual timeline changes.
// Changes accumulate across successive manual edits.
type ManuallyEdited struct {
	ID        string
	Session   string
	Created   time.Time
	Prev      VideoState
	VideoPath string
	EditPlan  EditPlan
	Changes   []TimelineChange
}

func (s *ManuallyEdited) StateID() string       { return s.ID }
func (s *ManuallyEdited) SessionID() string     { return s.Session }
func (s *ManuallyEdited) CreatedAt() time.Time  { return s.Created }
func (s *ManuallyEdited) Previous() VideoState  { return s.Prev }
func (s *ManuallyEdited) Plan() EditPlan        { return s.EditPlan }
func (s *ManuallyEdited) Source() SourceType    { return SourceManual }
func (s *ManuallyEdited) CanEditManually() bool { return true }
func (s *ManuallyEdited) CanEditWithAI() bool   { return true }
func (s *ManuallyEdited) isVideoState()         {}

// Combined is a cut shaped by a mix of AI and manual operations. Its
// History carries the full ordered operation list that produced it.
type Combined struct {
	ID        string
	Session   string
	Created   time.Time
	Prev      VideoState
	VideoPath string
	EditPlan  EditPlan
	History   []Operation
}

func (s *Combined) StateID() string       { return s.ID }
func (s *Combined) SessionID() string     { return s.Session }
func (s *Combined) CreatedAt() time.Time  { return s.Created }
func (s *Combined) Previous() VideoState  { return s.Prev }
func (s *Combined) Plan() EditPlan        { return s.EditPlan }
func (s *Combined) Source() SourceType    { return SourceCombined }
func (s *Combined) CanEditManually() bool { return true }
func (s *Combined) CanEditWithAI() bool   { return true }
func (s *Combined) isVideoState()         {}

// NewInitial creates the root state for a fresh session.
func NewInitial(sessionID string, videos []VideoRef, now time.Time) *Initial {
	return &Initial{
		ID:             deriveStateID(sessionID, "initial", now),
		Session:        sessionID,
		Created:        now,
		SelectedVideos: videos,
	}
}

// RootInitial walks the lineage back to the session's Initial state.
// Returns nil if the lineage does not terminate in an Initial, which
// only happens for sessions resumed from a partial snapshot.
func RootInitial(state VideoState) *Initial {
	for s := state; s != nil; s = s.Previous() {
		if init, ok := s.(*Initial); ok {
			return init
		}
	}
	return nil
}
