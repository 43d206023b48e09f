package edit

import "time"

// Operation is the closed set of edits that can be folded into a state.
// Operations are immutable and self-describing: each carries everything
// needed to replay or audit it.
type Operation interface {
	OpTimestamp() time.Time
	OpResultPath() string
	OpPlan() EditPlan

	isOperation()
}

// AIProcessOp is one completed AI planning round.
type AIProcessOp struct {
	Command    string
	Timestamp  time.Time
	ResultPath string
	Plan       EditPlan
	Analyses   map[string]VideoAnalysis
}

func (o *AIProcessOp) OpTimestamp() time.Time { return o.Timestamp }
func (o *AIProcessOp) OpResultPath() string   { return o.ResultPath }
func (o *AIProcessOp) OpPlan() EditPlan       { return o.Plan }
func (o *AIProcessOp) isOperation()           {}

// ManualEditOp is one batch of manual timeline changes.
type ManualEditOp struct {
	Changes    []TimelineChange
	Timestamp  time.Time
	ResultPath string
	Plan       EditPlan
}

func (o *ManualEditOp) OpTimestamp() time.Time { return o.Timestamp }
func (o *ManualEditOp) OpResultPath() string   { return o.ResultPath }
func (o *ManualEditOp) OpPlan() EditPlan       { return o.Plan }
func (o *ManualEditOp) isOperation()           {}
