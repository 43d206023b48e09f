// Package edit holds the core editing-session domain: the closed set of
// video states, the operations that move between them, and the pure
// transition function that folds an operation into a state.
package edit

// VideoRef identifies one originally selected source clip.
type VideoRef struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// TranscriptSegment is one time-stamped piece of recognised speech.
// Times are seconds from the start of the source clip.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SceneAnalysis is a time-bounded segment of a source video with a
// representative frame and the transcript segments that fall inside it.
type SceneAnalysis struct {
	SceneNumber   int                 `json:"scene_number"`
	StartTime     float64             `json:"start_time"`
	EndTime       float64             `json:"end_time"`
	FrameBase64   string              `json:"frame_base64,omitempty"`
	Transcription []TranscriptSegment `json:"transcription,omitempty"`
}

// VideoAnalysis is the per-file result of the analysis stage.
type VideoAnalysis struct {
	FileName string          `json:"file_name"`
	HasAudio bool            `json:"has_audio"`
	Scenes   []SceneAnalysis `json:"scenes"`
}

// EditSegment is one entry of an edit plan: a time range cut from a
// named source clip. Times are seconds.
type EditSegment struct {
	SourceVideo string  `json:"source_video"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Notes       string  `json:"notes,omitempty"`
}

// EditPlan is the ordered list of segments defining the final cut.
type EditPlan struct {
	Segments []EditSegment `json:"segments"`
}

// IsEmpty reports whether the plan has no segments. An empty plan can
// never be rendered meaningfully.
func (p EditPlan) IsEmpty() bool { return len(p.Segments) == 0 }

// Duration returns the summed length of all segments in seconds.
func (p EditPlan) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.EndTime - s.StartTime
	}
	return total
}

// TimelineChange describes one manual adjustment the user made on the
// timeline.
type TimelineChange struct {
	Kind        string  `json:"kind"` // trim | reorder | delete
	SourceVideo string  `json:"source_video"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// SourceType tags how the current cut came to be. It is used for
// display and telemetry only, never for transition decisions.
type SourceType string

const (
	SourceRaw         SourceType = "RAW"
	SourceAIGenerated SourceType = "AI_GENERATED"
	SourceManual      SourceType = "MANUAL"
	SourceCombined    SourceType = "COMBINED"
)
