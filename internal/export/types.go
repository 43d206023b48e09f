// Package export turns a session's edit plan into interchange formats
// for external editors. Currently CMX3600 EDL only.
package export

// Clip is one resolved plan segment ready for timeline export. Times
// are seconds within the source clip.
type Clip struct {
	Name      string
	MediaPath string
	StartSec  float64
	EndSec    float64
}

// Result is a generated timeline export. Unresolved lists plan sources
// that could not be matched to a known clip; they are reported rather
// than fatal because the plan was already validated at render time.
type Result struct {
	EDL        string   `json:"edl"`
	ClipCount  int      `json:"clip_count"`
	Unresolved []string `json:"unresolved,omitempty"`
}
