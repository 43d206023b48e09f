package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/clipforge/clipforge/internal/edit"
	"github.com/clipforge/clipforge/internal/media"
)

const DefaultFrameRate = 30.0

// EDLFromPlan resolves a plan against the session's source clips and
// renders it as a CMX3600 EDL.
func EDLFromPlan(plan edit.EditPlan, sources map[string]string, title string, frameRate float64) Result {
	clips, unresolved := FromPlan(plan, sources)
	return Result{
		EDL:        GenerateEDL(clips, SanitizeName(title, 60), frameRate),
		ClipCount:  len(clips),
		Unresolved: unresolved,
	}
}

// FromPlan maps plan segments onto source clip paths, tolerating
// extension and case mismatches the same way the renderer does.
func FromPlan(plan edit.EditPlan, sources map[string]string) ([]Clip, []string) {
	var clips []Clip
	var unresolved []string

	for _, seg := range plan.Segments {
		path, err := media.ResolveSource(seg.SourceVideo, sources)
		if err != nil {
			unresolved = append(unresolved, seg.SourceVideo)
			continue
		}
		clips = append(clips, Clip{
			Name:      seg.SourceVideo,
			MediaPath: path,
			StartSec:  seg.StartTime,
			EndSec:    seg.EndTime,
		})
	}
	return clips, unresolved
}

// GenerateEDL renders clips as a CMX3600 edit decision list. Record
// timecodes run sequentially from zero across the clip list.
func GenerateEDL(clips []Clip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if isDropFrame {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}
	b.WriteString("\n")

	recordOffsetMs := 0
	for i, clip := range clips {
		startMs := secToMs(clip.StartSec)
		endMs := secToMs(clip.EndSec)
		durationMs := endMs - startMs

		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "V",
			msToTimecode(startMs, fps),
			msToTimecode(endMs, fps),
			msToTimecode(recordOffsetMs, fps),
			msToTimecode(recordOffsetMs+durationMs, fps),
		)
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", clip.Name)
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", clip.MediaPath)

		recordOffsetMs += durationMs
	}

	b.WriteString("\n")
	return b.String()
}

func secToMs(sec float64) int {
	return int(math.Round(sec * 1000))
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
