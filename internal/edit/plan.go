package edit

// Timeline change kinds.
const (
	ChangeTrim    = "trim"
	ChangeReorder = "reorder"
	ChangeDelete  = "delete"
)

// ApplyChanges folds manual timeline changes into a plan and returns
// the resulting plan. The input plan is not modified.
//
//   - trim adjusts the bounds of the first segment cut from the change's
//     source clip; if the plan has no segment for that clip yet (a manual
//     edit straight from raw footage), a new segment is appended.
//   - delete removes the first segment cut from the change's source clip.
//   - reorder moves the first segment cut from the change's source clip
//     to a new position; StartTime doubles as the destination index.
//
// Unknown kinds are ignored rather than rejected, so a newer client
// cannot wedge an older agent.
func ApplyChanges(plan EditPlan, changes []TimelineChange) EditPlan {
	segs := append([]EditSegment(nil), plan.Segments...)

	for _, c := range changes {
		i := indexOfSource(segs, c.SourceVideo)

		switch c.Kind {
		case ChangeTrim:
			if i < 0 {
				segs = append(segs, EditSegment{
					SourceVideo: c.SourceVideo,
					StartTime:   c.StartTime,
					EndTime:     c.EndTime,
				})
				continue
			}
			segs[i].StartTime = c.StartTime
			segs[i].EndTime = c.EndTime

		case ChangeDelete:
			if i < 0 {
				continue
			}
			segs = append(segs[:i], segs[i+1:]...)

		case ChangeReorder:
			if i < 0 {
				continue
			}
			seg := segs[i]
			segs = append(segs[:i], segs[i+1:]...)
			at := int(c.StartTime)
			if at < 0 {
				at = 0
			}
			if at > len(segs) {
				at = len(segs)
			}
			segs = append(segs[:at], append([]EditSegment{seg}, segs[at:]...)...)
		}
	}

	return EditPlan{Segments: segs}
}

func indexOfSource(segs []EditSegment, source string) int {
	for i, s := range segs {
		if s.SourceVideo == source {
			return i
		}
	}
	return -1
}
