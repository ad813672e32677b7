// Package segment emits the final (start, end, speaker) spans for an
// episode by walking the subtitle timeline against the detector turns.
package segment

import (
	"log/slog"

	"voiceline/internal/diarize"
	"voiceline/internal/logging"
	"voiceline/internal/subtitles"
)

// tailEstimate caps the assumed length of the last subtitle line, which
// has no successor to borrow an end time from.
const tailEstimate = 10.0

// Segment is one emitted span attributed to a global speaker.
type Segment struct {
	Start     float64
	End       float64
	SpeakerID int64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Bounds holds the allowed segment duration range in seconds.
type Bounds struct {
	Min float64
	Max float64
}

// Stats counts lines that produced no segment, by reason.
type Stats struct {
	DroppedDuration int
	// DroppedNoSpeaker covers windows with no overlapping turn and
	// windows whose dominant label has no global id (filtered upstream).
	DroppedNoSpeaker int
}

// Build converts subtitle lines into final segments. Lines are trusted
// to be in timestamp order. Each line's window runs to the next line's
// timestamp, clamped to bounds.Max; windows outside [bounds.Min,
// bounds.Max] are discarded. The window's speaker is the local label
// with the most overlapping detector speech, mapped through the
// episode's label-to-id mapping.
func Build(lines []subtitles.Line, turns []diarize.Turn, mapping map[string]int64, bounds Bounds, logger *slog.Logger) ([]Segment, Stats) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(slog.String(logging.FieldComponent, "segment"))

	var (
		segments []Segment
		stats    Stats
	)
	for i, line := range lines {
		start := line.Timestamp
		var end float64
		if i < len(lines)-1 {
			end = lines[i+1].Timestamp
		} else {
			end = start + min(tailEstimate, bounds.Max)
		}
		if end > start+bounds.Max {
			end = start + bounds.Max
		}

		duration := end - start
		if duration < bounds.Min || duration > bounds.Max {
			stats.DroppedDuration++
			continue
		}

		label, ok := dominantLabel(turns, diarize.Window{Start: start, End: end})
		if !ok {
			stats.DroppedNoSpeaker++
			continue
		}
		speakerID, ok := mapping[label]
		if !ok {
			stats.DroppedNoSpeaker++
			logger.Debug("dominant speaker has no global id",
				slog.String("label", label),
				slog.Float64("start", start))
			continue
		}

		segments = append(segments, Segment{Start: start, End: end, SpeakerID: speakerID})
	}
	return segments, stats
}

// dominantLabel returns the local label with the largest accumulated
// overlap against the window. Ties go to the label encountered first in
// turn order, which keeps the choice deterministic.
func dominantLabel(turns []diarize.Turn, window diarize.Window) (string, bool) {
	durations := make(map[string]float64)
	var order []string

	for _, turn := range turns {
		overlapStart := max(window.Start, turn.Start)
		overlapEnd := min(window.End, turn.End)
		if overlapEnd <= overlapStart {
			continue
		}
		if _, seen := durations[turn.Label]; !seen {
			order = append(order, turn.Label)
		}
		durations[turn.Label] += overlapEnd - overlapStart
	}

	if len(order) == 0 {
		return "", false
	}

	best := order[0]
	for _, label := range order[1:] {
		if durations[label] > durations[best] {
			best = label
		}
	}
	return best, true
}
