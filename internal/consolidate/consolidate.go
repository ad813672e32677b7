// Package consolidate merges an episode's raw detector turns into one
// signature-extraction request per local speaker.
//
// Grouping all of a speaker's turns before extraction gives the
// extractor more audio per decision, which is what makes cross-episode
// matching reliable. Speakers with too little total speech are dropped
// up front: a signature built from a few seconds of audio is noise.
package consolidate

import (
	"context"
	"log/slog"
	"sort"

	"voiceline/internal/diarize"
	"voiceline/internal/identity"
	"voiceline/internal/logging"
)

// minUsableAudio is the least concatenated audio (seconds) worth
// sending to the extractor. Shorter groups count as extraction
// failures without an extractor call.
const minUsableAudio = 1.0

// Group holds one local speaker's turns in chronological order.
type Group struct {
	Label         string
	Windows       []diarize.Window
	TotalDuration float64
}

// Result summarizes a consolidation pass.
type Result struct {
	// Signatures maps each surviving local label to its consolidated
	// signature. Labels missing here produce no segments downstream.
	Signatures map[string]identity.Vector
	// Groups retains the per-label turn windows for dominant-speaker
	// lookup during segment building, keyed like Signatures plus any
	// label that failed extraction.
	Groups map[string]Group
	// DroppedShortSpeakers counts labels under the duration threshold.
	DroppedShortSpeakers int
	// FailedExtractions counts labels whose extraction failed or whose
	// audio was too short to attempt.
	FailedExtractions int
}

// GroupTurns buckets detector turns by local label, preserving the
// original chronological order inside each bucket.
func GroupTurns(turns []diarize.Turn) map[string]Group {
	groups := make(map[string]Group)
	for _, turn := range turns {
		group := groups[turn.Label]
		group.Label = turn.Label
		group.Windows = append(group.Windows, diarize.Window{Start: turn.Start, End: turn.End})
		group.TotalDuration += turn.Duration()
		groups[turn.Label] = group
	}
	return groups
}

// Consolidate groups turns, filters out speakers with less than
// minSpeakerDuration seconds of speech, and extracts one signature per
// surviving speaker. Extraction failures are logged and skipped; they
// never fail the episode.
func Consolidate(ctx context.Context, extractor diarize.SignatureExtractor, audioPath string, turns []diarize.Turn, minSpeakerDuration float64, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(slog.String(logging.FieldComponent, "consolidate"))

	all := GroupTurns(turns)
	result := &Result{
		Signatures: make(map[string]identity.Vector),
		Groups:     make(map[string]Group, len(all)),
	}

	labels := make([]string, 0, len(all))
	for label, group := range all {
		if group.TotalDuration < minSpeakerDuration {
			result.DroppedShortSpeakers++
			logger.Debug("dropping short speaker",
				slog.String("label", label),
				slog.Float64("total_duration", group.TotalDuration),
				slog.Float64("min_speaker_duration", minSpeakerDuration))
			continue
		}
		result.Groups[label] = group
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		group := result.Groups[label]
		if group.TotalDuration < minUsableAudio {
			result.FailedExtractions++
			logger.Warn("speaker audio too short to extract",
				slog.String("label", label),
				slog.Float64("total_duration", group.TotalDuration))
			continue
		}

		signature, err := extractor.Extract(ctx, audioPath, group.Windows)
		if err != nil {
			result.FailedExtractions++
			logger.Warn("signature extraction failed",
				slog.String("label", label),
				slog.Any("error", err))
			continue
		}
		result.Signatures[label] = identity.Vector(signature)
		logger.Debug("signature extracted",
			slog.String("label", label),
			slog.Int("turns", len(group.Windows)),
			slog.Float64("total_duration", group.TotalDuration))
	}

	return result, nil
}
