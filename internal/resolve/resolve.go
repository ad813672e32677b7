// Package resolve assigns global speaker ids to an episode's
// consolidated local speakers.
//
// Labels are resolved strictly sequentially in ascending label order.
// The identity store serializes MatchOrRegister internally, but the
// per-episode ordering here is what makes a run deterministic: given
// the same store state and the same signatures, the same labels receive
// the same ids.
package resolve

import (
	"context"
	"log/slog"
	"sort"

	"voiceline/internal/identity"
	"voiceline/internal/logging"
	"voiceline/internal/services"
)

// Store is the slice of the identity store the resolver needs.
type Store interface {
	MatchOrRegister(ctx context.Context, signature identity.Vector, episodeNum int, localLabel string, segmentCount int, opts identity.MatchOptions) (identity.MatchResult, error)
}

// Options tunes resolution for one episode.
type Options struct {
	Threshold     float64
	UpdateOnMatch bool
	UpdateWeight  float64
}

// Resolve maps every consolidated local label to a global speaker id.
// A store failure aborts immediately: a partial mapping must never be
// treated as the episode's resolution.
func Resolve(ctx context.Context, store Store, signatures map[string]identity.Vector, segmentCounts map[string]int, episodeNum int, opts Options, logger *slog.Logger) (map[string]int64, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(slog.String(logging.FieldComponent, "resolve"))

	labels := make([]string, 0, len(signatures))
	for label := range signatures {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	mapping := make(map[string]int64, len(labels))
	for _, label := range labels {
		result, err := store.MatchOrRegister(ctx, signatures[label], episodeNum, label, segmentCounts[label], identity.MatchOptions{
			Threshold:     opts.Threshold,
			UpdateOnMatch: opts.UpdateOnMatch,
			UpdateWeight:  opts.UpdateWeight,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrStore, "resolve", "match-or-register", label, err)
		}
		mapping[label] = result.SpeakerID

		if result.Matched {
			logger.Info("matched known speaker",
				slog.String("label", label),
				slog.Int64("speaker_id", result.SpeakerID),
				slog.Float64("similarity", result.Similarity))
		} else {
			logger.Info("registered new speaker",
				slog.String("label", label),
				slog.Int64("speaker_id", result.SpeakerID),
				slog.Float64("best_similarity", result.Similarity))
		}
	}
	return mapping, nil
}
