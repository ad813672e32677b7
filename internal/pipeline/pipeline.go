// Package pipeline runs the per-episode processing sequence:
// consolidate detector turns, resolve local speakers to global ids,
// build subtitle-aligned segments, and record the episode as processed.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"voiceline/internal/consolidate"
	"voiceline/internal/diarize"
	"voiceline/internal/identity"
	"voiceline/internal/logging"
	"voiceline/internal/resolve"
	"voiceline/internal/segment"
	"voiceline/internal/subtitles"
)

// Store is the slice of the identity store the pipeline drives.
type Store interface {
	resolve.Store
	IsProcessed(ctx context.Context, episodeNum int) (bool, error)
	MarkEpisodeProcessed(ctx context.Context, episodeNum int) error
}

// Options tunes one processing run.
type Options struct {
	MinDuration         float64
	MaxDuration         float64
	MinSpeakerDuration  float64
	SimilarityThreshold float64
	UpdateOnMatch       bool
	UpdateWeight        float64
	// Force reprocesses an episode already in the processed set.
	Force bool
}

// Result summarizes one episode run.
type Result struct {
	Segments []segment.Segment
	// Mapping records local label to global speaker id for the episode.
	Mapping              map[string]int64
	DroppedShortSpeakers int
	FailedExtractions    int
	DroppedDuration      int
	DroppedNoSpeaker     int
	// Skipped is set when the episode was already processed and Force
	// was off; no other field is populated.
	Skipped bool
}

// Processor wires the episode stages to an identity store and a
// signature extractor.
type Processor struct {
	store     Store
	extractor diarize.SignatureExtractor
	logger    *slog.Logger
}

// New builds a Processor. A nil logger disables logging.
func New(store Store, extractor diarize.SignatureExtractor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{store: store, extractor: extractor, logger: logger}
}

// ProcessEpisode runs the full sequence for one episode. The episode is
// marked processed only after every stage succeeds; a store failure
// leaves the processed set untouched so a rerun retries cleanly.
func (p *Processor) ProcessEpisode(ctx context.Context, episodeNum int, audioPath string, turns []diarize.Turn, lines []subtitles.Line, opts Options) (*Result, error) {
	logger := p.logger.With(
		slog.Int(logging.FieldEpisode, episodeNum),
		slog.String(logging.FieldCorrelationID, uuid.NewString()),
	)

	processed, err := p.store.IsProcessed(ctx, episodeNum)
	if err != nil {
		return nil, err
	}
	if processed && !opts.Force {
		logger.Info("episode already processed, skipping")
		return &Result{Skipped: true}, nil
	}

	logger.Info("processing episode",
		slog.Int("turns", len(turns)),
		slog.Int("subtitle_lines", len(lines)))

	consolidated, err := consolidate.Consolidate(ctx, p.extractor, audioPath, turns, opts.MinSpeakerDuration, logger)
	if err != nil {
		return nil, err
	}

	segmentCounts := make(map[string]int, len(consolidated.Signatures))
	for label := range consolidated.Signatures {
		segmentCounts[label] = len(consolidated.Groups[label].Windows)
	}

	mapping, err := resolve.Resolve(ctx, p.store, consolidated.Signatures, segmentCounts, episodeNum, resolve.Options{
		Threshold:     opts.SimilarityThreshold,
		UpdateOnMatch: opts.UpdateOnMatch,
		UpdateWeight:  opts.UpdateWeight,
	}, logger)
	if err != nil {
		return nil, err
	}

	segments, stats := segment.Build(lines, turns, mapping, segment.Bounds{
		Min: opts.MinDuration,
		Max: opts.MaxDuration,
	}, logger)

	if err := p.store.MarkEpisodeProcessed(ctx, episodeNum); err != nil {
		return nil, err
	}

	logger.Info("episode processed",
		slog.Int("segments", len(segments)),
		slog.Int("speakers", len(mapping)),
		slog.Int("dropped_duration", stats.DroppedDuration),
		slog.Int("dropped_no_speaker", stats.DroppedNoSpeaker))

	return &Result{
		Segments:             segments,
		Mapping:              mapping,
		DroppedShortSpeakers: consolidated.DroppedShortSpeakers,
		FailedExtractions:    consolidated.FailedExtractions,
		DroppedDuration:      stats.DroppedDuration,
		DroppedNoSpeaker:     stats.DroppedNoSpeaker,
	}, nil
}

var _ Store = (*identity.Store)(nil)
