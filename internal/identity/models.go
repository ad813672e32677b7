package identity

import "time"

// Speaker is one global speaker record.
type Speaker struct {
	ID           int64
	Signature    Vector
	Dim          int
	EpisodeCount int
	SegmentCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Notes        string
}

// Appearance records that a speaker appeared in an episode under a
// local label. Unique per (speaker, episode); reprocessing replaces.
type Appearance struct {
	SpeakerID    int64
	EpisodeNum   int
	LocalLabel   string
	SegmentCount int
	CreatedAt    time.Time
}

// MatchOptions tunes MatchOrRegister.
type MatchOptions struct {
	// Threshold is the similarity a candidate must strictly exceed.
	Threshold float64
	// UpdateOnMatch blends the stored signature with the query.
	UpdateOnMatch bool
	// UpdateWeight is the query-side blend weight; values <= 0 fall
	// back to 1.0.
	UpdateWeight float64
}

// MatchResult reports the outcome of MatchOrRegister.
type MatchResult struct {
	SpeakerID int64
	// Matched is false when a new speaker was registered.
	Matched bool
	// Similarity is the best score seen during the scan, whether or
	// not it cleared the threshold.
	Similarity float64
}

// Stats summarizes the store.
type Stats struct {
	Speakers      int
	Episodes      int
	Segments      int
	DatabaseBytes int64
}

// processedEpisodesKey is the processing_state row holding the JSON set
// of processed episode numbers.
const processedEpisodesKey = "processed_episodes"
