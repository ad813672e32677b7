// Package diarize defines the contracts voiceline consumes from the
// external speaker-change detector and voice-signature extractor.
//
// Turn labels are local: "SPEAKER_00" in one episode has no relation to
// "SPEAKER_00" in another. Cross-episode identity is the job of the
// identity store.
package diarize

import "context"

// Turn is one speaker-homogeneous span detected in an episode.
type Turn struct {
	// Label identifies the speaker within this episode only.
	Label string
	// Start and End are offsets into the episode audio, in seconds.
	Start float64
	End   float64
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 {
	return t.End - t.Start
}

// Window is a half-open time span [Start, End) in seconds.
type Window struct {
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Detector partitions an episode's audio into speaker turns.
type Detector interface {
	Detect(ctx context.Context, audioPath string) ([]Turn, error)
}

// SignatureExtractor maps a set of audio windows to one fixed-dimension
// voice-signature vector. Output scale is unconstrained; the identity
// store normalizes on ingestion.
type SignatureExtractor interface {
	Extract(ctx context.Context, audioPath string, windows []Window) ([]float64, error)
}
