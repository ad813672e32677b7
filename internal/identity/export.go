package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type exportSpeaker struct {
	SpeakerID    int64              `json:"speaker_id"`
	Signature    []float64          `json:"signature"`
	Dim          int                `json:"dim"`
	EpisodeCount int                `json:"episode_count"`
	SegmentCount int                `json:"segment_count"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
	Notes        string             `json:"notes,omitempty"`
	Episodes     []exportAppearance `json:"episodes"`
}

type exportAppearance struct {
	EpisodeNum   int    `json:"episode_num"`
	LocalLabel   string `json:"local_label"`
	SegmentCount int    `json:"segment_count"`
}

type exportDocument struct {
	ExportedAt        string          `json:"exported_at"`
	Speakers          []exportSpeaker `json:"speakers"`
	ProcessedEpisodes []int           `json:"processed_episodes"`
}

// Export writes a JSON backup of every speaker, its episode history,
// and the processed-episode set.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	speakers, err := s.ListSpeakers(ctx)
	if err != nil {
		return err
	}
	processed, err := s.ProcessedEpisodes(ctx)
	if err != nil {
		return err
	}
	if processed == nil {
		processed = []int{}
	}

	doc := exportDocument{
		ExportedAt:        time.Now().UTC().Format(time.RFC3339),
		Speakers:          make([]exportSpeaker, 0, len(speakers)),
		ProcessedEpisodes: processed,
	}
	for _, speaker := range speakers {
		appearances, err := s.Appearances(ctx, speaker.ID)
		if err != nil {
			return err
		}
		episodes := make([]exportAppearance, 0, len(appearances))
		for _, app := range appearances {
			episodes = append(episodes, exportAppearance{
				EpisodeNum:   app.EpisodeNum,
				LocalLabel:   app.LocalLabel,
				SegmentCount: app.SegmentCount,
			})
		}
		doc.Speakers = append(doc.Speakers, exportSpeaker{
			SpeakerID:    speaker.ID,
			Signature:    speaker.Signature,
			Dim:          speaker.Dim,
			EpisodeCount: speaker.EpisodeCount,
			SegmentCount: speaker.SegmentCount,
			CreatedAt:    speaker.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:    speaker.UpdatedAt.UTC().Format(time.RFC3339),
			Notes:        speaker.Notes,
			Episodes:     episodes,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}
