// Package sherpa adapts sherpa-onnx speaker models to the detector and
// extractor interfaces the pipeline consumes.
package sherpa

import (
	"context"
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"voiceline/internal/config"
	"voiceline/internal/diarize"
	"voiceline/internal/media"
	"voiceline/internal/services"
)

// Detector runs offline speaker diarization over an episode's audio.
type Detector struct {
	mu       sync.Mutex
	diarizer *sherpa.OfflineSpeakerDiarization
}

// NewDetector builds a Detector from the diarizer configuration. Both
// model paths must exist on disk.
func NewDetector(cfg config.Diarizer) (*Detector, error) {
	if _, err := os.Stat(cfg.SegmentationModel); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "load-model",
			fmt.Sprintf("segmentation model %s", cfg.SegmentationModel), err)
	}
	if _, err := os.Stat(cfg.EmbeddingModel); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "load-model",
			fmt.Sprintf("embedding model %s", cfg.EmbeddingModel), err)
	}

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: cfg.SegmentationModel,
			},
			NumThreads: cfg.NumThreads,
			Provider:   cfg.Provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      cfg.EmbeddingModel,
			NumThreads: cfg.NumThreads,
			Provider:   cfg.Provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			// Speaker count is discovered, never fixed up front.
			NumClusters: -1,
			Threshold:   float32(cfg.ClusteringThreshold),
		},
		MinDurationOn:  0.3,
		MinDurationOff: 0.5,
	}

	diarizer := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if diarizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "init",
			fmt.Sprintf("provider %s", cfg.Provider), fmt.Errorf("sherpa-onnx diarizer creation failed"))
	}
	return &Detector{diarizer: diarizer}, nil
}

// Detect diarizes the audio file and returns speech turns labeled
// SPEAKER_00, SPEAKER_01 and so on, in chronological order.
func (d *Detector) Detect(ctx context.Context, audioPath string) ([]diarize.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := media.LoadWAV(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "diarize", "load-audio", audioPath, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if want := d.diarizer.SampleRate(); audio.SampleRate != want {
		return nil, services.Wrap(services.ErrValidation, "diarize", "sample-rate",
			audioPath, fmt.Errorf("got %d Hz, model expects %d Hz", audio.SampleRate, want))
	}

	segments := d.diarizer.Process(audio.Samples)
	turns := make([]diarize.Turn, 0, len(segments))
	for _, seg := range segments {
		turns = append(turns, diarize.Turn{
			Label: fmt.Sprintf("SPEAKER_%02d", seg.Speaker),
			Start: float64(seg.Start),
			End:   float64(seg.End),
		})
	}
	return turns, nil
}

// Close releases the underlying diarizer.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.diarizer != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.diarizer)
		d.diarizer = nil
	}
}

// Extractor computes one speaker signature from the concatenated audio
// of a speaker's turns.
type Extractor struct {
	mu        sync.Mutex
	extractor *sherpa.SpeakerEmbeddingExtractor

	// One episode's turns all reference the same file, so the last
	// decoded audio is kept around between calls.
	cachedPath  string
	cachedAudio *media.Audio
}

// NewExtractor builds an Extractor from the diarizer configuration.
func NewExtractor(cfg config.Diarizer) (*Extractor, error) {
	if _, err := os.Stat(cfg.EmbeddingModel); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "load-model",
			fmt.Sprintf("embedding model %s", cfg.EmbeddingModel), err)
	}

	extractor := sherpa.NewSpeakerEmbeddingExtractor(&sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      cfg.EmbeddingModel,
		NumThreads: cfg.NumThreads,
		Provider:   cfg.Provider,
	})
	if extractor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "init",
			fmt.Sprintf("provider %s", cfg.Provider), fmt.Errorf("sherpa-onnx extractor creation failed"))
	}
	return &Extractor{extractor: extractor}, nil
}

// Extract concatenates the windows' samples and computes a single
// embedding for them.
func (e *Extractor) Extract(ctx context.Context, audioPath string, windows []diarize.Window) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	audio, err := e.load(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extract", "load-audio", audioPath, err)
	}

	var samples []float32
	for _, window := range windows {
		samples = append(samples, audio.Slice(window.Start, window.End)...)
	}
	if len(samples) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extract", "gather-samples",
			audioPath, fmt.Errorf("windows cover no audio"))
	}

	stream := e.extractor.CreateStream()
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(audio.SampleRate, samples)
	stream.InputFinished()

	embedding := e.extractor.Compute(stream)
	if len(embedding) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extract", "compute",
			audioPath, fmt.Errorf("empty embedding"))
	}

	signature := make([]float64, len(embedding))
	for i, v := range embedding {
		signature[i] = float64(v)
	}
	return signature, nil
}

func (e *Extractor) load(audioPath string) (*media.Audio, error) {
	if e.cachedPath == audioPath && e.cachedAudio != nil {
		return e.cachedAudio, nil
	}
	audio, err := media.LoadWAV(audioPath)
	if err != nil {
		return nil, err
	}
	e.cachedPath = audioPath
	e.cachedAudio = audio
	return audio, nil
}

// Close releases the underlying extractor.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
	e.cachedAudio = nil
	e.cachedPath = ""
}
