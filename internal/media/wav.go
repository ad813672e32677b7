// Package media loads episode audio into the sample format the
// detector and extractor consume.
package media

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Audio holds decoded PCM as mono float32 samples in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the audio length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Slice returns the samples covering [start, end) seconds, clamped to
// the audio bounds.
func (a *Audio) Slice(start, end float64) []float32 {
	lo := int(start * float64(a.SampleRate))
	hi := int(end * float64(a.SampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(a.Samples) {
		hi = len(a.Samples)
	}
	if lo >= hi {
		return nil
	}
	return a.Samples[lo:hi]
}

// LoadWAV decodes a PCM WAV file, downmixing multi-channel audio to
// mono by averaging channels.
func LoadWAV(path string) (*Audio, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("%s has no channel information", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return &Audio{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
