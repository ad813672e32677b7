package consolidate_test

import (
	"context"
	"errors"
	"testing"

	"voiceline/internal/consolidate"
	"voiceline/internal/diarize"
)

type fakeExtractor struct {
	calls []extractCall
	// fail is keyed by the first window's start time so tests can
	// target one group.
	fail map[float64]error
	next float64
}

type extractCall struct {
	audioPath string
	windows   []diarize.Window
}

func (f *fakeExtractor) Extract(_ context.Context, audioPath string, windows []diarize.Window) ([]float64, error) {
	f.calls = append(f.calls, extractCall{audioPath: audioPath, windows: windows})
	if f.fail != nil && len(windows) > 0 {
		if err, ok := f.fail[windows[0].Start]; ok {
			return nil, err
		}
	}
	f.next++
	return []float64{f.next, 1, 0}, nil
}

func turns() []diarize.Turn {
	return []diarize.Turn{
		{Label: "SPEAKER_00", Start: 0, End: 4},
		{Label: "SPEAKER_01", Start: 4, End: 5.5},
		{Label: "SPEAKER_00", Start: 5.5, End: 9},
		{Label: "SPEAKER_02", Start: 9, End: 9.8},
		{Label: "SPEAKER_01", Start: 10, End: 14},
	}
}

func TestGroupTurnsPreservesOrderAndDurations(t *testing.T) {
	groups := consolidate.GroupTurns(turns())
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	zero := groups["SPEAKER_00"]
	if len(zero.Windows) != 2 || zero.Windows[0].Start != 0 || zero.Windows[1].Start != 5.5 {
		t.Fatalf("chronological order lost: %#v", zero.Windows)
	}
	if zero.TotalDuration != 7.5 {
		t.Fatalf("unexpected total duration: %g", zero.TotalDuration)
	}
}

func TestConsolidateDropsShortSpeakers(t *testing.T) {
	ex := &fakeExtractor{}
	result, err := consolidate.Consolidate(context.Background(), ex, "ep.wav", turns(), 5.0, nil)
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}

	// SPEAKER_02 has 0.8s total, under the 5s threshold.
	if result.DroppedShortSpeakers != 1 {
		t.Fatalf("expected 1 dropped speaker, got %d", result.DroppedShortSpeakers)
	}
	if _, ok := result.Signatures["SPEAKER_02"]; ok {
		t.Fatal("dropped speaker must not receive a signature")
	}
	if len(result.Signatures) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(result.Signatures))
	}
	if len(ex.calls) != 2 {
		t.Fatalf("expected 2 extractor calls, got %d", len(ex.calls))
	}
	for _, call := range ex.calls {
		if call.audioPath != "ep.wav" {
			t.Fatalf("audio path not forwarded: %q", call.audioPath)
		}
	}
}

func TestConsolidateExtractionFailureIsNonFatal(t *testing.T) {
	ex := &fakeExtractor{fail: map[float64]error{0: errors.New("model exploded")}}
	result, err := consolidate.Consolidate(context.Background(), ex, "ep.wav", turns(), 5.0, nil)
	if err != nil {
		t.Fatalf("Consolidate must recover extraction failures: %v", err)
	}

	// SPEAKER_00's group starts at 0 and fails; SPEAKER_01 survives.
	if result.FailedExtractions != 1 {
		t.Fatalf("expected 1 failed extraction, got %d", result.FailedExtractions)
	}
	if _, ok := result.Signatures["SPEAKER_00"]; ok {
		t.Fatal("failed label must be excluded from the signature map")
	}
	if _, ok := result.Signatures["SPEAKER_01"]; !ok {
		t.Fatal("surviving label missing")
	}
	// The group is still retained for dominant-speaker lookup.
	if _, ok := result.Groups["SPEAKER_00"]; !ok {
		t.Fatal("failed label should keep its turn group")
	}
}

func TestConsolidateTooShortAudioSkipsExtractor(t *testing.T) {
	short := []diarize.Turn{{Label: "SPEAKER_00", Start: 0, End: 0.4}}
	ex := &fakeExtractor{}
	result, err := consolidate.Consolidate(context.Background(), ex, "ep.wav", short, 0, nil)
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if len(ex.calls) != 0 {
		t.Fatal("groups under one second must not reach the extractor")
	}
	if result.FailedExtractions != 1 {
		t.Fatalf("expected the short group to count as a failed extraction, got %d", result.FailedExtractions)
	}
}

func TestConsolidateEmptyInput(t *testing.T) {
	ex := &fakeExtractor{}
	result, err := consolidate.Consolidate(context.Background(), ex, "ep.wav", nil, 5.0, nil)
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if len(result.Signatures) != 0 || len(result.Groups) != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}
