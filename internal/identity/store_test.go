package identity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"

	"voiceline/internal/identity"
	"voiceline/internal/testsupport"
)

func unit(values ...float64) identity.Vector {
	return identity.Vector(values).Unit()
}

func TestRegisterFirstSpeaker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	res, err := store.MatchOrRegister(ctx, unit(1, 0, 0), 1, "SPEAKER_00", 12, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("MatchOrRegister failed: %v", err)
	}
	if res.Matched {
		t.Fatal("empty store cannot produce a match")
	}
	if res.SpeakerID != 1 {
		t.Fatalf("expected first id 1, got %d", res.SpeakerID)
	}

	speaker, err := store.SpeakerByID(ctx, res.SpeakerID)
	if err != nil {
		t.Fatalf("SpeakerByID failed: %v", err)
	}
	if speaker == nil {
		t.Fatal("registered speaker not found")
	}
	if speaker.EpisodeCount != 1 || speaker.SegmentCount != 12 {
		t.Fatalf("unexpected counters: %#v", speaker)
	}
	if math.Abs(speaker.Signature.Norm()-1) > 1e-6 {
		t.Fatalf("stored signature not unit-norm: %g", speaker.Signature.Norm())
	}
	if store.Dim() != 3 {
		t.Fatalf("store dimension not fixed: %d", store.Dim())
	}
}

func TestMatchNearbySignature(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	v := unit(1, 0)
	first, err := store.MatchOrRegister(ctx, v, 1, "SPEAKER_00", 5, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// cosine(v, near) = 0.95
	near := unit(0.95, math.Sqrt(1-0.95*0.95))
	res, err := store.MatchOrRegister(ctx, near, 2, "SPEAKER_03", 7, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if !res.Matched || res.SpeakerID != first.SpeakerID {
		t.Fatalf("expected match to id %d, got %#v", first.SpeakerID, res)
	}
	if res.Similarity < 0.94 || res.Similarity > 0.96 {
		t.Fatalf("unexpected similarity: %g", res.Similarity)
	}

	speaker, err := store.SpeakerByID(ctx, first.SpeakerID)
	if err != nil {
		t.Fatalf("SpeakerByID failed: %v", err)
	}
	if speaker.EpisodeCount != 2 {
		t.Fatalf("episode count should cover both episodes, got %d", speaker.EpisodeCount)
	}
	if speaker.SegmentCount != 12 {
		t.Fatalf("segment count should accumulate, got %d", speaker.SegmentCount)
	}
}

func TestDistinctSignaturesGetDistinctIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := unit(1, 0)
	// cosine(a, b) = 0.1
	b := unit(0.1, math.Sqrt(1-0.01))

	resA, err := store.MatchOrRegister(ctx, a, 1, "SPEAKER_00", 3, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	resB, err := store.MatchOrRegister(ctx, b, 1, "SPEAKER_01", 4, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	if resB.Matched {
		t.Fatalf("dissimilar signature must not match: %#v", resB)
	}
	if resA.SpeakerID == resB.SpeakerID {
		t.Fatal("two distinct speakers received the same global id")
	}
	if resB.SpeakerID <= resA.SpeakerID {
		t.Fatalf("ids must be strictly increasing: %d then %d", resA.SpeakerID, resB.SpeakerID)
	}
}

func TestThresholdComparisonIsStrict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	v := unit(1, 0)
	if _, err := store.MatchOrRegister(ctx, v, 1, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// An identical query scores exactly 1.0. With the threshold also at
	// 1.0 the score does not strictly exceed it, so no match.
	res, err := store.MatchOrRegister(ctx, v, 2, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 1.0})
	if err != nil {
		t.Fatalf("boundary call failed: %v", err)
	}
	if res.Matched {
		t.Fatal("similarity equal to the threshold must not match")
	}
	if res.Similarity != 1.0 {
		t.Fatalf("expected exact similarity 1.0, got %g", res.Similarity)
	}

	// Below the score it matches again.
	res, err = store.MatchOrRegister(ctx, v, 3, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 0.99})
	if err != nil {
		t.Fatalf("match call failed: %v", err)
	}
	if !res.Matched {
		t.Fatal("similarity above the threshold must match")
	}
}

func TestReprocessingReplacesAppearance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	v := unit(0, 1)
	res, err := store.MatchOrRegister(ctx, v, 4, "SPEAKER_00", 5, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := store.MatchOrRegister(ctx, v, 4, "SPEAKER_02", 9, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("rematch failed: %v", err)
	}

	apps, err := store.Appearances(ctx, res.SpeakerID)
	if err != nil {
		t.Fatalf("Appearances failed: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("expected replace semantics, got %d rows", len(apps))
	}
	if apps[0].LocalLabel != "SPEAKER_02" || apps[0].SegmentCount != 9 {
		t.Fatalf("appearance not replaced: %#v", apps[0])
	}

	speaker, err := store.SpeakerByID(ctx, res.SpeakerID)
	if err != nil {
		t.Fatalf("SpeakerByID failed: %v", err)
	}
	if speaker.EpisodeCount != 1 {
		t.Fatalf("episode count must stay distinct, got %d", speaker.EpisodeCount)
	}
}

func TestWeightedUpdateConvergence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seed := unit(1, 0, 0)
	res, err := store.MatchOrRegister(ctx, seed, 1, "SPEAKER_00", 2, identity.MatchOptions{Threshold: 0.5})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	target := unit(0.9, 0.3, 0)
	opts := identity.MatchOptions{Threshold: 0.5, UpdateOnMatch: true, UpdateWeight: 1.0}
	var lastSim float64
	for episode := 2; episode <= 8; episode++ {
		r, err := store.MatchOrRegister(ctx, target, episode, "SPEAKER_00", 2, opts)
		if err != nil {
			t.Fatalf("episode %d: %v", episode, err)
		}
		if !r.Matched || r.SpeakerID != res.SpeakerID {
			t.Fatalf("episode %d: lost the match: %#v", episode, r)
		}

		speaker, err := store.SpeakerByID(ctx, res.SpeakerID)
		if err != nil {
			t.Fatalf("SpeakerByID failed: %v", err)
		}
		if math.Abs(speaker.Signature.Norm()-1) > 1e-5 {
			t.Fatalf("episode %d: signature drifted off unit norm: %g", episode, speaker.Signature.Norm())
		}
		sim := identity.Dot(speaker.Signature.Unit(), target)
		if sim+1e-9 < lastSim {
			t.Fatalf("episode %d: similarity regressed: %g < %g", episode, sim, lastSim)
		}
		lastSim = sim
	}
	if lastSim < 0.99 {
		t.Fatalf("stored signature did not converge toward input direction: %g", lastSim)
	}
}

func TestFindMostSimilarEmptyStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	speaker, sim, err := store.FindMostSimilar(context.Background(), unit(1, 0))
	if err != nil {
		t.Fatalf("FindMostSimilar failed: %v", err)
	}
	if speaker != nil || sim != 0 {
		t.Fatalf("expected (nil, 0) on empty store, got (%#v, %g)", speaker, sim)
	}
}

func TestFindMostSimilarNormalizesQuery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.MatchOrRegister(ctx, unit(1, 0), 1, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Raw extractor scale; similarity must still be cosine.
	speaker, sim, err := store.FindMostSimilar(ctx, identity.Vector{42, 0})
	if err != nil {
		t.Fatalf("FindMostSimilar failed: %v", err)
	}
	if speaker == nil || math.Abs(sim-1) > 1e-6 {
		t.Fatalf("expected exact match, got (%v, %g)", speaker, sim)
	}
}

func TestDimensionMismatchRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.MatchOrRegister(ctx, unit(1, 0, 0), 1, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := store.MatchOrRegister(ctx, unit(1, 0), 2, "SPEAKER_00", 1, identity.MatchOptions{Threshold: 0.85}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestMarkEpisodeProcessedIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.MarkEpisodeProcessed(ctx, 7); err != nil {
			t.Fatalf("mark attempt %d failed: %v", i, err)
		}
	}
	if err := store.MarkEpisodeProcessed(ctx, 3); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	processed, err := store.ProcessedEpisodes(ctx)
	if err != nil {
		t.Fatalf("ProcessedEpisodes failed: %v", err)
	}
	if len(processed) != 2 || processed[0] != 3 || processed[1] != 7 {
		t.Fatalf("unexpected processed set: %v", processed)
	}

	ok, err := store.IsProcessed(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("IsProcessed(7) = %v, %v", ok, err)
	}
	ok, err = store.IsProcessed(ctx, 8)
	if err != nil || ok {
		t.Fatalf("IsProcessed(8) = %v, %v", ok, err)
	}

	if err := store.ClearProcessed(ctx); err != nil {
		t.Fatalf("ClearProcessed failed: %v", err)
	}
	processed, err = store.ProcessedEpisodes(ctx)
	if err != nil {
		t.Fatalf("ProcessedEpisodes failed: %v", err)
	}
	if len(processed) != 0 {
		t.Fatalf("clear left entries: %v", processed)
	}
}

func TestEpisodeMappingAuditTrail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a, err := store.MatchOrRegister(ctx, unit(1, 0), 9, "SPEAKER_00", 2, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := store.MatchOrRegister(ctx, unit(0, 1), 9, "SPEAKER_01", 3, identity.MatchOptions{Threshold: 0.85})
	if err != nil {
		t.Fatalf("register b: %v", err)
	}

	mapping, err := store.EpisodeMapping(ctx, 9)
	if err != nil {
		t.Fatalf("EpisodeMapping failed: %v", err)
	}
	if len(mapping) != 2 || mapping["SPEAKER_00"] != a.SpeakerID || mapping["SPEAKER_01"] != b.SpeakerID {
		t.Fatalf("unexpected mapping: %v", mapping)
	}
}

func TestStatsAndExport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.MatchOrRegister(ctx, unit(1, 0), 1, "SPEAKER_00", 4, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.MatchOrRegister(ctx, unit(0, 1), 2, "SPEAKER_00", 6, identity.MatchOptions{Threshold: 0.85}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.MarkEpisodeProcessed(ctx, 1); err != nil {
		t.Fatalf("mark: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Speakers != 2 || stats.Episodes != 2 || stats.Segments != 10 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	var buf bytes.Buffer
	if err := store.Export(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var doc struct {
		Speakers          []json.RawMessage `json:"speakers"`
		ProcessedEpisodes []int             `json:"processed_episodes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(doc.Speakers) != 2 || len(doc.ProcessedEpisodes) != 1 {
		t.Fatalf("unexpected export contents: %d speakers, %v processed", len(doc.Speakers), doc.ProcessedEpisodes)
	}
}
