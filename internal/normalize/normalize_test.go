package normalize

import (
	"testing"

	"github.com/noamfav/diatribe/internal/deepgram"
	"github.com/noamfav/diatribe/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func wordsResponse(words ...deepgram.Word) *deepgram.Response {
	return &deepgram.Response{Results: deepgram.Results{Channels: []deepgram.Channel{
		{Alternatives: []deepgram.Alternative{{Words: words}}},
	}}}
}

func TestTokenizeBuildsCanonicalTokens(t *testing.T) {
	resp := wordsResponse(
		deepgram.Word{Word: "hi", Start: 0.0, End: 0.5, Confidence: 0.99, Speaker: 0, SpeakerConfidence: floatPtr(0.8)},
		deepgram.Word{Word: "there", Start: 0.5, End: 1.0, Confidence: 0.95, Speaker: 0},
	)

	tr, err := Tokenize(resp, DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tr.Tokens))
	}
	if tr.Tokens[0].StartMs != 0 || tr.Tokens[0].EndMs != 500 {
		t.Errorf("expected rounded ms timestamps, got start=%d end=%d", tr.Tokens[0].StartMs, tr.Tokens[0].EndMs)
	}
	if tr.Tokens[0].SpeakerConf != 0.8 {
		t.Errorf("expected explicit speaker confidence preserved, got %v", tr.Tokens[0].SpeakerConf)
	}
	if tr.Tokens[1].SpeakerConf != 0.5 {
		t.Errorf("expected default speaker confidence 0.5 for a word with none, got %v", tr.Tokens[1].SpeakerConf)
	}
}

func TestTokenizeRejectsNegativeDuration(t *testing.T) {
	resp := wordsResponse(deepgram.Word{Word: "bad", Start: 1.0, End: 0.5, Speaker: 0})

	if _, err := Tokenize(resp, DefaultSpeakerConfig()); err == nil {
		t.Fatal("expected an error for a word whose end precedes its start")
	}
}

func TestTokenizeRejectsOutOfOrderWords(t *testing.T) {
	resp := wordsResponse(
		deepgram.Word{Word: "second", Start: 2.0, End: 2.5, Speaker: 0},
		deepgram.Word{Word: "first", Start: 0.0, End: 0.5, Speaker: 0},
	)

	if _, err := Tokenize(resp, DefaultSpeakerConfig()); err == nil {
		t.Fatal("expected an error for words out of start-time order")
	}
}

func TestTokenizeReturnsEmptyTranscriptForNoWords(t *testing.T) {
	resp := wordsResponse()

	tr, err := Tokenize(resp, DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Tokens) != 0 {
		t.Errorf("expected an empty transcript, got %d tokens", len(tr.Tokens))
	}
}

func TestTokenizeOverflowMergesIntoNearestAdmittedSpeaker(t *testing.T) {
	var words []deepgram.Word
	ms := 0.0
	for _, spk := range []uint32{0, 1, 2} {
		words = append(words, deepgram.Word{Word: "w", Start: ms, End: ms + 0.2, Speaker: spk})
		ms += 0.2
	}
	resp := wordsResponse(words...)

	cfg := SpeakerConfig{MaxSpeakers: 2, OverflowPolicy: OverflowMergeIntoNearest}
	tr, err := Tokenize(resp, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Speakers) > 2 {
		t.Fatalf("expected at most 2 distinct speakers after clamping, got %v", tr.Speakers)
	}
	if tr.Tokens[2].Speaker == 2 {
		t.Error("expected the overflowing third speaker to be remapped to an admitted speaker")
	}
}

func TestTokenizeOverflowErrorPolicyRejectsInput(t *testing.T) {
	var words []deepgram.Word
	ms := 0.0
	for _, spk := range []uint32{0, 1, 2} {
		words = append(words, deepgram.Word{Word: "w", Start: ms, End: ms + 0.2, Speaker: spk})
		ms += 0.2
	}
	resp := wordsResponse(words...)

	cfg := SpeakerConfig{MaxSpeakers: 2, OverflowPolicy: OverflowError}
	if _, err := Tokenize(resp, cfg); err == nil {
		t.Fatal("expected an error when the overflow policy is \"error\" and max_speakers is exceeded")
	}
}

func TestDetectOverlapRegionsFlagsCloseSpeakerChange(t *testing.T) {
	tr, err := Tokenize(wordsResponse(
		deepgram.Word{Word: "a", Start: 0.0, End: 1.0, Speaker: 0},
		deepgram.Word{Word: "b", Start: 1.05, End: 1.5, Speaker: 1},
	), DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	DetectOverlapRegions(tr)

	if !tr.Tokens[0].Overlap || !tr.Tokens[1].Overlap {
		t.Error("expected both tokens flanking a close speaker change to be marked overlap")
	}
}

func TestDetectOverlapRegionsIgnoresDistantSpeakerChange(t *testing.T) {
	tr, err := Tokenize(wordsResponse(
		deepgram.Word{Word: "a", Start: 0.0, End: 1.0, Speaker: 0},
		deepgram.Word{Word: "b", Start: 5.0, End: 5.5, Speaker: 1},
	), DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	DetectOverlapRegions(tr)

	if tr.Tokens[0].Overlap || tr.Tokens[1].Overlap {
		t.Error("expected a distant speaker change not to be flagged as overlap")
	}
}

func TestDetectProblemZonesAndMergeZonesUnionOverlappingTypes(t *testing.T) {
	var words []deepgram.Word
	ms := 0.0
	// Three short, rapid speaker alternations: trips both the short-turn and
	// speaker-jitter detectors over the same span.
	for i := 0; i < 6; i++ {
		words = append(words, deepgram.Word{Word: "w", Start: ms, End: ms + 0.1, Speaker: uint32(i % 2)})
		ms += 0.1
	}
	tr, err := Tokenize(wordsResponse(words...), DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := DefaultProblemZoneConfig()
	cfg.MaxSwitchesPer10s = 2
	cfg.MinTurnDurationMs = 800

	zones := DetectProblemZones(tr, cfg)
	if len(zones) == 0 {
		t.Fatal("expected at least one problem zone from rapid speaker alternation")
	}

	merged := MergeZones(zones)
	if len(merged) == 0 {
		t.Fatal("expected MergeZones to return at least one merged zone")
	}
	found := false
	for _, z := range merged {
		if len(z.Types) > 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected overlapping short-turn and speaker-jitter zones to merge into one multi-typed zone")
	}
}

func TestMergeZonesKeepsDisjointZonesSeparate(t *testing.T) {
	zones := []model.ProblemZone{
		{StartMs: 0, EndMs: 1000, Types: []model.ProblemType{model.ProblemShortTurn}},
		{StartMs: 5000, EndMs: 6000, Types: []model.ProblemType{model.ProblemShortTurn}},
	}
	merged := MergeZones(zones)
	if len(merged) != 2 {
		t.Errorf("expected 2 disjoint merged zones, got %d", len(merged))
	}
}

func TestBuildWindowsCoversWholeTranscriptAtStride(t *testing.T) {
	var words []deepgram.Word
	ms := 0.0
	for i := 0; i < 100; i++ {
		words = append(words, deepgram.Word{Word: "w", Start: ms, End: ms + 0.2, Speaker: uint32(i % 2)})
		ms += 0.2
	}
	tr, err := Tokenize(wordsResponse(words...), DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wcfg := WindowConfig{WindowSizeMs: 5000, StrideMs: 2000, AnchorMs: 500, FilterProblemZones: false}
	ws := BuildWindows(tr, wcfg, nil)

	if ws.TotalWindows() == 0 {
		t.Fatal("expected at least one window over a non-empty transcript")
	}
	last := ws.Windows[len(ws.Windows)-1]
	if last.EndMs < tr.DurationMs() {
		t.Errorf("expected the last window to reach the end of the transcript (duration %d), got window end %d",
			tr.DurationMs(), last.EndMs)
	}
}

func TestBuildWindowsEmptyTranscriptYieldsNoWindows(t *testing.T) {
	ws := BuildWindows(&model.Transcript{}, WindowConfig{WindowSizeMs: 1000, StrideMs: 500}, nil)
	if ws.TotalWindows() != 0 {
		t.Errorf("expected 0 windows for an empty transcript, got %d", ws.TotalWindows())
	}
}

func TestTokenWindowIndexMapsEveryEditableToken(t *testing.T) {
	var words []deepgram.Word
	ms := 0.0
	for i := 0; i < 20; i++ {
		words = append(words, deepgram.Word{Word: "w", Start: ms, End: ms + 0.2, Speaker: uint32(i % 2)})
		ms += 0.2
	}
	tr, err := Tokenize(wordsResponse(words...), DefaultSpeakerConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wcfg := WindowConfig{WindowSizeMs: 2000, StrideMs: 1000, AnchorMs: 200, FilterProblemZones: false}
	ws := BuildWindows(tr, wcfg, nil)

	idx := TokenWindowIndex(ws)
	for wi, w := range ws.Windows {
		for _, ti := range w.TokenIndices {
			found := false
			for _, got := range idx[ti] {
				if got == wi {
					found = true
				}
			}
			if !found {
				t.Errorf("token %d is editable in window %d but the index maps it to %v", ti, wi, idx[ti])
			}
		}
	}
	if len(idx) == 0 {
		t.Error("expected TokenWindowIndex to map at least some tokens to windows")
	}
}
