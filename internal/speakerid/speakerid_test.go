package speakerid

import (
	"context"
	"errors"
	"testing"

	"github.com/noamfav/diatribe/internal/model"
)

type fakeIdentifier struct {
	result []Identification
	err    error
}

func (f *fakeIdentifier) IdentifySpeakers(ctx context.Context, systemPrompt, userPrompt string) ([]Identification, error) {
	return f.result, f.err
}

func speakerTranscript() *model.Transcript {
	tr := &model.Transcript{Speakers: []uint32{0, 1}}
	ms := uint64(0)
	for i := 0; i < 10; i++ {
		spk := uint32(i % 2)
		tr.Tokens = append(tr.Tokens, model.Token{ID: model.NewTokenID(), Word: "word", StartMs: ms, EndMs: ms + 200, Speaker: spk})
		ms += 200
	}
	tr.RebuildTurns()
	return tr
}

func TestRunFiltersByConfidenceThreshold(t *testing.T) {
	tr := speakerTranscript()
	identifier := &fakeIdentifier{result: []Identification{
		{SpeakerID: 0, IdentifiedAs: "Alice", Confidence: 0.9},
		{SpeakerID: 1, IdentifiedAs: "Bob", Confidence: 0.4},
	}}

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.7

	res, err := Run(context.Background(), identifier, tr, nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name, ok := res.DisplayNames[0]; !ok || name != "Alice" {
		t.Errorf("expected speaker 0 identified as Alice, got %q ok=%v", name, ok)
	}
	if _, ok := res.DisplayNames[1]; ok {
		t.Error("expected speaker 1 to be filtered out for low confidence")
	}
}

func TestRunPropagatesIdentifierError(t *testing.T) {
	tr := speakerTranscript()
	identifier := &fakeIdentifier{err: errors.New("boom")}

	_, err := Run(context.Background(), identifier, tr, nil, DefaultConfig())
	if err == nil {
		t.Fatal("expected the identifier's error to propagate")
	}
}

func TestNamerFallsBackWhenUnidentified(t *testing.T) {
	res := Result{DisplayNames: map[uint32]string{0: "Alice"}}
	namer := res.Namer()

	if name, ok := namer(0); !ok || name != "Alice" {
		t.Errorf("expected Alice for speaker 0, got %q ok=%v", name, ok)
	}
	if _, ok := namer(5); ok {
		t.Error("expected ok=false for a speaker with no display name")
	}
}

func TestSelectTurnIndicesKeepsFirstTwoAndLongest(t *testing.T) {
	tr := &model.Transcript{}
	// Build 5 turns for one speaker with token counts 1, 1, 5, 2, 3.
	ms := uint64(0)
	counts := []int{1, 1, 5, 2, 3}
	turnStart := 0
	for _, c := range counts {
		for i := 0; i < c; i++ {
			tr.Tokens = append(tr.Tokens, model.Token{ID: model.NewTokenID(), Word: "w", StartMs: ms, EndMs: ms + 100, Speaker: 0})
			ms += 100
		}
		tr.Turns = append(tr.Turns, model.Turn{ID: model.NewTurnID(), Speaker: 0, TokenIndices: indexRange(turnStart, turnStart+c)})
		turnStart += c
		// force a speaker gap so RebuildTurns-independent construction stays valid
		tr.Tokens = append(tr.Tokens, model.Token{ID: model.NewTokenID(), Word: "gap", StartMs: ms, EndMs: ms + 50, Speaker: 1})
		ms += 50
		turnStart++
	}

	turnIdx := []int{0, 1, 2, 3, 4}
	selected := selectTurnIndices(tr, turnIdx, 4)

	if len(selected) != 4 {
		t.Fatalf("expected 4 selected turns (max), got %d: %v", len(selected), selected)
	}
	if selected[0] != 0 || selected[1] != 1 {
		t.Errorf("expected the first two turns to always be included, got %v", selected)
	}
	found := false
	for _, i := range selected {
		if i == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the longest remaining turn (index 2, 5 tokens) to be included, got %v", selected)
	}
}

func indexRange(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
