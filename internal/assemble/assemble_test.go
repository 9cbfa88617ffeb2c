package assemble

import (
	"testing"

	"github.com/noamfav/diatribe/internal/model"
)

func TestRunTracksRelabeledTokens(t *testing.T) {
	tr := &model.Transcript{Speakers: []uint32{0, 1}}
	ms := uint64(0)
	for _, s := range []uint32{0, 0, 1, 1} {
		tr.Tokens = append(tr.Tokens, model.Token{
			ID: model.NewTokenID(), Word: "w", StartMs: ms, EndMs: ms + 200, Speaker: s, SpeakerConf: 0.8,
		})
		ms += 200
	}
	tr.RebuildTurns()

	original := map[string]uint32{
		tr.Tokens[0].ID: 0,
		tr.Tokens[1].ID: 0,
		tr.Tokens[2].ID: 0, // was relabeled from 0 to 1
		tr.Tokens[3].ID: 1,
	}

	out := Run(tr, original, 3, nil)

	if out.Metadata.TokensRelabeled != 1 {
		t.Fatalf("expected 1 relabeled token, got %d", out.Metadata.TokensRelabeled)
	}
	if out.Metadata.TotalTokens != 4 {
		t.Errorf("expected 4 total tokens, got %d", out.Metadata.TotalTokens)
	}
	if out.Metadata.WindowsProcessed != 3 {
		t.Errorf("expected windows_processed to pass through, got %d", out.Metadata.WindowsProcessed)
	}

	var relabeledToken Token
	for _, tok := range out.Tokens {
		if tok.WasRelabeled {
			relabeledToken = tok
		}
	}
	if relabeledToken.OriginalSpeaker != 0 || relabeledToken.Speaker != 1 {
		t.Errorf("expected relabeled token to show original=0 current=1, got original=%d current=%d",
			relabeledToken.OriginalSpeaker, relabeledToken.Speaker)
	}
}

func TestRunTreatsMissingOriginalAsUnchanged(t *testing.T) {
	tr := &model.Transcript{Speakers: []uint32{0}}
	tr.Tokens = []model.Token{{ID: model.NewTokenID(), Word: "hi", StartMs: 0, EndMs: 100, Speaker: 0}}
	tr.RebuildTurns()

	out := Run(tr, map[string]uint32{}, 0, nil)

	if out.Tokens[0].WasRelabeled {
		t.Error("expected a token with no recorded original speaker to be treated as unchanged")
	}
	if out.Metadata.TokensRelabeled != 0 {
		t.Errorf("expected 0 relabeled tokens, got %d", out.Metadata.TokensRelabeled)
	}
	if out.Changes == nil || len(out.Changes) != 0 {
		t.Errorf("expected changes to be an empty (non-nil) slice, got %#v", out.Changes)
	}
}
