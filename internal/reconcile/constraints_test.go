package reconcile

import (
	"testing"

	"github.com/noamfav/diatribe/internal/model"
)

func turnTranscript(specs ...struct {
	speaker  uint32
	count    int
	stepMs   uint64
}) *model.Transcript {
	tr := &model.Transcript{}
	ms := uint64(0)
	for _, s := range specs {
		for i := 0; i < s.count; i++ {
			tr.Tokens = append(tr.Tokens, model.Token{
				ID: model.NewTokenID(), Word: "w", StartMs: ms, EndMs: ms + s.stepMs, Speaker: s.speaker, SpeakerConf: 0.9,
			})
			ms += s.stepMs
		}
	}
	tr.RebuildTurns()
	return tr
}

func TestEnforceMinTurnDurationMergesShortMiddleTurn(t *testing.T) {
	spec := func(spk uint32, n int, step uint64) struct {
		speaker uint32
		count   int
		stepMs  uint64
	} {
		return struct {
			speaker uint32
			count   int
			stepMs  uint64
		}{spk, n, step}
	}

	tr := turnTranscript(spec(0, 5, 300), spec(1, 1, 200), spec(0, 5, 300))
	cfg := DefaultConfig()
	cfg.MinTurnDurationMs = 700

	changes := enforceMinTurnDuration(tr, cfg, nil)
	if len(changes) == 0 {
		t.Fatal("expected the 200ms middle turn to be merged into its flanking speaker")
	}
	tr.RebuildTurns()
	if len(tr.Turns) != 1 {
		t.Errorf("expected the whole transcript to collapse into one turn, got %d turns", len(tr.Turns))
	}
}

func TestEnforceMinTurnDurationProtectsBackchannel(t *testing.T) {
	spec := func(spk uint32, n int, step uint64) struct {
		speaker uint32
		count   int
		stepMs  uint64
	} {
		return struct {
			speaker uint32
			count   int
			stepMs  uint64
		}{spk, n, step}
	}

	tr := turnTranscript(spec(0, 5, 300), spec(1, 1, 200), spec(0, 5, 300))
	backchannelTokenID := tr.Tokens[tr.Turns[1].TokenIndices[0]].ID

	cfg := DefaultConfig()
	cfg.MinTurnDurationMs = 700

	changes := enforceMinTurnDuration(tr, cfg, map[string]bool{backchannelTokenID: true})
	if len(changes) != 0 {
		t.Fatal("expected a protected backchannel single-token turn to survive the min-duration merge")
	}
}

func TestDetectStableSpansRequiresDurationAndConfidence(t *testing.T) {
	tr := &model.Transcript{}
	ms := uint64(0)
	for i := 0; i < 30; i++ {
		tr.Tokens = append(tr.Tokens, model.Token{ID: model.NewTokenID(), Word: "w", StartMs: ms, EndMs: ms + 300, Speaker: 0, SpeakerConf: 0.9})
		ms += 300
	}
	tr.RebuildTurns() // 9000ms run, high confidence

	cfg := DefaultConfig()
	spans := detectStableSpans(tr, cfg)
	if !spans[tr.Tokens[0].ID] {
		t.Error("expected a long, high-confidence run to be marked stable")
	}

	// A short run should not be marked stable even at high confidence.
	short := &model.Transcript{}
	short.Tokens = []model.Token{
		{ID: model.NewTokenID(), StartMs: 0, EndMs: 200, Speaker: 0, SpeakerConf: 0.95},
	}
	short.RebuildTurns()
	shortSpans := detectStableSpans(short, cfg)
	if shortSpans[short.Tokens[0].ID] {
		t.Error("expected a short run to not be marked stable regardless of confidence")
	}
}

func TestReconcileTurnEditsMergeRequiresTwoVotesUnlessAlreadySameLabel(t *testing.T) {
	tr := turnTranscript(struct {
		speaker uint32
		count   int
		stepMs  uint64
	}{0, 3, 300}, struct {
		speaker uint32
		count   int
		stepMs  uint64
	}{1, 3, 300})

	turnA := tr.Turns[0].ID
	turnB := tr.Turns[1].ID

	edit := model.TurnEdit{Type: model.TurnEditMerge, TurnID: turnA, ToTurnID: turnB, Reason: model.ReasonDialoguePairing}
	inputs := []Input{
		{Window: model.Window{ID: "w1"}, Patch: model.WindowPatch{TurnEdits: []model.TurnEdit{edit}}},
	}

	applied, _ := reconcileTurnEdits(tr, inputs)
	if applied != 0 {
		t.Errorf("expected a single-vote merge of differently labeled turns to be rejected, got %d applied", applied)
	}

	inputs = append(inputs, Input{Window: model.Window{ID: "w2"}, Patch: model.WindowPatch{TurnEdits: []model.TurnEdit{edit}}})
	applied, _ = reconcileTurnEdits(tr, inputs)
	if applied != 1 {
		t.Errorf("expected a two-vote merge to be applied, got %d applied", applied)
	}
	if tr.Tokens[tr.Turns[1].TokenIndices[0]].Speaker != tr.Tokens[tr.Turns[0].TokenIndices[0]].Speaker {
		t.Error("expected the merged turn's tokens to adopt the first turn's speaker")
	}
}
