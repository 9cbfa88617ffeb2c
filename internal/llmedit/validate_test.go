package llmedit

import (
	"testing"

	"github.com/noamfav/diatribe/internal/model"
)

func twoSpeakerWindow() (*model.Transcript, model.Window) {
	tr := &model.Transcript{}
	ms := uint64(0)
	for i, s := range []uint32{0, 0, 1, 1, 0} {
		tr.Tokens = append(tr.Tokens, model.Token{
			ID:      model.NewTokenID(),
			Word:    "word",
			StartMs: ms,
			EndMs:   ms + 200,
			Speaker: s,
		})
		_ = i
		ms += 200
	}
	tr.Speakers = []uint32{0, 1}
	tr.RebuildTurns()

	w := model.Window{
		ID:           "win_1",
		StartMs:      0,
		EndMs:        1000,
		TokenIndices: []int{0, 1, 2, 3, 4},
	}
	return tr, w
}

func TestValidateRejectsSelfReportedViolations(t *testing.T) {
	tr, w := twoSpeakerWindow()
	patch := model.WindowPatch{Violations: []string{"the model flagged something"}}

	got := Validate(patch, tr, w, DefaultValidationConfig())
	if got.Valid {
		t.Fatal("expected patch with self-reported violations to be rejected")
	}
}

func TestValidateRejectsTokenOutsideWindow(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}

	patch := model.WindowPatch{
		TokenRelabels: []model.TokenRelabel{
			{TokenID: "tok_does_not_exist", NewSpeaker: 1, Reason: model.ReasonLexicalContinuity},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if got.Valid {
		t.Fatal("expected patch referencing a token outside the window to be rejected")
	}
}

func TestValidateRejectsDisallowedSpeaker(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}

	patch := model.WindowPatch{
		TokenRelabels: []model.TokenRelabel{
			{TokenID: tr.Tokens[0].ID, NewSpeaker: 7, Reason: model.ReasonLexicalContinuity},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if got.Valid {
		t.Fatal("expected patch proposing a disallowed speaker to be rejected")
	}
}

func TestValidateRejectsUnknownReasonCode(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}

	patch := model.WindowPatch{
		TokenRelabels: []model.TokenRelabel{
			{TokenID: tr.Tokens[0].ID, NewSpeaker: 1, Reason: model.ReasonCode("made_up_reason")},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if got.Valid {
		t.Fatal("expected patch with an unrecognized reason code to be rejected")
	}
}

func TestValidateRejectsOverEditBudget(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}
	cfg.MaxEditBudgetPct = 3.0 // budget for 5 tokens is 1

	patch := model.WindowPatch{
		TokenRelabels: []model.TokenRelabel{
			{TokenID: tr.Tokens[0].ID, NewSpeaker: 1, Reason: model.ReasonLexicalContinuity},
			{TokenID: tr.Tokens[1].ID, NewSpeaker: 1, Reason: model.ReasonLexicalContinuity},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if got.Valid {
		t.Fatal("expected patch exceeding the edit budget to be rejected")
	}
}

func TestValidateAcceptsWellFormedPatch(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}
	cfg.MaxEditBudgetPct = 100.0 // generous budget so the single relabel always fits

	patch := model.WindowPatch{
		TokenRelabels: []model.TokenRelabel{
			{TokenID: tr.Tokens[1].ID, NewSpeaker: 1, Reason: model.ReasonJitterShortTurn},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if !got.Valid {
		t.Fatalf("expected well-formed patch to be accepted, errors: %v", got.Errors)
	}
	if got.EditBudgetUsed <= 0 {
		t.Errorf("expected non-zero edit budget used, got %v", got.EditBudgetUsed)
	}
}

func TestValidateRejectsTurnEditOutsideWindow(t *testing.T) {
	tr, w := twoSpeakerWindow()
	cfg := DefaultValidationConfig()
	cfg.AllowedSpeakers = []uint32{0, 1}

	patch := model.WindowPatch{
		TurnEdits: []model.TurnEdit{
			{Type: model.TurnEditMerge, TurnID: "turn_not_real", ToTurnID: "turn_also_not_real", Reason: model.ReasonDialoguePairing},
		},
	}

	got := Validate(patch, tr, w, cfg)
	if got.Valid {
		t.Fatal("expected turn edit referencing unknown turns to be rejected")
	}
}

func TestEditBudgetRoundsUpWithMinimumOne(t *testing.T) {
	cases := []struct {
		count int
		pct   float64
		want  int
	}{
		{count: 0, pct: 3.0, want: 1},
		{count: 10, pct: 3.0, want: 1}, // 0.3 rounds up to 1
		{count: 100, pct: 3.0, want: 3},
		{count: 34, pct: 3.0, want: 2}, // 1.02 rounds up to 2
	}
	for _, c := range cases {
		if got := editBudget(c.count, c.pct); got != c.want {
			t.Errorf("editBudget(%d, %v) = %d, want %d", c.count, c.pct, got, c.want)
		}
	}
}
