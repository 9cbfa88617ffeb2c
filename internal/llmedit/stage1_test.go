package llmedit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noamfav/diatribe/internal/model"
)

type fakeEditor struct {
	calls    atomic.Int32
	failN    int32 // fail the first failN calls with a transport error
	relabel  map[string]uint32
	reason   model.ReasonCode
}

func (f *fakeEditor) EditWindow(ctx context.Context, req WindowRequest) (model.WindowPatch, error) {
	n := f.calls.Add(1)
	if n <= f.failN {
		return model.WindowPatch{}, errors.New("simulated transport failure")
	}

	var relabels []model.TokenRelabel
	for tokenID, speaker := range f.relabel {
		for _, tok := range req.Editable {
			if tok.TokenID == tokenID {
				relabels = append(relabels, model.TokenRelabel{TokenID: tokenID, NewSpeaker: speaker, Reason: f.reason})
			}
		}
	}
	return model.WindowPatch{ID: model.NewPatchID(), WindowID: req.WindowID, TokenRelabels: relabels}, nil
}

func twoWindowTranscript() (*model.Transcript, []model.Window) {
	tr := &model.Transcript{Speakers: []uint32{0, 1}}
	ms := uint64(0)
	for _, s := range []uint32{0, 0, 1, 1, 0, 0, 1, 1} {
		tr.Tokens = append(tr.Tokens, model.Token{ID: model.NewTokenID(), Word: "w", StartMs: ms, EndMs: ms + 200, Speaker: s})
		ms += 200
	}
	tr.RebuildTurns()

	windows := []model.Window{
		{ID: "win_a", StartMs: 0, EndMs: 800, TokenIndices: []int{0, 1, 2, 3}},
		{ID: "win_b", StartMs: 800, EndMs: 1600, TokenIndices: []int{4, 5, 6, 7}},
	}
	return tr, windows
}

func TestRunAcceptsValidPatches(t *testing.T) {
	tr, windows := twoWindowTranscript()
	editor := &fakeEditor{
		relabel: map[string]uint32{tr.Tokens[1].ID: 1},
		reason:  model.ReasonLexicalContinuity,
	}

	cfg := DefaultStageConfig()
	cfg.Validation.AllowedSpeakers = []uint32{0, 1}
	cfg.Validation.MaxEditBudgetPct = 100.0

	res := Run(context.Background(), editor, tr, windows, cfg, nil)

	if len(res.Accepted) != 2 {
		t.Fatalf("expected both windows accepted, got %d (diags: %v)", len(res.Accepted), res.Diags.Items())
	}
	if res.Accepted[0].WindowID > res.Accepted[1].WindowID {
		t.Error("expected accepted patches sorted by window ID")
	}
}

func TestRunRetriesTransportErrorsThenSucceeds(t *testing.T) {
	tr, windows := twoWindowTranscript()
	editor := &fakeEditor{failN: 1} // first call per window fails once across all dispatches

	cfg := DefaultStageConfig()
	cfg.Validation.AllowedSpeakers = []uint32{0, 1}
	cfg.RetryBaseDelay = time.Millisecond
	cfg.Concurrency = 1 // serialize so failN=1 only eats the very first call

	res := Run(context.Background(), editor, tr, windows[:1], cfg, nil)

	if len(res.Accepted) != 1 {
		t.Fatalf("expected the window to succeed after a retry, got %d accepted, diags=%v", len(res.Accepted), res.Diags.Items())
	}
	if editor.calls.Load() < 2 {
		t.Errorf("expected at least 2 calls (1 failure + 1 retry), got %d", editor.calls.Load())
	}
}

func TestRunRecordsDiagnosticOnValidationFailure(t *testing.T) {
	tr, windows := twoWindowTranscript()
	editor := &fakeEditor{
		relabel: map[string]uint32{tr.Tokens[0].ID: 1},
		reason:  model.ReasonCode("not_a_real_reason"),
	}

	cfg := DefaultStageConfig()
	cfg.Validation.AllowedSpeakers = []uint32{0, 1}

	res := Run(context.Background(), editor, tr, windows[:1], cfg, nil)

	if len(res.Accepted) != 0 {
		t.Fatalf("expected no accepted patches, got %d", len(res.Accepted))
	}
	if res.Diags.Len() != 1 {
		t.Fatalf("expected one diagnostic, got %d", res.Diags.Len())
	}
}

func TestRunHandlesCancelledContext(t *testing.T) {
	tr, windows := twoWindowTranscript()
	editor := &fakeEditor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultStageConfig()
	res := Run(ctx, editor, tr, windows, cfg, nil)

	if len(res.Accepted) != 0 {
		t.Fatalf("expected no accepted patches against a cancelled context, got %d", len(res.Accepted))
	}
}
