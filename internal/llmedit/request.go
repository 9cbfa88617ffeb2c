// Package llmedit implements Stage 1 of the labeling pipeline: building a
// constrained local-editor request for each problem-zone window, sending it
// to an external language model, and validating whatever patch comes back.
package llmedit

import (
	"context"

	"github.com/noamfav/diatribe/internal/model"
)

// RequestToken is the read/write view of one token handed to the editor: the
// editable fields plus enough context for it to reason about continuity.
type RequestToken struct {
	TokenID     string
	Word        string
	StartMs     uint64
	EndMs       uint64
	Speaker     uint32
	SpeakerConf float64
	Overlap     bool
	TurnID      string
}

// WindowRequest is everything Stage 1 sends the external editor for one
// window: the editable tokens, read-only anchor context on both sides, the
// speaker label set it may choose from, and the numeric edit budget computed
// for this window.
type WindowRequest struct {
	WindowID       string
	AllowedSpeakers []uint32
	Editable       []RequestToken
	AnchorPrefix   []RequestToken
	AnchorSuffix   []RequestToken
	EditBudget     int // max relabels allowed; already rounded up, minimum 1
}

// Editor is the external collaborator contract: send a window request, get
// back a structured patch or an error. Any transport, authentication, or
// prompt templating lives behind this interface — see internal/clients for
// the HTTP implementation.
type Editor interface {
	EditWindow(ctx context.Context, req WindowRequest) (model.WindowPatch, error)
}

// BuildRequest assembles the WindowRequest for one window, per spec.md §4.2:
// allowed speakers are the smaller of max_speakers labels or the distinct
// labels currently seen.
func BuildRequest(tr *model.Transcript, w model.Window, maxSpeakers int, editBudgetPct float64) WindowRequest {
	allowed := allowedSpeakers(tr, maxSpeakers)

	budget := editBudget(len(w.TokenIndices), editBudgetPct)

	return WindowRequest{
		WindowID:        w.ID,
		AllowedSpeakers: allowed,
		Editable:        toRequestTokens(tr, w.TokenIndices),
		AnchorPrefix:    toRequestTokens(tr, w.AnchorPrefixIndices),
		AnchorSuffix:    toRequestTokens(tr, w.AnchorSuffixIndices),
		EditBudget:      budget,
	}
}

func allowedSpeakers(tr *model.Transcript, maxSpeakers int) []uint32 {
	if maxSpeakers <= 0 || len(tr.Speakers) <= maxSpeakers {
		return append([]uint32(nil), tr.Speakers...)
	}
	return append([]uint32(nil), tr.Speakers[:maxSpeakers]...)
}

func toRequestTokens(tr *model.Transcript, idxs []int) []RequestToken {
	out := make([]RequestToken, 0, len(idxs))
	for _, i := range idxs {
		t := tr.Tokens[i]
		out = append(out, RequestToken{
			TokenID:     t.ID,
			Word:        t.Word,
			StartMs:     t.StartMs,
			EndMs:       t.EndMs,
			Speaker:     t.Speaker,
			SpeakerConf: t.SpeakerConf,
			Overlap:     t.Overlap,
			TurnID:      t.TurnID,
		})
	}
	return out
}

// editBudget is 3% of editable tokens, rounded up, minimum 1, per spec.md §3
// and §4.2.
func editBudget(editableCount int, pct float64) int {
	if editableCount == 0 {
		return 1
	}
	raw := float64(editableCount) * pct / 100.0
	budget := int(raw)
	if float64(budget) < raw {
		budget++
	}
	if budget < 1 {
		budget = 1
	}
	return budget
}
