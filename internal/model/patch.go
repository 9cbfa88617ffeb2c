package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ReasonCode is the closed enum of reasons the LLM may cite for a relabel or
// turn edit. Any other value invalidates the patch that carries it.
type ReasonCode string

const (
	ReasonJitterShortTurn       ReasonCode = "jitter_short_turn"
	ReasonOverlapBoundary       ReasonCode = "overlap_boundary"
	ReasonLexicalContinuity     ReasonCode = "lexical_continuity"
	ReasonDialoguePairing       ReasonCode = "dialogue_pairing"
	ReasonBackchannelAttribution ReasonCode = "backchannel_attribution"
	ReasonDoNotChange           ReasonCode = "do_not_change"
)

// ValidReasonCodes is the whitelist patch validation checks against.
var ValidReasonCodes = map[ReasonCode]bool{
	ReasonJitterShortTurn:        true,
	ReasonOverlapBoundary:        true,
	ReasonLexicalContinuity:      true,
	ReasonDialoguePairing:        true,
	ReasonBackchannelAttribution: true,
	ReasonDoNotChange:            true,
}

// TokenRelabel is a single proposed `token_id -> new_speaker` edit, with the
// reason the LLM gave for it and the confidence it reported (if any).
type TokenRelabel struct {
	TokenID      string
	NewSpeaker   uint32
	Reason       ReasonCode
	LLMConfidence *float64 // nil when the LLM didn't report one
}

// TurnEditType distinguishes the two turn-level edits a patch may propose.
type TurnEditType string

const (
	TurnEditMerge TurnEditType = "merge_turns"
	TurnEditSplit TurnEditType = "split_turn"
)

// TurnEdit is a proposed split or merge of turns within a window.
type TurnEdit struct {
	Type           TurnEditType
	TurnID         string // for merge: the first turn; for split: the turn to split
	ToTurnID       string // merge only: the second turn to merge into TurnID
	SplitAtTokenID string // split only: the token where the split occurs
	Reason         ReasonCode
}

// PatchNotes is free-text metadata the LLM may attach to a patch.
type PatchNotes struct {
	UncertainTokens []string
	Summary         string
}

// WindowPatch is the complete output of Stage 1 for one window.
type WindowPatch struct {
	ID            string
	WindowID      string
	TokenRelabels []TokenRelabel
	TurnEdits     []TurnEdit
	// Violations is the LLM's own self-report of rule violations. A non-empty
	// slice here unconditionally invalidates the patch.
	Violations []string
	Notes      PatchNotes
}

// NewPatchID mints a fresh, unique patch identifier.
func NewPatchID() string {
	return "patch_" + uuid.NewString()
}

// HasViolations reports whether the LLM self-reported any rule violations.
func (p WindowPatch) HasViolations() bool { return len(p.Violations) > 0 }

// RelabelCount is the number of token relabels proposed.
func (p WindowPatch) RelabelCount() int { return len(p.TokenRelabels) }

// IsEmpty reports whether the patch proposes no changes at all.
func (p WindowPatch) IsEmpty() bool {
	return len(p.TokenRelabels) == 0 && len(p.TurnEdits) == 0
}

// PatchValidation is the result of validating a WindowPatch against a
// Window's constraints (see llmedit.Validate).
type PatchValidation struct {
	Valid          bool
	Errors         []string
	EditBudgetUsed float64 // fraction of the window's editable tokens relabeled
	CostDelta      float64 // post - pre cost, per editable-token average
}

// Invalid builds a failed PatchValidation from one or more errors.
func Invalid(errs ...error) PatchValidation {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return PatchValidation{Valid: false, Errors: out}
}

// Errorf is a small helper so validation call sites read naturally:
// `errs = append(errs, model.Errorf("..."))`.
func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}
