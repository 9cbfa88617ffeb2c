package model

import (
	"fmt"

	"github.com/google/uuid"
)

// ProblemType enumerates the four overlapping detectors Stage 0 runs to
// decide which windows are worth sending to the LLM.
type ProblemType string

const (
	ProblemSpeakerJitter   ProblemType = "speaker_jitter"
	ProblemShortTurn       ProblemType = "short_turn"
	ProblemOverlapAdjacent ProblemType = "overlap_adjacent"
	ProblemLowConfidence   ProblemType = "low_confidence"
)

// ProblemZone is a contiguous time interval flagged for LLM attention by one
// or more detectors. Overlapping zones of any type are merged into maximal
// intervals by the caller before windows are built.
type ProblemZone struct {
	StartMs      uint64
	EndMs        uint64
	Types        []ProblemType
	TokenIndices []int
}

// Window is a time-bounded slice of the token stream used by Stage 1: the
// tokens whose start time falls inside [StartMs, EndMs) are editable: the
// anchor prefix and suffix are read-only context drawn from a bounded margin
// outside the window boundary.
type Window struct {
	ID                  string
	StartMs             uint64
	EndMs               uint64
	TokenIndices        []int // editable tokens, indices into Transcript.Tokens
	AnchorPrefixIndices []int
	AnchorSuffixIndices []int
	IsProblemZone       bool
	ProblemTypes        []ProblemType
}

// NewWindowID mints a fresh, random window identifier. See Token's
// NewTokenID: production window construction uses WindowIDForStart instead.
func NewWindowID() string {
	return "win_" + uuid.NewString()
}

// WindowIDForStart derives a stable window ID from its start time, so that
// rebuilding windows over identical input yields identical IDs.
func WindowIDForStart(startMs uint64) string {
	return fmt.Sprintf("win_%d", startMs)
}

// DurationMs is the window's nominal size, independent of how many tokens
// actually fall inside it.
func (w Window) DurationMs() uint64 {
	if w.EndMs < w.StartMs {
		return 0
	}
	return w.EndMs - w.StartMs
}

// TokenCount is the number of editable (non-anchor) tokens.
func (w Window) TokenCount() int { return len(w.TokenIndices) }

// IsEditable reports whether the given token index is part of this window's
// editable region (as opposed to one of its anchors, or outside the window
// entirely).
func (w Window) IsEditable(tokenIndex int) bool {
	for _, idx := range w.TokenIndices {
		if idx == tokenIndex {
			return true
		}
	}
	return false
}

// CenterMs is the window's nominal midpoint.
func (w Window) CenterMs() uint64 {
	return (w.StartMs + w.EndMs) / 2
}

// ProximityToCenter returns a triangular weight: 1.0 at the window's
// midpoint, tapering linearly to 0.0 at either boundary of the editable
// region. Stage 2 rescales it linearly so the boundary weight is 0.3 rather
// than 0 (see reconcile's boundaryFloorProximity); this method reports the
// raw value.
func (w Window) ProximityToCenter(timestampMs uint64) float64 {
	half := float64(w.DurationMs()) / 2
	if half == 0 {
		return 1.0
	}
	center := float64(w.CenterMs())
	distance := float64(timestampMs) - center
	if distance < 0 {
		distance = -distance
	}
	v := 1.0 - distance/half
	if v < 0 {
		return 0
	}
	return v
}

// WindowSet is the result of Stage 0's window construction: every window in
// start-time order, plus the indices of the ones worth sending to the LLM.
type WindowSet struct {
	Windows              []Window
	ProblemWindowIndices []int
}

// ProblemWindows returns the subset of Windows that intersect a problem zone.
func (ws WindowSet) ProblemWindows() []Window {
	out := make([]Window, 0, len(ws.ProblemWindowIndices))
	for _, i := range ws.ProblemWindowIndices {
		if i >= 0 && i < len(ws.Windows) {
			out = append(out, ws.Windows[i])
		}
	}
	return out
}

// TotalWindows is the number of windows generated, irrespective of whether
// they are problem windows.
func (ws WindowSet) TotalWindows() int { return len(ws.Windows) }
