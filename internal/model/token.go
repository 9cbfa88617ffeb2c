package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Token is the atomic unit of a transcript: one recognized word with timing
// and attribution metadata. Word and timestamps are set once, at Stage 0, and
// never change afterward; Speaker is the only mutable field, and it is the
// target of the whole pipeline.
type Token struct {
	ID          string
	Word        string
	StartMs     uint64
	EndMs       uint64
	Speaker     uint32
	SpeakerConf float64
	WordConf    float64
	Overlap     bool
	SegmentID   string
	TurnID      string
	// OriginalIndex preserves source order for tie-breaking when two tokens
	// share a start time.
	OriginalIndex int
}

// DurationMs returns the token's duration, saturating at zero.
func (t Token) DurationMs() uint64 {
	if t.EndMs < t.StartMs {
		return 0
	}
	return t.EndMs - t.StartMs
}

// NewTokenID mints a fresh, random token identifier. Tests and other
// non-pipeline callers that don't need cross-run determinism use this; the
// pipeline itself derives token IDs from source position (TokenIDForIndex)
// so that identical input produces a byte-identical machine transcript.
func NewTokenID() string {
	return "tok_" + uuid.NewString()
}

// TokenIDForIndex derives a stable token ID from a word's position in the
// source document. Same input, same ID, every run.
func TokenIDForIndex(i int) string {
	return fmt.Sprintf("tok_%d", i)
}

// Turn is a maximal run of consecutive tokens sharing a speaker label. It is
// derived, not stored long-term, and is recomputed after every stage that can
// change a label.
type Turn struct {
	ID            string
	Speaker       uint32
	StartMs       uint64
	EndMs         uint64
	TokenIndices  []int // indices into the owning Transcript.Tokens slice
}

// DurationMs returns the turn's duration, saturating at zero.
func (t Turn) DurationMs() uint64 {
	if t.EndMs < t.StartMs {
		return 0
	}
	return t.EndMs - t.StartMs
}

// TokenCount returns the number of tokens that make up this turn.
func (t Turn) TokenCount() int { return len(t.TokenIndices) }

// NewTurnID mints a fresh, random turn identifier. See NewTokenID: production
// turn-building uses TurnIDForIndex instead.
func NewTurnID() string {
	return "turn_" + uuid.NewString()
}

// TurnIDForIndex derives a stable turn ID from the token index the turn
// starts at.
func TurnIDForIndex(firstTokenIndex int) string {
	return fmt.Sprintf("turn_%d", firstTokenIndex)
}

// Transcript is the pipeline's single owned view of the token stream: one
// vector of tokens in source order, plus the turns derived from their current
// labels. The heuristics and Stage 2 relabel tokens in place, record a change
// for each relabel, and call RebuildTurns afterward; Assemble (Stage 3) only
// reads the final labels.
type Transcript struct {
	Tokens   []Token
	Turns    []Turn
	Speakers []uint32 // sorted, unique speaker IDs present in Tokens
}

// Clone returns a deep-enough copy of the transcript for a stage to mutate
// without affecting its caller's view.
func (tr *Transcript) Clone() *Transcript {
	out := &Transcript{
		Tokens:   make([]Token, len(tr.Tokens)),
		Turns:    make([]Turn, len(tr.Turns)),
		Speakers: make([]uint32, len(tr.Speakers)),
	}
	copy(out.Tokens, tr.Tokens)
	copy(out.Speakers, tr.Speakers)
	for i, turn := range tr.Turns {
		out.Turns[i] = turn
		out.Turns[i].TokenIndices = append([]int(nil), turn.TokenIndices...)
	}
	return out
}

// TokenByID finds a token by its stable ID. Returns -1 if absent.
func (tr *Transcript) TokenByID(id string) int {
	for i := range tr.Tokens {
		if tr.Tokens[i].ID == id {
			return i
		}
	}
	return -1
}

// TurnByID finds a turn by its ID. Returns -1 if absent.
func (tr *Transcript) TurnByID(id string) int {
	for i := range tr.Turns {
		if tr.Turns[i].ID == id {
			return i
		}
	}
	return -1
}

// DurationMs is the span from the first token's start to the last token's end.
func (tr *Transcript) DurationMs() uint64 {
	if len(tr.Tokens) == 0 {
		return 0
	}
	last := tr.Tokens[len(tr.Tokens)-1].EndMs
	first := tr.Tokens[0].StartMs
	if last < first {
		return 0
	}
	return last - first
}

// RebuildTurns recomputes Turns and each Token's TurnID from the current
// Speaker labels. It must be called after any stage changes a token's speaker.
func (tr *Transcript) RebuildTurns() {
	if len(tr.Tokens) == 0 {
		tr.Turns = nil
		return
	}

	var turns []Turn
	curSpeaker := tr.Tokens[0].Speaker
	curStart := 0
	curStartMs := tr.Tokens[0].StartMs

	for i := 1; i < len(tr.Tokens); i++ {
		if tr.Tokens[i].Speaker != curSpeaker {
			turns = append(turns, Turn{
				ID:           TurnIDForIndex(curStart),
				Speaker:      curSpeaker,
				StartMs:      curStartMs,
				EndMs:        tr.Tokens[i-1].EndMs,
				TokenIndices: indexRange(curStart, i),
			})
			curSpeaker = tr.Tokens[i].Speaker
			curStart = i
			curStartMs = tr.Tokens[i].StartMs
		}
	}
	turns = append(turns, Turn{
		ID:           TurnIDForIndex(curStart),
		Speaker:      curSpeaker,
		StartMs:      curStartMs,
		EndMs:        tr.Tokens[len(tr.Tokens)-1].EndMs,
		TokenIndices: indexRange(curStart, len(tr.Tokens)),
	})

	for _, turn := range turns {
		for _, idx := range turn.TokenIndices {
			tr.Tokens[idx].TurnID = turn.ID
		}
	}
	tr.Turns = turns
}

func indexRange(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
