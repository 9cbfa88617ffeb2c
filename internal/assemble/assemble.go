// Package assemble implements Stage 3: mechanically materializing the
// reconciled labeling onto the canonical token vector and emitting the
// machine-readable output structure. No decisions are made here — every
// speaker assignment was already decided by heuristics, Stage 1, and Stage 2.
package assemble

import "github.com/noamfav/diatribe/internal/model"

// Token is one entry of the machine output's token list.
type Token struct {
	TokenID           string  `json:"token_id"`
	Word              string  `json:"word"`
	StartMs           uint64  `json:"start_ms"`
	EndMs             uint64  `json:"end_ms"`
	Speaker           uint32  `json:"speaker"`
	OriginalSpeaker   uint32  `json:"original_speaker"`
	WasRelabeled      bool    `json:"was_relabeled"`
	SpeakerConfidence float64 `json:"speaker_confidence"`
	WordConfidence    float64 `json:"word_confidence"`
	TurnID            string  `json:"turn_id"`
}

// Change is one entry of the machine output's changes[] ledger: a single
// label change some stage applied, with enough context to audit it.
type Change struct {
	TokenID string `json:"token_id"`
	From    uint32 `json:"from"`
	To      uint32 `json:"to"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// Turn is one entry of the machine output's turn list.
type Turn struct {
	TurnID    string `json:"turn_id"`
	Speaker   uint32 `json:"speaker"`
	StartMs   uint64 `json:"start_ms"`
	EndMs     uint64 `json:"end_ms"`
	WordCount int    `json:"word_count"`
}

// Metadata summarizes one run for the machine output.
type Metadata struct {
	TotalTokens      int    `json:"total_tokens"`
	TotalTurns       int    `json:"total_turns"`
	TokensRelabeled  int    `json:"tokens_relabeled"`
	DurationMs       uint64 `json:"duration_ms"`
	WindowsProcessed int    `json:"windows_processed"`
}

// MachineOutput is the final structure spec.md §6 describes: the token
// stream, its derived turns, the distinct speakers present, and a run
// summary.
type MachineOutput struct {
	Tokens   []Token  `json:"tokens"`
	Turns    []Turn   `json:"turns"`
	Speakers []uint32 `json:"speakers"`
	Changes  []Change `json:"changes"`
	Metadata Metadata `json:"metadata"`
}

// Run materializes tr's current labels against the original (Stage 0)
// speaker assignments and produces the machine output. tr is expected to
// already carry the final, reconciled turn structure (RebuildTurns called by
// upstream stages after every relabel). changes is the combined ledger of
// every label change heuristics and Stage 2 applied, in the order they
// happened; Run never drops or reorders it.
func Run(tr *model.Transcript, originalSpeaker map[string]uint32, windowsProcessed int, changes []model.Change) MachineOutput {
	tokens := make([]Token, 0, len(tr.Tokens))
	relabeled := 0
	for _, t := range tr.Tokens {
		orig, ok := originalSpeaker[t.ID]
		if !ok {
			orig = t.Speaker
		}
		wasRelabeled := t.Speaker != orig
		if wasRelabeled {
			relabeled++
		}
		tokens = append(tokens, Token{
			TokenID:           t.ID,
			Word:              t.Word,
			StartMs:           t.StartMs,
			EndMs:             t.EndMs,
			Speaker:           t.Speaker,
			OriginalSpeaker:   orig,
			WasRelabeled:      wasRelabeled,
			SpeakerConfidence: t.SpeakerConf,
			WordConfidence:    t.WordConf,
			TurnID:            t.TurnID,
		})
	}

	turns := make([]Turn, 0, len(tr.Turns))
	for _, t := range tr.Turns {
		turns = append(turns, Turn{
			TurnID:    t.ID,
			Speaker:   t.Speaker,
			StartMs:   t.StartMs,
			EndMs:     t.EndMs,
			WordCount: t.TokenCount(),
		})
	}

	outChanges := make([]Change, 0, len(changes))
	for _, c := range changes {
		outChanges = append(outChanges, Change{
			TokenID: c.TokenID,
			From:    c.From,
			To:      c.To,
			Stage:   c.Stage,
			Reason:  c.Reason,
		})
	}

	return MachineOutput{
		Tokens:   tokens,
		Turns:    turns,
		Speakers: append([]uint32(nil), tr.Speakers...),
		Changes:  outChanges,
		Metadata: Metadata{
			TotalTokens:      len(tr.Tokens),
			TotalTurns:       len(tr.Turns),
			TokensRelabeled:  relabeled,
			DurationMs:       tr.DurationMs(),
			WindowsProcessed: windowsProcessed,
		},
	}
}
