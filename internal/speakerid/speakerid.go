// Package speakerid implements the optional post-stage that matches numeric
// speaker IDs to real participant names, using transcript excerpts as
// evidence for an external language model. It never changes any Speaker
// field on a Token; it only produces a display-name mapping the render
// package can use.
package speakerid

import (
	"context"
	"sort"
	"strings"

	"github.com/noamfav/diatribe/internal/model"
)

// Participant is one person the run was told to look for.
type Participant struct {
	Name  string
	Hints string
}

// Identification is one speaker's result.
type Identification struct {
	SpeakerID    uint32
	IdentifiedAs string // empty when unidentified
	Confidence   float64
	Evidence     []string
}

// Result is the whole stage's output.
type Result struct {
	Identifications []Identification
	// DisplayNames holds only the identifications that cleared the
	// configured confidence threshold, ready for render.SpeakerNamer.
	DisplayNames map[uint32]string
}

// Namer adapts a Result into a render.SpeakerNamer-compatible closure
// without speakerid needing to import render.
func (r Result) Namer() func(speaker uint32) (string, bool) {
	return func(speaker uint32) (string, bool) {
		name, ok := r.DisplayNames[speaker]
		return name, ok
	}
}

// Config bundles the stage's knobs.
type Config struct {
	ConfidenceThreshold  float64
	MaxExcerptsPerSpeaker int
	MaxContextChars       int
}

// DefaultConfig matches original_source's SpeakerIdConfig defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   0.7,
		MaxExcerptsPerSpeaker: 5,
		MaxContextChars:       8000,
	}
}

// Identifier is the external collaborator contract: given the system and
// user prompt text, return the raw identifications the model proposed.
type Identifier interface {
	IdentifySpeakers(ctx context.Context, systemPrompt, userPrompt string) ([]Identification, error)
}

// Run builds excerpts for every speaker in tr, prompts the identifier, and
// filters the result by confidence threshold. Returns a zero Result and the
// identifier's error verbatim on failure — this stage is optional and its
// caller decides whether a failure here should degrade to no display names.
func Run(ctx context.Context, identifier Identifier, tr *model.Transcript, participants []Participant, cfg Config) (Result, error) {
	excerpts := buildExcerpts(tr, cfg)

	system := SystemPrompt
	user := BuildUserPrompt(participants, excerpts, tr.Speakers)

	ids, err := identifier.IdentifySpeakers(ctx, system, user)
	if err != nil {
		return Result{}, err
	}

	return fromIdentifications(ids, cfg.ConfidenceThreshold), nil
}

func fromIdentifications(ids []Identification, threshold float64) Result {
	names := map[uint32]string{}
	for _, id := range ids {
		if id.IdentifiedAs != "" && id.Confidence >= threshold {
			names[id.SpeakerID] = id.IdentifiedAs
		}
	}
	return Result{Identifications: ids, DisplayNames: names}
}

type speakerExcerpts struct {
	SpeakerID uint32
	Excerpts  []string
}

// buildExcerpts selects representative turns per speaker: the first two
// turns (likely introductions), then the longest remaining turns up to
// MaxExcerptsPerSpeaker, restored to chronological order, bounded by a
// shared MaxContextChars budget across all speakers.
func buildExcerpts(tr *model.Transcript, cfg Config) []speakerExcerpts {
	var out []speakerExcerpts
	totalChars := 0

	for _, speaker := range tr.Speakers {
		var turnIdx []int
		for i, turn := range tr.Turns {
			if turn.Speaker == speaker {
				turnIdx = append(turnIdx, i)
			}
		}

		selected := selectTurnIndices(tr, turnIdx, cfg.MaxExcerptsPerSpeaker)

		var excerpts []string
		for _, ti := range selected {
			if len(excerpts) >= cfg.MaxExcerptsPerSpeaker {
				break
			}
			text := turnText(tr, tr.Turns[ti])
			if totalChars+len(text) > cfg.MaxContextChars {
				break
			}
			totalChars += len(text)
			excerpts = append(excerpts, text)
		}

		if len(excerpts) > 0 {
			out = append(out, speakerExcerpts{SpeakerID: speaker, Excerpts: excerpts})
		}
	}

	return out
}

// selectTurnIndices picks the first two of speakerTurnIdx (likely
// introductions) plus the longest remaining ones by token count, up to max
// total, restored to chronological order.
func selectTurnIndices(tr *model.Transcript, speakerTurnIdx []int, max int) []int {
	if len(speakerTurnIdx) <= 2 {
		return append([]int(nil), speakerTurnIdx...)
	}

	selected := append([]int(nil), speakerTurnIdx[:2]...)
	rest := append([]int(nil), speakerTurnIdx[2:]...)

	sort.SliceStable(rest, func(i, j int) bool {
		return tr.Turns[rest[i]].TokenCount() > tr.Turns[rest[j]].TokenCount()
	})

	need := max - 2
	if need < 0 {
		need = 0
	}
	if need > len(rest) {
		need = len(rest)
	}
	selected = append(selected, rest[:need]...)

	sort.Ints(selected)
	return selected
}

func turnText(tr *model.Transcript, turn model.Turn) string {
	words := make([]string, 0, len(turn.TokenIndices))
	for _, idx := range turn.TokenIndices {
		if idx < 0 || idx >= len(tr.Tokens) {
			continue
		}
		words = append(words, tr.Tokens[idx].Word)
	}
	return strings.Join(words, " ")
}
