// Package reconcile implements Stage 2: merging the accepted, window-scoped
// patches from Stage 1 into a single global labeling under hard constraints.
// Because windows overlap, the same token can receive conflicting proposals;
// this stage resolves them by weighted vote and then repairs whatever the
// vote produces that violates a hard constraint.
package reconcile

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/noamfav/diatribe/internal/errs"
	"github.com/noamfav/diatribe/internal/model"
)

// Config bundles every constraint and default weight Stage 2 needs. Field
// names and defaults follow spec.md §4.3.
type Config struct {
	DefaultLLMConfidenceRelabel float64
	DefaultLLMConfidenceNull    float64
	MinWindowQuality            float64
	ProximityFloor              float64

	StableSpanMinDurationMs      uint64
	StableSpanMinConfidence      float64
	StableSpanMinAgreeingWindows int

	MinTurnDurationMs uint64

	MaxSwitchesPerSecondWindow int // max transitions allowed in any sliding 1s window
	MaxConstraintIterations    int
}

// DefaultConfig matches spec.md §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLLMConfidenceRelabel: 0.7,
		DefaultLLMConfidenceNull:    0.5,
		MinWindowQuality:            0.3,
		ProximityFloor:              0.3,

		StableSpanMinDurationMs:      6000,
		StableSpanMinConfidence:      0.8,
		StableSpanMinAgreeingWindows: 2,

		MinTurnDurationMs: 700,

		MaxSwitchesPerSecondWindow: 2,
		MaxConstraintIterations:    5,
	}
}

// Input is one window's contribution to reconciliation: the window it came
// from, the patch it produced, and a quality score in [0, 1] summarizing how
// much of that window's edit budget and cost tolerance were consumed
// (higher quality == more authority in the vote).
type Input struct {
	Window   model.Window
	Patch    model.WindowPatch
	Quality  float64 // pre-clamp; Run clamps to [Config.MinWindowQuality, 1.0]
}

// Result reports what Stage 2 changed.
type Result struct {
	TokensRelabeled   int
	ConflictsResolved int
	TurnEditsApplied  int
	Changes           []model.Change
}

type vote struct {
	speaker  uint32
	weight   float64
	windowID string
}

// Run mutates tr in place: it computes a winning label for every token
// covered by at least one input window, applies stable-span protection,
// enforces minimum turn duration and maximum switch rate to a fixed point,
// and finally reconciles turn-edit proposals. Diagnostics records
// non-convergence; it never blocks the pipeline. protectedTokens names
// tokens the heuristic pre-pass already committed to (e.g. backchannel
// single-token turns) that the minimum-turn-duration constraint must not
// merge away.
func Run(tr *model.Transcript, inputs []Input, protectedTokens map[string]bool, cfg Config, diags *errs.Diagnostics, log *logrus.Logger) Result {
	originalSpeaker := make(map[string]uint32, len(tr.Tokens))
	for _, t := range tr.Tokens {
		originalSpeaker[t.ID] = t.Speaker
	}

	stableSpans := detectStableSpans(tr, cfg)

	candidates := collectCandidates(tr, inputs, cfg)

	result := Result{}
	flipMargin := map[string]float64{} // tokenID -> winning-minus-runnerup weight, for tokens Stage 2 actually changed
	for tokenID, votes := range candidates {
		idx := tr.TokenByID(tokenID)
		if idx < 0 {
			continue
		}
		tok := &tr.Tokens[idx]

		unique := map[uint32]bool{}
		for _, v := range votes {
			unique[v.speaker] = true
		}
		if len(unique) > 1 {
			result.ConflictsResolved++
		}

		winner, margin := weightedVote(votes, originalSpeaker[tokenID])

		if span, ok := stableSpans[tokenID]; ok && span {
			if !agreesEnough(votes, tok.Speaker, cfg.StableSpanMinAgreeingWindows) {
				continue // protected: keep the original label
			}
		}

		if winner != tok.Speaker {
			result.Changes = append(result.Changes, model.Change{
				TokenID: tokenID, From: tok.Speaker, To: winner,
				Stage: "reconcile", Reason: "weighted_vote",
			})
			tok.Speaker = winner
			flipMargin[tokenID] = margin
			result.TokensRelabeled++
		}
	}

	if result.TokensRelabeled > 0 {
		tr.RebuildTurns()
	}

	result.Changes = append(result.Changes, enforceConstraints(tr, cfg, protectedTokens, flipMargin, diags, log)...)

	var turnEditChanges []model.Change
	result.TurnEditsApplied, turnEditChanges = reconcileTurnEdits(tr, inputs)
	result.Changes = append(result.Changes, turnEditChanges...)
	if result.TurnEditsApplied > 0 {
		tr.RebuildTurns()
	}

	return result
}

// collectCandidates builds, for every editable token any input window
// covers, the full vote list: an explicit vote for each proposed relabel,
// plus an implicit null-patch ("keep current") vote from every window that
// touched the token without relabeling it.
func collectCandidates(tr *model.Transcript, inputs []Input, cfg Config) map[string][]vote {
	out := map[string][]vote{}

	for _, in := range inputs {
		quality := in.Quality
		if quality < cfg.MinWindowQuality {
			quality = cfg.MinWindowQuality
		}
		if quality > 1.0 {
			quality = 1.0
		}

		relabelByToken := make(map[string]model.TokenRelabel, len(in.Patch.TokenRelabels))
		for _, r := range in.Patch.TokenRelabels {
			relabelByToken[r.TokenID] = r
		}

		for _, ti := range in.Window.TokenIndices {
			tok := tr.Tokens[ti]
			proximity := boundaryFloorProximity(in.Window, tok.StartMs, cfg.ProximityFloor)

			if r, relabeled := relabelByToken[tok.ID]; relabeled {
				conf := cfg.DefaultLLMConfidenceRelabel
				if r.LLMConfidence != nil {
					conf = *r.LLMConfidence
				}
				out[tok.ID] = append(out[tok.ID], vote{
					speaker: r.NewSpeaker, weight: conf * quality * proximity, windowID: in.Window.ID,
				})
			} else {
				out[tok.ID] = append(out[tok.ID], vote{
					speaker: tok.Speaker, weight: cfg.DefaultLLMConfidenceNull * quality * proximity, windowID: in.Window.ID,
				})
			}
		}
	}

	return out
}

// boundaryFloorProximity is spec.md §4.3's proximity weight: 1.0 at the
// window's midpoint, tapering linearly to 0.3 (not 0.0) at either boundary.
func boundaryFloorProximity(w model.Window, timestampMs uint64, floor float64) float64 {
	raw := w.ProximityToCenter(timestampMs) // 1.0 at center, 0.0 at boundary
	return floor + (1.0-floor)*raw
}

// weightedVote picks the speaker with the highest summed weight, breaking
// ties toward the token's pre-Stage-1 label. It also returns the margin
// between the winner and the runner-up, used to rank flips for the
// switch-rate constraint's lowest-weight-flip reversion.
func weightedVote(votes []vote, tieBreak uint32) (uint32, float64) {
	totals := map[uint32]float64{}
	for _, v := range votes {
		totals[v.speaker] += v.weight
	}

	speakers := make([]uint32, 0, len(totals))
	for s := range totals {
		speakers = append(speakers, s)
	}
	sort.Slice(speakers, func(i, j int) bool { return speakers[i] < speakers[j] })

	best := speakers[0]
	bestWeight := totals[best]
	for _, s := range speakers[1:] {
		w := totals[s]
		if w > bestWeight || (w == bestWeight && s == tieBreak) {
			best, bestWeight = s, w
		}
	}
	if w, ok := totals[tieBreak]; ok && w == bestWeight {
		best, bestWeight = tieBreak, w
	}

	runnerUp := 0.0
	for _, s := range speakers {
		if s == best {
			continue
		}
		if totals[s] > runnerUp {
			runnerUp = totals[s]
		}
	}

	return best, bestWeight - runnerUp
}

func agreesEnough(votes []vote, currentSpeaker uint32, minAgreeing int) bool {
	byWindow := map[string]uint32{}
	for _, v := range votes {
		// last write wins per window; a window contributes one relabel per token
		byWindow[v.windowID] = v.speaker
	}
	counts := map[uint32]int{}
	for _, s := range byWindow {
		if s != currentSpeaker {
			counts[s]++
		}
	}
	for _, c := range counts {
		if c >= minAgreeing {
			return true
		}
	}
	return false
}

