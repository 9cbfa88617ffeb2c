package reconcile

import (
	"github.com/sirupsen/logrus"

	"github.com/noamfav/diatribe/internal/errs"
	"github.com/noamfav/diatribe/internal/model"
)

// detectStableSpans finds maximal runs of consecutive tokens sharing a
// speaker where the run's duration is at least StableSpanMinDurationMs and
// its mean speaker confidence is at least StableSpanMinConfidence. Every
// token in such a run maps to true. Called before any Stage 2 relabeling, so
// it reflects the heuristic-adjusted (pre-Stage-2) state per spec.md §4.3.
func detectStableSpans(tr *model.Transcript, cfg Config) map[string]bool {
	out := map[string]bool{}
	if len(tr.Tokens) == 0 {
		return out
	}

	start := 0
	for i := 1; i <= len(tr.Tokens); i++ {
		if i < len(tr.Tokens) && tr.Tokens[i].Speaker == tr.Tokens[start].Speaker {
			continue
		}
		markIfStable(tr, start, i, cfg, out)
		start = i
	}
	return out
}

func markIfStable(tr *model.Transcript, start, end int, cfg Config, out map[string]bool) {
	run := tr.Tokens[start:end]
	if len(run) == 0 {
		return
	}
	duration := run[len(run)-1].EndMs - run[0].StartMs
	if duration < cfg.StableSpanMinDurationMs {
		return
	}
	sum := 0.0
	for _, t := range run {
		sum += t.SpeakerConf
	}
	if sum/float64(len(run)) < cfg.StableSpanMinConfidence {
		return
	}
	for _, t := range run {
		out[t.ID] = true
	}
}

// enforceConstraints runs the minimum-turn-duration and maximum-switch-rate
// passes to a fixed point, capped at cfg.MaxConstraintIterations, and
// returns every change record either pass produced along the way. If the
// state hasn't stabilized by the cap, it logs a non-convergence diagnostic
// and keeps whatever state was last computed.
func enforceConstraints(tr *model.Transcript, cfg Config, protectedTokens map[string]bool, flipMargin map[string]float64, diags *errs.Diagnostics, log *logrus.Logger) []model.Change {
	var changes []model.Change

	for iter := 0; iter < cfg.MaxConstraintIterations; iter++ {
		durationChanges := enforceMinTurnDuration(tr, cfg, protectedTokens)
		rateChanges := enforceMaxSwitchRate(tr, cfg, flipMargin)
		changes = append(changes, durationChanges...)
		changes = append(changes, rateChanges...)

		if len(durationChanges) > 0 || len(rateChanges) > 0 {
			tr.RebuildTurns()
			continue
		}
		return changes
	}

	if diags != nil {
		diags.Addf(errs.DiagNonConvergent, "reconcile", "", "constraint enforcement did not converge within %d iterations", cfg.MaxConstraintIterations)
	}
	if log != nil {
		log.Warn("stage 2 constraint enforcement hit its iteration cap without converging")
	}
	return changes
}

// enforceMinTurnDuration walks the current turns and relabels any turn
// shorter than MinTurnDurationMs to the flanking speaker when both
// neighbors share one, per spec.md §4.3 rule 2. Backchannel single-token
// turns already established by heuristics are exempt.
func enforceMinTurnDuration(tr *model.Transcript, cfg Config, protectedTokens map[string]bool) []model.Change {
	var changes []model.Change

	for i, turn := range tr.Turns {
		if turn.DurationMs() >= cfg.MinTurnDurationMs {
			continue
		}
		if turn.TokenCount() == 1 && protectedTokens[tr.Tokens[turn.TokenIndices[0]].ID] {
			continue
		}
		if i == 0 || i == len(tr.Turns)-1 {
			continue
		}
		prev := tr.Turns[i-1].Speaker
		next := tr.Turns[i+1].Speaker
		if prev != next || prev == turn.Speaker {
			continue
		}
		for _, idx := range turn.TokenIndices {
			tok := &tr.Tokens[idx]
			if tok.Speaker == prev {
				continue
			}
			changes = append(changes, model.Change{
				TokenID: tok.ID, From: tok.Speaker, To: prev,
				Stage: "reconcile", Reason: "min_turn_duration",
			})
			tok.Speaker = prev
		}
	}

	return changes
}

// enforceMaxSwitchRate finds sliding 1-second windows containing more than
// MaxSwitchesPerSecondWindow label transitions and reverts the lowest-margin
// flip within the first offending window (in time order), one revert per call, per spec.md
// §4.3 rule 3. Transitions that predate Stage 2 (not present in flipMargin)
// are never reverted here.
func enforceMaxSwitchRate(tr *model.Transcript, cfg Config, flipMargin map[string]float64) []model.Change {
	if len(tr.Turns) < 2 {
		return nil
	}

	type transition struct {
		atMs    uint64
		tokenID string // first token of the new turn
	}
	var transitions []transition
	for i := 1; i < len(tr.Turns); i++ {
		firstTok := tr.Tokens[tr.Turns[i].TokenIndices[0]]
		transitions = append(transitions, transition{atMs: tr.Turns[i].StartMs, tokenID: firstTok.ID})
	}

	const windowMs = 1000
	for _, t := range transitions {
		count := 0
		var worstToken string
		worstMargin := 0.0
		haveCandidate := false

		for _, other := range transitions {
			if other.atMs < t.atMs || other.atMs >= t.atMs+windowMs {
				continue
			}
			count++
			if margin, ok := flipMargin[other.tokenID]; ok {
				if !haveCandidate || margin < worstMargin {
					worstMargin, worstToken, haveCandidate = margin, other.tokenID, true
				}
			}
		}

		if count > cfg.MaxSwitchesPerSecondWindow && haveCandidate {
			change, ok := revertFlip(tr, worstToken)
			delete(flipMargin, worstToken)
			if ok {
				return []model.Change{change}
			}
			return nil
		}
	}

	return nil
}

// revertFlip relabels a flipped token with the speaker of the token
// immediately preceding it, merging it into the preceding turn. It does not
// look up the token's pre-Stage-2 label, so the result equals that label only
// when the token originally shared the preceding token's speaker.
func revertFlip(tr *model.Transcript, tokenID string) (model.Change, bool) {
	idx := tr.TokenByID(tokenID)
	if idx <= 0 {
		return model.Change{}, false
	}
	from := tr.Tokens[idx].Speaker
	to := tr.Tokens[idx-1].Speaker
	tr.Tokens[idx].Speaker = to
	return model.Change{
		TokenID: tokenID, From: from, To: to,
		Stage: "reconcile", Reason: "max_switch_rate",
	}, true
}

// reconcileTurnEdits applies split/merge proposals per spec.md §4.3's
// matching rules: a split needs >=2 proposing windows and the split token's
// winning label to actually differ from its predecessor's; a merge needs
// >=2 proposing windows, or is applied anyway (as a no-op) when the two
// turns already share a winning label.
func reconcileTurnEdits(tr *model.Transcript, inputs []Input) (int, []model.Change) {
	type editKey struct {
		kind           model.TurnEditType
		turnID, toTurn string
		splitToken     string
	}
	votes := map[editKey]int{}
	var order []editKey

	for _, in := range inputs {
		for _, e := range in.Patch.TurnEdits {
			k := editKey{kind: e.Type, turnID: e.TurnID, toTurn: e.ToTurnID, splitToken: e.SplitAtTokenID}
			if votes[k] == 0 {
				order = append(order, k)
			}
			votes[k]++
		}
	}

	applied := 0
	var changes []model.Change
	for _, k := range order {
		switch k.kind {
		case model.TurnEditSplit:
			if votes[k] < 2 {
				continue
			}
			splitIdx := tr.TokenByID(k.splitToken)
			if splitIdx <= 0 {
				continue
			}
			if tr.Tokens[splitIdx].Speaker == tr.Tokens[splitIdx-1].Speaker {
				continue // winning labels agree; the split would be spurious
			}
			applied++ // the boundary already reflects a real label change; nothing more to materialize

		case model.TurnEditMerge:
			tIdx := tr.TurnByID(k.turnID)
			toIdx := tr.TurnByID(k.toTurn)
			if tIdx < 0 || toIdx < 0 {
				continue
			}
			sameLabel := tr.Turns[tIdx].Speaker == tr.Turns[toIdx].Speaker
			if votes[k] < 2 && !sameLabel {
				continue
			}
			if !sameLabel {
				target := tr.Turns[tIdx].Speaker
				for _, idx := range tr.Turns[toIdx].TokenIndices {
					tok := &tr.Tokens[idx]
					if tok.Speaker == target {
						continue
					}
					changes = append(changes, model.Change{
						TokenID: tok.ID, From: tok.Speaker, To: target,
						Stage: "reconcile", Reason: "turn_merge",
					})
					tok.Speaker = target
				}
			}
			applied++
		}
	}

	return applied, changes
}
