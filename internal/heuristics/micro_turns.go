package heuristics

import "github.com/noamfav/diatribe/internal/model"

// CollapseMicroTurns relabels any turn shorter than cfg.MicroTurnMaxMs onto
// its neighbors' speaker when both the immediate predecessor and successor
// turn share a speaker that differs from this turn's own. A turn is left
// alone when its mean speaker confidence already clears
// cfg.MicroTurnSkipConfidence — a confident short turn is not automatically a
// diarization artifact.
func CollapseMicroTurns(tr *model.Transcript, cfg Config) Result {
	var changes []Change

	// Snapshot candidates before mutating, since relabeling shifts turn
	// boundaries only after a full rebuild.
	type candidate struct {
		idx     int
		speaker uint32
	}
	var candidates []candidate
	for i, turn := range tr.Turns {
		if turn.DurationMs() < cfg.MicroTurnMaxMs {
			candidates = append(candidates, candidate{idx: i, speaker: turn.Speaker})
		}
	}

	for _, c := range candidates {
		turn := tr.Turns[c.idx]
		if meanSpeakerConf(tr, turn.TokenIndices) >= cfg.MicroTurnSkipConfidence {
			continue
		}

		var before, after *uint32
		if c.idx > 0 {
			s := tr.Turns[c.idx-1].Speaker
			before = &s
		}
		if c.idx+1 < len(tr.Turns) {
			s := tr.Turns[c.idx+1].Speaker
			after = &s
		}
		if before == nil || after == nil || *before != *after || *before == turn.Speaker {
			continue
		}

		target := *before
		for _, ti := range turn.TokenIndices {
			if tr.Tokens[ti].Speaker != target {
				changes = append(changes, Change{
					TokenIndex: ti,
					TokenID:    tr.Tokens[ti].ID,
					From:       tr.Tokens[ti].Speaker,
					To:         target,
					Rule:       "micro_turn_collapse",
				})
				tr.Tokens[ti].Speaker = target
			}
		}
	}

	if len(changes) > 0 {
		tr.RebuildTurns()
	}
	return Result{Changes: changes}
}

func meanSpeakerConf(tr *model.Transcript, idxs []int) float64 {
	if len(idxs) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idxs {
		sum += tr.Tokens[i].SpeakerConf
	}
	return sum / float64(len(idxs))
}
