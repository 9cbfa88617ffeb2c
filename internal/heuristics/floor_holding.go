package heuristics

import (
	"math"

	"github.com/noamfav/diatribe/internal/model"
)

// FloorState tracks a decaying, per-speaker "floor score" as the token stream
// is walked forward: score = sum of token durations recently attributed to
// that speaker, decayed exponentially over time. It approximates "who is
// holding the floor right now".
type FloorState struct {
	scores      map[uint32]float64
	currentMs   uint64
	hasCurrent  bool
	decayPerSec float64
}

// NewFloorState returns an empty floor-score tracker.
func NewFloorState(decayPerSecond float64) *FloorState {
	return &FloorState{scores: map[uint32]float64{}, decayPerSec: decayPerSecond}
}

// Update advances the tracker by one token: it decays every speaker's score
// by the elapsed time since the last update, then credits the speaking
// speaker with this token's duration.
func (f *FloorState) Update(speaker uint32, durationMs uint64, timestampMs uint64) {
	if f.hasCurrent && timestampMs > f.currentMs {
		elapsedSec := float64(timestampMs-f.currentMs) / 1000.0
		decay := math.Exp(-f.decayPerSec * elapsedSec)
		for s := range f.scores {
			f.scores[s] *= decay
		}
	}

	f.scores[speaker] += float64(durationMs) / 1000.0

	f.currentMs = timestampMs
	f.hasCurrent = true
}

// FloorHolder returns the speaker with the highest score, provided it clears
// minScore; otherwise there is no clear floor holder.
func (f *FloorState) FloorHolder(minScore float64) (uint32, bool) {
	var best uint32
	bestScore := -1.0
	found := false
	for s, score := range f.scores {
		if score < minScore {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = s
			found = true
		}
	}
	return best, found
}

// Score returns the current score for a speaker, 0 if never seen.
func (f *FloorState) Score(speaker uint32) float64 { return f.scores[speaker] }

// ApplyFloorHolding penalizes isolated (≤2-token) label flips away from the
// current floor holder: such an excursion by a non-floor-holding speaker is
// reverted to the floor holder unless the flip is flanked by tokens that are
// not also the floor holder (i.e. it looks like a genuine, if brief, speaker
// change rather than a diarization blip).
func ApplyFloorHolding(tr *model.Transcript, cfg Config) Result {
	var changes []Change
	state := NewFloorState(cfg.FloorDecayPerSecond)

	for i := range tr.Tokens {
		tok := tr.Tokens[i]
		state.Update(tok.Speaker, tok.DurationMs(), tok.StartMs)

		if tok.SpeakerConf >= 0.8 {
			continue
		}

		holder, ok := state.FloorHolder(cfg.MinFloorScore)
		if !ok || tok.Speaker == holder {
			continue
		}

		if !isShortExcursion(tr, i, tok.Speaker, 2) {
			continue
		}

		if !flankedByFloorHolder(tr, i, holder) {
			continue
		}

		changes = append(changes, Change{
			TokenIndex: i,
			TokenID:    tok.ID,
			From:       tok.Speaker,
			To:         holder,
			Rule:       "floor_holding",
		})
		tr.Tokens[i].Speaker = holder
	}

	if len(changes) > 0 {
		tr.RebuildTurns()
	}
	return Result{Changes: changes}
}

// isShortExcursion reports whether the run of consecutive same-speaker
// tokens containing index i has at most maxLen tokens.
func isShortExcursion(tr *model.Transcript, i int, speaker uint32, maxLen int) bool {
	count := 1
	for j := i - 1; j >= 0 && tr.Tokens[j].Speaker == speaker; j-- {
		count++
		if count > maxLen {
			return false
		}
	}
	for j := i + 1; j < len(tr.Tokens) && tr.Tokens[j].Speaker == speaker; j++ {
		count++
		if count > maxLen {
			return false
		}
	}
	return count <= maxLen
}

func flankedByFloorHolder(tr *model.Transcript, i int, holder uint32) bool {
	spk := tr.Tokens[i].Speaker
	lo, hi := i, i
	for lo > 0 && tr.Tokens[lo-1].Speaker == spk {
		lo--
	}
	for hi+1 < len(tr.Tokens) && tr.Tokens[hi+1].Speaker == spk {
		hi++
	}
	prevOK := lo > 0 && tr.Tokens[lo-1].Speaker == holder
	nextOK := hi+1 < len(tr.Tokens) && tr.Tokens[hi+1].Speaker == holder
	return prevOK && nextOK
}
