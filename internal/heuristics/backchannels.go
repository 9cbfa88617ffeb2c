package heuristics

import (
	"strings"

	"github.com/noamfav/diatribe/internal/model"
)

// ApplyBackchannelRule reattributes single-token turns whose word is a
// closed-set acknowledgement ("yeah", "mhm", ...) located within
// cfg.BackchannelProximityMs of any overlap-flagged token to the speaker NOT
// holding the floor at that moment, provided the token's own speaker
// confidence is below cfg.BackchannelMaxConfidence.
func ApplyBackchannelRule(tr *model.Transcript, cfg Config) Result {
	var changes []Change
	state := NewFloorState(cfg.FloorDecayPerSecond)

	overlapTimes := overlapIntervals(tr)

	for i := range tr.Tokens {
		tok := tr.Tokens[i]
		state.Update(tok.Speaker, tok.DurationMs(), tok.StartMs)

		if !isBackchannelTurn(tr, i, cfg) {
			continue
		}
		if tok.SpeakerConf >= cfg.BackchannelMaxConfidence {
			continue
		}
		if !nearAnyOverlap(tok, overlapTimes, cfg.BackchannelProximityMs) {
			continue
		}

		holder, ok := state.FloorHolder(cfg.MinFloorScore)
		if !ok {
			continue
		}
		listener := otherSpeaker(tr, holder)
		if listener == nil || *listener == tok.Speaker {
			continue
		}

		changes = append(changes, Change{
			TokenIndex: i,
			TokenID:    tok.ID,
			From:       tok.Speaker,
			To:         *listener,
			Rule:       "backchannel_attribution",
		})
		tr.Tokens[i].Speaker = *listener
	}

	if len(changes) > 0 {
		tr.RebuildTurns()
	}
	return Result{Changes: changes}
}

// isBackchannelTurn reports whether token i is the sole token of its turn and
// its word (case-insensitively) is in the backchannel set.
func isBackchannelTurn(tr *model.Transcript, i int, cfg Config) bool {
	turnID := tr.Tokens[i].TurnID
	idx := tr.TurnByID(turnID)
	if idx < 0 || tr.Turns[idx].TokenCount() != 1 {
		return false
	}
	word := strings.ToLower(strings.TrimSpace(tr.Tokens[i].Word))
	return cfg.BackchannelWords[word]
}

type interval struct{ startMs, endMs uint64 }

func overlapIntervals(tr *model.Transcript) []interval {
	var out []interval
	for _, t := range tr.Tokens {
		if t.Overlap {
			out = append(out, interval{startMs: t.StartMs, endMs: t.EndMs})
		}
	}
	return out
}

func nearAnyOverlap(tok model.Token, overlaps []interval, proximityMs uint64) bool {
	for _, iv := range overlaps {
		lo := saturatingSub(iv.startMs, proximityMs)
		hi := iv.endMs + proximityMs
		if tok.EndMs >= lo && tok.StartMs <= hi {
			return true
		}
	}
	return false
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// otherSpeaker returns any speaker present in the transcript other than
// holder, or nil if holder is the only one seen so far.
func otherSpeaker(tr *model.Transcript, holder uint32) *uint32 {
	for _, s := range tr.Speakers {
		if s != holder {
			v := s
			return &v
		}
	}
	for _, t := range tr.Tokens {
		if t.Speaker != holder {
			v := t.Speaker
			return &v
		}
	}
	return nil
}
