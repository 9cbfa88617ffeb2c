package normalize

import (
	"fmt"
	"sort"

	"github.com/noamfav/diatribe/internal/deepgram"
	"github.com/noamfav/diatribe/internal/errs"
	"github.com/noamfav/diatribe/internal/model"
)

// Tokenize converts a decoded Deepgram response into the canonical token
// vector, assigning stable IDs and initial turn boundaries. It validates the
// input and returns a *errs.FatalError for anything that would violate the
// pipeline's word/timestamp invariants.
func Tokenize(resp *deepgram.Response, speakerCfg SpeakerConfig) (*model.Transcript, error) {
	words := resp.Words()
	if len(words) == 0 {
		return &model.Transcript{}, nil
	}

	tokens := make([]model.Token, 0, len(words))
	segmentID := "seg_0"

	var lastStartMs uint64
	haveLast := false

	for i, w := range words {
		startMs := deepgram.RoundToMillis(w.Start)
		endMs := deepgram.RoundToMillis(w.End)

		if endMs < startMs {
			return nil, errs.NewFatal("normalize", "negative_duration",
				fmt.Errorf("word %d (%q): end %dms precedes start %dms", i, w.Word, endMs, startMs))
		}
		if haveLast && startMs < lastStartMs {
			return nil, errs.NewFatal("normalize", "out_of_order",
				fmt.Errorf("word %d (%q): start %dms precedes preceding word's start %dms", i, w.Word, startMs, lastStartMs))
		}
		lastStartMs = startMs
		haveLast = true

		tokens = append(tokens, model.Token{
			ID:            model.TokenIDForIndex(i),
			Word:          w.Word,
			StartMs:       startMs,
			EndMs:         endMs,
			Speaker:       w.Speaker,
			SpeakerConf:   w.SpeakerConfidenceOrDefault(),
			WordConf:      w.Confidence,
			SegmentID:     segmentID,
			OriginalIndex: i,
		})
	}

	tr := &model.Transcript{Tokens: tokens}
	tr.RebuildTurns()

	speakers := collectSpeakers(tr)
	if err := clampSpeakers(tr, speakers, speakerCfg); err != nil {
		return nil, err
	}
	tr.RebuildTurns()
	tr.Speakers = collectSpeakers(tr)

	return tr, nil
}

func collectSpeakers(tr *model.Transcript) []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	for _, t := range tr.Tokens {
		if !seen[t.Speaker] {
			seen[t.Speaker] = true
			out = append(out, t.Speaker)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// clampSpeakers enforces speakerCfg.MaxSpeakers: once that many distinct
// labels have been admitted, later distinct labels are handled per
// speakerCfg.OverflowPolicy.
func clampSpeakers(tr *model.Transcript, speakers []uint32, cfg SpeakerConfig) error {
	if cfg.MaxSpeakers <= 0 || len(speakers) <= cfg.MaxSpeakers {
		return nil
	}

	if cfg.OverflowPolicy == OverflowError {
		return errs.NewFatal("normalize", "too_many_speakers",
			fmt.Errorf("input has %d distinct speakers, max_speakers=%d and overflow policy is %q",
				len(speakers), cfg.MaxSpeakers, cfg.OverflowPolicy))
	}

	admitted := make(map[uint32]bool, cfg.MaxSpeakers)
	admittedOrder := make([]uint32, 0, cfg.MaxSpeakers)
	lastSeenIndex := map[uint32]int{}

	for i := range tr.Tokens {
		spk := tr.Tokens[i].Speaker
		if admitted[spk] {
			lastSeenIndex[spk] = i
			continue
		}
		if len(admittedOrder) < cfg.MaxSpeakers {
			admitted[spk] = true
			admittedOrder = append(admittedOrder, spk)
			lastSeenIndex[spk] = i
			continue
		}
		// Overflow: remap to whichever admitted speaker last appeared most
		// recently before this token — the "nearest" admitted speaker in
		// time, a reasonable proxy for "who this probably actually is" when
		// the diarizer has over-segmented.
		nearest := nearestAdmitted(admittedOrder, lastSeenIndex, i)
		tr.Tokens[i].Speaker = nearest
		lastSeenIndex[nearest] = i
	}
	return nil
}

func nearestAdmitted(admittedOrder []uint32, lastSeenIndex map[uint32]int, atIndex int) uint32 {
	best := admittedOrder[0]
	bestDist := -1
	for _, spk := range admittedOrder {
		seen, ok := lastSeenIndex[spk]
		dist := atIndex
		if ok {
			dist = atIndex - seen
		}
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = spk
		}
	}
	return best
}
