package normalize

import "github.com/noamfav/diatribe/internal/model"

// BuildWindows emits windows at cfg.StrideMs starting at the first token's
// start, continuing until the whole transcript is covered. Windows are
// emitted in start-time order.
func BuildWindows(tr *model.Transcript, cfg WindowConfig, zones []model.ProblemZone) model.WindowSet {
	if len(tr.Tokens) == 0 {
		return model.WindowSet{}
	}

	total := tr.DurationMs()
	offset := tr.Tokens[0].StartMs

	var windows []model.Window
	for start := offset; start < offset+total; start += cfg.StrideMs {
		end := start + cfg.WindowSizeMs

		tokenIdxs := tokensStartingIn(tr, start, end)
		if len(tokenIdxs) == 0 {
			continue
		}

		anchorStart := saturatingSub(start, cfg.AnchorMs)
		// Anchor prefix tokens are selected by end time: a token that started
		// before the anchor window but runs into it still belongs in the
		// read-only context the model sees, per the "tokens whose end falls
		// in [start-5s, start)" framing of the prefix anchor.
		prefixIdxs := tokensEndingIn(tr, anchorStart, start)

		anchorEnd := end + cfg.AnchorMs
		suffixIdxs := tokensStartingIn(tr, end, anchorEnd)

		isProblem, types := intersectingTypes(start, end, zones)

		windows = append(windows, model.Window{
			ID:                  model.WindowIDForStart(start),
			StartMs:             start,
			EndMs:               end,
			TokenIndices:        tokenIdxs,
			AnchorPrefixIndices: prefixIdxs,
			AnchorSuffixIndices: suffixIdxs,
			IsProblemZone:       isProblem,
			ProblemTypes:        types,
		})
	}

	var problemIdxs []int
	for i, w := range windows {
		if !cfg.FilterProblemZones || w.IsProblemZone {
			problemIdxs = append(problemIdxs, i)
		}
	}

	return model.WindowSet{Windows: windows, ProblemWindowIndices: problemIdxs}
}

func tokensStartingIn(tr *model.Transcript, lo, hi uint64) []int {
	var out []int
	for i, t := range tr.Tokens {
		if t.StartMs >= lo && t.StartMs < hi {
			out = append(out, i)
		}
	}
	return out
}

func tokensEndingIn(tr *model.Transcript, lo, hi uint64) []int {
	var out []int
	for i, t := range tr.Tokens {
		if t.EndMs >= lo && t.EndMs < hi {
			out = append(out, i)
		}
	}
	return out
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func intersectingTypes(start, end uint64, zones []model.ProblemZone) (bool, []model.ProblemType) {
	var types []model.ProblemType
	seen := map[model.ProblemType]bool{}
	for _, z := range zones {
		if z.StartMs < end && z.EndMs > start {
			for _, t := range z.Types {
				if !seen[t] {
					seen[t] = true
					types = append(types, t)
				}
			}
		}
	}
	return len(types) > 0, types
}

// TokenWindowIndex computes, for every token index, the list of window
// indices (into ws.Windows) that include it as editable. BuildWindows does
// not build it and Stage 2 does not use it; Stage 2 walks each input window's
// TokenIndices directly.
func TokenWindowIndex(ws model.WindowSet) map[int][]int {
	idx := make(map[int][]int)
	for wi, w := range ws.Windows {
		for _, ti := range w.TokenIndices {
			idx[ti] = append(idx[ti], wi)
		}
	}
	return idx
}
