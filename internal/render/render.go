// Package render produces the human-readable transcript view: one
// timestamped paragraph per turn, words joined verbatim with no punctuation
// or casing inference.
package render

import (
	"fmt"
	"strings"

	"github.com/noamfav/diatribe/internal/model"
)

// WrapWidth is the target line width human transcripts wrap at.
const WrapWidth = 80

// SpeakerNamer resolves a numeric speaker ID to a display name. When nil, or
// when it returns ok=false, the render falls back to "Speaker N".
type SpeakerNamer func(speaker uint32) (name string, ok bool)

// Format renders tr as a human-readable transcript: for every turn, a
// "[MM:SS.mmm] Speaker N:" header followed by its words, wrapped at
// WrapWidth.
func Format(tr *model.Transcript, namer SpeakerNamer) string {
	var b strings.Builder

	for _, turn := range tr.Turns {
		label := speakerLabel(turn.Speaker, namer)
		fmt.Fprintf(&b, "[%s] %s:\n", formatTimestamp(turn.StartMs), label)

		words := make([]string, 0, len(turn.TokenIndices))
		for _, idx := range turn.TokenIndices {
			if idx < 0 || idx >= len(tr.Tokens) {
				continue
			}
			words = append(words, tr.Tokens[idx].Word)
		}

		b.WriteString(wrapText(strings.Join(words, " "), WrapWidth))
		b.WriteString("\n\n")
	}

	return b.String()
}

func speakerLabel(speaker uint32, namer SpeakerNamer) string {
	if namer != nil {
		if name, ok := namer(speaker); ok {
			return name
		}
	}
	return fmt.Sprintf("Speaker %d", speaker)
}

// formatTimestamp renders milliseconds as MM:SS.mmm.
func formatTimestamp(ms uint64) string {
	seconds := ms / 1000
	millis := ms % 1000
	minutes := seconds / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d.%03d", minutes, secs, millis)
}

// wrapText greedily wraps whitespace-joined text at approximately width
// characters, never splitting a word.
func wrapText(text string, width int) string {
	var b strings.Builder
	lineLen := 0

	for _, word := range strings.Fields(text) {
		if lineLen+len(word)+1 > width && lineLen > 0 {
			b.WriteByte('\n')
			lineLen = 0
		}
		if lineLen > 0 {
			b.WriteByte(' ')
			lineLen++
		}
		b.WriteString(word)
		lineLen += len(word)
	}

	return b.String()
}
