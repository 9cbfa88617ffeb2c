package speakerid

import (
	"fmt"
	"strings"
)

// SystemPrompt states the guidelines the external identifier must follow,
// grounded on the same evidentiary standard as the local editor's rules:
// clear evidence only, no guessing.
const SystemPrompt = `You are an expert at identifying speakers in conversation transcripts.

Match numeric speaker IDs (Speaker 0, Speaker 1, ...) to participant names
using evidence in the transcript: self-introductions, name mentions by other
speakers, and role or context clues.

Only identify a speaker with clear evidence. Confidence should reflect actual
certainty: 0.9-1.0 for a direct self-introduction, 0.7-0.9 for strong
contextual evidence, 0.5-0.7 for weak evidence, below 0.5 for insufficient
evidence (leave unidentified). It is better to leave a speaker unidentified
than to guess.`

// BuildUserPrompt renders the participant list, the speaker IDs present,
// and their excerpts into the user-turn text.
func BuildUserPrompt(participants []Participant, excerpts []speakerExcerpts, speakerIDs []uint32) string {
	var b strings.Builder

	b.WriteString("# Participants to identify\n\n")
	for i, p := range participants {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Name)
		if p.Hints != "" {
			fmt.Fprintf(&b, " - %s", p.Hints)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n# Speakers in transcript\n\n")
	ids := make([]string, len(speakerIDs))
	for i, id := range speakerIDs {
		ids[i] = fmt.Sprintf("Speaker %d", id)
	}
	fmt.Fprintf(&b, "%d speakers: %s\n\n", len(speakerIDs), strings.Join(ids, ", "))

	b.WriteString("# Transcript excerpts by speaker\n\n")
	for _, se := range excerpts {
		fmt.Fprintf(&b, "## Speaker %d\n\n", se.SpeakerID)
		for i, excerpt := range se.Excerpts {
			fmt.Fprintf(&b, "Excerpt %d: %s\n\n", i+1, excerpt)
		}
	}

	b.WriteString("Identify which participant corresponds to each speaker, with confidence scores and evidence.\n")
	return b.String()
}
