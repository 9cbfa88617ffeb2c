// Package deepgram decodes the Deepgram-shaped word-level transcript that
// feeds the pipeline and converts it into the canonical token stream Stage 0
// operates on.
package deepgram

import (
	"encoding/json"
	"fmt"
)

// Response is the root document shape:
// results.channels[0].alternatives[0].words[].
type Response struct {
	Results Results `json:"results"`
}

type Results struct {
	Channels []Channel `json:"channels"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

type Alternative struct {
	Words      []Word  `json:"words"`
	Transcript *string `json:"transcript,omitempty"`
}

// Word is a single recognized word with its diarization metadata. Start and
// End are seconds as floating point, per the source format; SpeakerConfidence
// is nil when the upstream diarizer omitted it, and
// SpeakerConfidenceOrDefault then reports 0.5.
type Word struct {
	Word              string   `json:"word"`
	Start             float64  `json:"start"`
	End               float64  `json:"end"`
	Confidence        float64  `json:"confidence"`
	Speaker           uint32   `json:"speaker"`
	SpeakerConfidence *float64 `json:"speaker_confidence,omitempty"`
	PunctuatedWord    *string  `json:"punctuated_word,omitempty"`
}

// Words returns the words of the first channel's first alternative, or nil
// if the document has none.
func (r *Response) Words() []Word {
	if len(r.Results.Channels) == 0 {
		return nil
	}
	alts := r.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return nil
	}
	return alts[0].Words
}

// Parse decodes a Deepgram JSON document from raw bytes.
func Parse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("deepgram: parse: %w", err)
	}
	return &resp, nil
}

// RoundToMillis converts a seconds-as-float64 timestamp to integer
// milliseconds using round-half-away-from-zero, per the wire contract:
// round(seconds * 1000).
func RoundToMillis(seconds float64) uint64 {
	scaled := seconds * 1000.0
	if scaled < 0 {
		scaled = 0
	}
	return uint64(scaled + 0.5)
}

// SpeakerConfidenceOrDefault returns w.SpeakerConfidence, or 0.5 if the
// upstream diarizer didn't report one.
func (w Word) SpeakerConfidenceOrDefault() float64 {
	if w.SpeakerConfidence != nil {
		return *w.SpeakerConfidence
	}
	return 0.5
}
