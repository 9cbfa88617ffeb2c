// Package normalize implements Stage 0 of the labeling pipeline: parsing the
// source token stream, assigning stable IDs, detecting problem zones, and
// cutting the sliding windows Stage 1 will operate on.
package normalize

import (
	"github.com/noamfav/diatribe/internal/deepgram"
	"github.com/noamfav/diatribe/internal/model"
)

// Config bundles every knob Stage 0 needs.
type Config struct {
	Window      WindowConfig
	ProblemZone ProblemZoneConfig
	Speaker     SpeakerConfig
}

// DefaultConfig returns spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		Window:      DefaultWindowConfig(),
		ProblemZone: DefaultProblemZoneConfig(),
		Speaker:     DefaultSpeakerConfig(),
	}
}

// Result is Stage 0's output: the canonical transcript, its merged problem
// zones, and the window set built around them.
type Result struct {
	Transcript  *model.Transcript
	ProblemZones []model.ProblemZone
	Windows     model.WindowSet
}

// Run executes Stage 0 end to end on a decoded source document.
func Run(resp *deepgram.Response, cfg Config) (*Result, error) {
	tr, err := Tokenize(resp, cfg.Speaker)
	if err != nil {
		return nil, err
	}

	DetectOverlapRegions(tr)

	zones := DetectProblemZones(tr, cfg.ProblemZone)
	merged := MergeZones(zones)

	windows := BuildWindows(tr, cfg.Window, merged)

	return &Result{
		Transcript:   tr,
		ProblemZones: merged,
		Windows:      windows,
	}, nil
}
