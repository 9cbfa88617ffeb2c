package normalize

// WindowConfig controls how Stage 0 cuts sliding windows over the token
// stream for Stage 1.
type WindowConfig struct {
	WindowSizeMs uint64
	StrideMs     uint64
	AnchorMs     uint64
	// FilterProblemZones, when true (the default), restricts the windows
	// Stage 1 will process to those intersecting a problem zone.
	FilterProblemZones bool
}

// DefaultWindowConfig matches spec.md §6's defaults.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		WindowSizeMs:       45_000,
		StrideMs:           15_000,
		AnchorMs:           5_000,
		FilterProblemZones: true,
	}
}

// ProblemZoneConfig controls the four overlapping problem-zone detectors.
type ProblemZoneConfig struct {
	MaxSwitchesPer10s    uint32
	MinTurnDurationMs    uint64
	OverlapProximityMs   uint64
	MinSpeakerConfidence float64
	LowConfidenceRunMs   uint64
}

// DefaultProblemZoneConfig matches spec.md §4.0's defaults.
func DefaultProblemZoneConfig() ProblemZoneConfig {
	return ProblemZoneConfig{
		MaxSwitchesPer10s:    3,
		MinTurnDurationMs:    800,
		OverlapProximityMs:   2_000,
		MinSpeakerConfidence: 0.6,
		LowConfidenceRunMs:   2_000,
	}
}

// OverflowPolicy decides what happens to the Nth distinct incoming speaker
// label once MaxSpeakers has already been reached. Left to the implementer by
// spec.md §9, but must be configuration-driven and must never silently
// discard tokens.
type OverflowPolicy string

const (
	// OverflowMergeIntoNearest remaps an overflowing speaker ID onto the
	// closest already-admitted speaker ID (by recency of last appearance);
	// every token is kept.
	OverflowMergeIntoNearest OverflowPolicy = "merge_into_nearest"
	// OverflowError rejects the input with a fatal configuration error
	// instead of silently merging speakers.
	OverflowError OverflowPolicy = "error"
)

// SpeakerConfig controls how Stage 0 clamps the incoming speaker label set.
type SpeakerConfig struct {
	MaxSpeakers     int
	OverflowPolicy  OverflowPolicy
}

// DefaultSpeakerConfig matches spec.md §6's max_speakers default of 4.
func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{MaxSpeakers: 4, OverflowPolicy: OverflowMergeIntoNearest}
}
