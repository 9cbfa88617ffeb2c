// Package config loads diatribe's configuration from, in ascending order of
// precedence, built-in defaults, a YAML file, environment variables, and CLI
// flags, via viper. Every key here corresponds to a knob a pipeline stage
// exposes; see internal/orchestrator for how they're threaded through.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Window controls Stage 0's sliding-window construction.
type Window struct {
	SizeMs             uint64 `yaml:"size_ms" mapstructure:"size_ms"`
	StrideMs           uint64 `yaml:"stride_ms" mapstructure:"stride_ms"`
	AnchorMs           uint64 `yaml:"anchor_ms" mapstructure:"anchor_ms"`
	FilterProblemZones bool   `yaml:"filter_problem_zones" mapstructure:"filter_problem_zones"`
}

// ProblemZone controls Stage 0's four problem-zone detectors.
type ProblemZone struct {
	MaxSwitchesPer10s    int     `yaml:"max_switches_per_10s" mapstructure:"max_switches_per_10s"`
	MinTurnDurationMs    uint64  `yaml:"min_turn_duration_ms" mapstructure:"min_turn_duration_ms"`
	OverlapProximityMs   uint64  `yaml:"overlap_proximity_ms" mapstructure:"overlap_proximity_ms"`
	MinSpeakerConfidence float64 `yaml:"min_speaker_confidence" mapstructure:"min_speaker_confidence"`
	LowConfidenceRunMs   uint64  `yaml:"low_confidence_run_ms" mapstructure:"low_confidence_run_ms"`
}

// Speaker controls the max-speakers overflow policy.
type Speaker struct {
	MaxSpeakers    int    `yaml:"max_speakers" mapstructure:"max_speakers"`
	OverflowPolicy string `yaml:"overflow_policy" mapstructure:"overflow_policy"` // "merge_into_nearest" | "error"
}

// Heuristics controls Stage H's three deterministic rules.
type Heuristics struct {
	MicroTurnMaxMs           uint64  `yaml:"micro_turn_max_ms" mapstructure:"micro_turn_max_ms"`
	MicroTurnSkipConfidence  float64 `yaml:"micro_turn_skip_confidence" mapstructure:"micro_turn_skip_confidence"`
	BackchannelProximityMs   uint64  `yaml:"backchannel_proximity_ms" mapstructure:"backchannel_proximity_ms"`
	BackchannelMaxConfidence float64 `yaml:"backchannel_max_confidence" mapstructure:"backchannel_max_confidence"`
	FloorDecayPerSecond      float64 `yaml:"floor_decay_per_second" mapstructure:"floor_decay_per_second"`
	MinFloorScore            float64 `yaml:"min_floor_score" mapstructure:"min_floor_score"`
}

// LLMEdit controls Stage 1's request budget, concurrency, and validation
// thresholds.
type LLMEdit struct {
	Concurrency          int     `yaml:"concurrency" mapstructure:"concurrency"`
	WindowTimeoutSeconds int     `yaml:"window_timeout_seconds" mapstructure:"window_timeout_seconds"`
	MaxRetries           int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelayMs     int     `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	EditBudgetPct        float64 `yaml:"edit_budget_pct" mapstructure:"edit_budget_pct"`
	CostDeltaThreshold   float64 `yaml:"cost_delta_threshold" mapstructure:"cost_delta_threshold"`
}

// Reconcile controls Stage 2's constraint enforcement.
type Reconcile struct {
	MinTurnDurationMs            uint64  `yaml:"min_turn_duration_ms" mapstructure:"min_turn_duration_ms"`
	MaxSwitchesPerSecondWindow   int     `yaml:"max_switches_per_second_window" mapstructure:"max_switches_per_second_window"`
	MaxConstraintIterations      int     `yaml:"max_constraint_iterations" mapstructure:"max_constraint_iterations"`
	StableSpanMinDurationMs      uint64  `yaml:"stable_span_min_duration_ms" mapstructure:"stable_span_min_duration_ms"`
	StableSpanMinConfidence      float64 `yaml:"stable_span_min_confidence" mapstructure:"stable_span_min_confidence"`
	StableSpanMinAgreeingWindows int     `yaml:"stable_span_min_agreeing_windows" mapstructure:"stable_span_min_agreeing_windows"`
}

// LLMService is one HTTP endpoint diatribe calls out to.
type LLMService struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Model string `yaml:"model" mapstructure:"model"`
}

// Services groups every external collaborator endpoint.
type Services struct {
	Editor    LLMService `yaml:"editor" mapstructure:"editor"`
	SpeakerID LLMService `yaml:"speaker_id" mapstructure:"speaker_id"`
}

// SpeakerID controls the optional naming post-stage.
type SpeakerID struct {
	Enabled               bool     `yaml:"enabled" mapstructure:"enabled"`
	ConfidenceThreshold   float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxExcerptsPerSpeaker int      `yaml:"max_excerpts_per_speaker" mapstructure:"max_excerpts_per_speaker"`
	MaxContextChars       int      `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	Participants          []string `yaml:"participants" mapstructure:"participants"`
}

// Output controls where the rendered transcripts go.
type Output struct {
	MachinePath string `yaml:"machine_path" mapstructure:"machine_path"`
	HumanPath   string `yaml:"human_path" mapstructure:"human_path"`
}

// Root is the complete configuration tree.
type Root struct {
	Pipeline struct {
		Name     string `yaml:"name" mapstructure:"name"`
		Version  string `yaml:"version" mapstructure:"version"`
		LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	} `yaml:"pipeline" mapstructure:"pipeline"`

	HeuristicsOnly bool `yaml:"heuristics_only" mapstructure:"heuristics_only"`

	Window      Window      `yaml:"window" mapstructure:"window"`
	ProblemZone ProblemZone `yaml:"problem_zone" mapstructure:"problem_zone"`
	Speaker     Speaker     `yaml:"speaker" mapstructure:"speaker"`
	Heuristics  Heuristics  `yaml:"heuristics" mapstructure:"heuristics"`
	LLMEdit     LLMEdit     `yaml:"llm_edit" mapstructure:"llm_edit"`
	Reconcile   Reconcile   `yaml:"reconcile" mapstructure:"reconcile"`
	Services    Services    `yaml:"services" mapstructure:"services"`
	SpeakerID   SpeakerID   `yaml:"speaker_id" mapstructure:"speaker_id"`
	Output      Output      `yaml:"output" mapstructure:"output"`
}

// Default returns the configuration with every documented default applied,
// mirroring each stage's own DefaultConfig so a fresh Root and a fresh stage
// config never disagree.
func Default() *Root {
	var r Root
	r.Pipeline.Name = "diatribe"
	r.Pipeline.Version = "0.1.0"
	r.Pipeline.LogLevel = "info"

	r.Window = Window{SizeMs: 45000, StrideMs: 15000, AnchorMs: 5000, FilterProblemZones: true}
	r.ProblemZone = ProblemZone{MaxSwitchesPer10s: 3, MinTurnDurationMs: 800, OverlapProximityMs: 2000, MinSpeakerConfidence: 0.6, LowConfidenceRunMs: 2000}
	r.Speaker = Speaker{MaxSpeakers: 4, OverflowPolicy: "merge_into_nearest"}
	r.Heuristics = Heuristics{MicroTurnMaxMs: 300, MicroTurnSkipConfidence: 0.9, BackchannelProximityMs: 2000, BackchannelMaxConfidence: 0.75, FloorDecayPerSecond: 0.2, MinFloorScore: 0.3}
	r.LLMEdit = LLMEdit{Concurrency: 4, WindowTimeoutSeconds: 60, MaxRetries: 3, RetryBaseDelayMs: 500, EditBudgetPct: 3.0, CostDeltaThreshold: 0.15}
	r.Reconcile = Reconcile{MinTurnDurationMs: 700, MaxSwitchesPerSecondWindow: 2, MaxConstraintIterations: 5, StableSpanMinDurationMs: 6000, StableSpanMinConfidence: 0.8, StableSpanMinAgreeingWindows: 2}
	r.SpeakerID = SpeakerID{Enabled: false, ConfidenceThreshold: 0.7, MaxExcerptsPerSpeaker: 5, MaxContextChars: 8000}

	return &r
}

// Load builds the layered configuration: defaults, then an optional YAML
// file (configPath, if non-empty), then DIATRIBE_-prefixed environment
// variables, then any bound flags in fs.
func Load(configPath string, fs *pflag.FlagSet) (*Root, error) {
	v := viper.New()
	applyDefaults(v, Default())

	v.SetEnvPrefix("DIATRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	var out Root
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &out, nil
}

// applyDefaults seeds viper's default layer from a Root built via Default(),
// so Load's precedence chain always has a complete bottom layer even with no
// file or flags present.
func applyDefaults(v *viper.Viper, d *Root) {
	b, err := yaml.Marshal(d)
	if err != nil {
		return
	}
	v.SetConfigType("yaml")
	_ = v.ReadConfig(strings.NewReader(string(b)))
	for _, key := range v.AllKeys() {
		v.SetDefault(key, v.Get(key))
	}
}

// WriteDefault writes the default configuration to path as YAML, for
// `diatribe config init`.
func WriteDefault(path string) error {
	b, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
