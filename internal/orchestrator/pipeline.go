// Package orchestrator wires the five stages — Normalize, Heuristics,
// Local-Edit, Reconcile, Assemble — plus the optional speaker-identification
// post-stage into one end-to-end run over a source transcript document.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/noamfav/diatribe/internal/assemble"
	"github.com/noamfav/diatribe/internal/config"
	"github.com/noamfav/diatribe/internal/deepgram"
	"github.com/noamfav/diatribe/internal/errs"
	"github.com/noamfav/diatribe/internal/heuristics"
	"github.com/noamfav/diatribe/internal/llmedit"
	"github.com/noamfav/diatribe/internal/model"
	"github.com/noamfav/diatribe/internal/normalize"
	"github.com/noamfav/diatribe/internal/reconcile"
	"github.com/noamfav/diatribe/internal/render"
	"github.com/noamfav/diatribe/internal/speakerid"
)

// Pipeline holds the collaborators a run needs beyond what config.Root
// itself describes: the LLM editor (nil disables Stage 1 even when
// cfg.HeuristicsOnly is false), the optional speaker identifier, and a
// logger.
type Pipeline struct {
	Cfg        *config.Root
	Log        *logrus.Logger
	Editor     llmedit.Editor
	Identifier speakerid.Identifier
}

// New builds a Pipeline with a logrus.Logger at cfg.Pipeline.LogLevel.
func New(cfg *config.Root, editor llmedit.Editor, identifier speakerid.Identifier) *Pipeline {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Pipeline.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return &Pipeline{Cfg: cfg, Log: log, Editor: editor, Identifier: identifier}
}

// Run executes the full pipeline over the source document at inputPath,
// which must be a Deepgram-shaped JSON transcript. It never returns an error
// for a partial or degraded run: transport and validation failures surface
// as diagnostics on the returned Output. It returns an error only for
// conditions that abort the run outright: unreadable input, a malformed
// document, or a stage-0 configuration error. If writing a configured output
// file fails, it returns the Output together with that error.
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*Output, error) {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, errs.NewFatal("orchestrator", "read_input", err)
	}

	resp, err := deepgram.Parse(raw)
	if err != nil {
		return nil, errs.NewFatal("orchestrator", "parse_input", err)
	}

	normResult, err := normalize.Run(resp, normalizeConfig(p.Cfg))
	if err != nil {
		return nil, err
	}
	tr := normResult.Transcript

	originalSpeaker := make(map[string]uint32, len(tr.Tokens))
	for _, t := range tr.Tokens {
		originalSpeaker[t.ID] = t.Speaker
	}

	hResult := heuristics.Apply(tr, heuristicsConfig(p.Cfg))
	protectedTokens := backchannelProtected(hResult)

	changes := make([]model.Change, 0, len(hResult.Changes))
	for _, c := range hResult.Changes {
		changes = append(changes, model.Change{
			TokenID: c.TokenID, From: c.From, To: c.To,
			Stage: "heuristics", Reason: c.Rule,
		})
	}

	var diags errs.Diagnostics
	var stage1 llmedit.Result

	if !p.Cfg.HeuristicsOnly && p.Editor != nil {
		windows := normResult.Windows.ProblemWindows()
		stage1 = llmedit.Run(ctx, p.Editor, tr, windows, llmeditConfig(p.Cfg), p.Log)
		for _, d := range stage1.Diags.Items() {
			diags.Add(d)
		}

		inputs := make([]reconcile.Input, 0, len(stage1.Accepted))
		for _, a := range stage1.Accepted {
			inputs = append(inputs, reconcile.Input{
				Window:  a.Window,
				Patch:   a.Patch,
				Quality: 1.0 - a.Validation.CostDelta,
			})
		}

		reconcileResult := reconcile.Run(tr, inputs, protectedTokens, reconcileConfig(p.Cfg), &diags, p.Log)
		changes = append(changes, reconcileResult.Changes...)
	}

	machine := assemble.Run(tr, originalSpeaker, len(stage1.Accepted), changes)

	var namer render.SpeakerNamer
	if p.Cfg.SpeakerID.Enabled && p.Identifier != nil {
		participants := make([]speakerid.Participant, 0, len(p.Cfg.SpeakerID.Participants))
		for _, name := range p.Cfg.SpeakerID.Participants {
			participants = append(participants, speakerid.Participant{Name: name})
		}

		idResult, err := speakerid.Run(ctx, p.Identifier, tr, participants, speakeridConfig(p.Cfg))
		if err != nil {
			diags.Addf(errs.DiagPatchRejected, "speakerid", "", "identification failed: %v", err)
		} else {
			namer = idResult.Namer()
		}
	}

	humanText := render.Format(tr, namer)

	out := &Output{
		SessionID:   "run_" + uuid.NewString(),
		GeneratedAt: time.Now(),
		Machine:     machine,
		HumanText:   humanText,
	}
	for _, d := range diags.Items() {
		out.Diagnostics = append(out.Diagnostics, d.String())
		if d.Kind == errs.DiagNonConvergent {
			out.NonConvergent = true
		}
	}

	if err := persistOutputs(p.Cfg.Output.MachinePath, p.Cfg.Output.HumanPath, machine, humanText); err != nil {
		return out, fmt.Errorf("orchestrator: persist outputs: %w", err)
	}

	return out, nil
}

func normalizeConfig(cfg *config.Root) normalize.Config {
	overflow := normalize.OverflowMergeIntoNearest
	if cfg.Speaker.OverflowPolicy == "error" {
		overflow = normalize.OverflowError
	}
	return normalize.Config{
		Window: normalize.WindowConfig{
			WindowSizeMs:       cfg.Window.SizeMs,
			StrideMs:           cfg.Window.StrideMs,
			AnchorMs:           cfg.Window.AnchorMs,
			FilterProblemZones: cfg.Window.FilterProblemZones,
		},
		ProblemZone: normalize.ProblemZoneConfig{
			MaxSwitchesPer10s:    uint32(cfg.ProblemZone.MaxSwitchesPer10s),
			MinTurnDurationMs:    cfg.ProblemZone.MinTurnDurationMs,
			OverlapProximityMs:   cfg.ProblemZone.OverlapProximityMs,
			MinSpeakerConfidence: cfg.ProblemZone.MinSpeakerConfidence,
			LowConfidenceRunMs:   cfg.ProblemZone.LowConfidenceRunMs,
		},
		Speaker: normalize.SpeakerConfig{
			MaxSpeakers:    cfg.Speaker.MaxSpeakers,
			OverflowPolicy: overflow,
		},
	}
}

func heuristicsConfig(cfg *config.Root) heuristics.Config {
	d := heuristics.DefaultConfig()
	return heuristics.Config{
		MicroTurnMaxMs:           cfg.Heuristics.MicroTurnMaxMs,
		MicroTurnSkipConfidence:  cfg.Heuristics.MicroTurnSkipConfidence,
		BackchannelWords:         heuristics.DefaultBackchannelWords(),
		BackchannelProximityMs:   cfg.Heuristics.BackchannelProximityMs,
		BackchannelMaxConfidence: cfg.Heuristics.BackchannelMaxConfidence,
		FloorDecayPerSecond:      cfg.Heuristics.FloorDecayPerSecond,
		MinFloorScore:            cfg.Heuristics.MinFloorScore,
		FloorWindowMs:            d.FloorWindowMs,
	}
}

func llmeditConfig(cfg *config.Root) llmedit.StageConfig {
	c := llmedit.DefaultStageConfig()
	c.Concurrency = cfg.LLMEdit.Concurrency
	c.WindowTimeout = time.Duration(cfg.LLMEdit.WindowTimeoutSeconds) * time.Second
	c.MaxRetries = cfg.LLMEdit.MaxRetries
	c.RetryBaseDelay = time.Duration(cfg.LLMEdit.RetryBaseDelayMs) * time.Millisecond
	c.MaxSpeakers = cfg.Speaker.MaxSpeakers
	c.EditBudgetPct = cfg.LLMEdit.EditBudgetPct
	c.Validation.MaxEditBudgetPct = cfg.LLMEdit.EditBudgetPct
	c.Validation.CostDeltaThreshold = cfg.LLMEdit.CostDeltaThreshold
	return c
}

func reconcileConfig(cfg *config.Root) reconcile.Config {
	d := reconcile.DefaultConfig()
	return reconcile.Config{
		DefaultLLMConfidenceRelabel:  d.DefaultLLMConfidenceRelabel,
		DefaultLLMConfidenceNull:     d.DefaultLLMConfidenceNull,
		MinWindowQuality:             d.MinWindowQuality,
		ProximityFloor:               d.ProximityFloor,
		StableSpanMinDurationMs:      cfg.Reconcile.StableSpanMinDurationMs,
		StableSpanMinConfidence:      cfg.Reconcile.StableSpanMinConfidence,
		StableSpanMinAgreeingWindows: cfg.Reconcile.StableSpanMinAgreeingWindows,
		MinTurnDurationMs:            cfg.Reconcile.MinTurnDurationMs,
		MaxSwitchesPerSecondWindow:   cfg.Reconcile.MaxSwitchesPerSecondWindow,
		MaxConstraintIterations:      cfg.Reconcile.MaxConstraintIterations,
	}
}

func speakeridConfig(cfg *config.Root) speakerid.Config {
	return speakerid.Config{
		ConfidenceThreshold:   cfg.SpeakerID.ConfidenceThreshold,
		MaxExcerptsPerSpeaker: cfg.SpeakerID.MaxExcerptsPerSpeaker,
		MaxContextChars:       cfg.SpeakerID.MaxContextChars,
	}
}

// backchannelProtected returns the set of token IDs the heuristic pre-pass
// committed to via the backchannel rule; Stage 2's minimum-turn-duration
// constraint must not merge these away even if they remain single-token
// turns.
func backchannelProtected(hResult heuristics.Result) map[string]bool {
	out := map[string]bool{}
	for _, c := range hResult.Changes {
		if c.Rule == "backchannel_attribution" {
			out[c.TokenID] = true
		}
	}
	return out
}
