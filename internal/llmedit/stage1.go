package llmedit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noamfav/diatribe/internal/errs"
	"github.com/noamfav/diatribe/internal/model"
)

// StageConfig bundles Stage 1's execution knobs: how many windows to edit
// concurrently, how long to wait per window, and how many attempts (the
// first call included) to make on transport errors before giving up on it.
type StageConfig struct {
	Concurrency    int
	WindowTimeout  time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxSpeakers    int
	EditBudgetPct  float64
	Validation     ValidationConfig
}

// DefaultStageConfig matches spec.md §5's defaults.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Concurrency:    4,
		WindowTimeout:  60 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		MaxSpeakers:    4,
		EditBudgetPct:  3.0,
		Validation:     DefaultValidationConfig(),
	}
}

// Accepted is one validated, window-scoped patch, carrying enough context
// for Stage 2 to weight its votes.
type Accepted struct {
	WindowID  string
	Patch     model.WindowPatch
	Window    model.Window
	Validation model.PatchValidation
}

// Result is everything Stage 1 hands to Stage 2: the accepted patches, sorted
// deterministically by window ID, and any diagnostics accumulated along the
// way. Rejected or cancelled windows never appear in Accepted and are treated
// as unchanged downstream. A rejected window, or one a worker picked up after
// cancellation, leaves a diagnostic; a window never handed to a worker
// because the run was cancelled leaves none.
type Result struct {
	Accepted []Accepted
	Diags    errs.Diagnostics
}

// Run dispatches one EditWindow call per problem window through a bounded
// worker pool, validates whatever comes back, and returns the accepted
// subset sorted by window ID. It never returns an error itself: transport
// and validation failures degrade to diagnostics so a run always produces a
// well-formed (if partial) result.
func Run(ctx context.Context, editor Editor, tr *model.Transcript, windows []model.Window, cfg StageConfig, log *logrus.Logger) Result {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	type outcome struct {
		accepted *Accepted
		diag     *errs.Diagnostic
	}

	jobs := make(chan model.Window)
	results := make(chan outcome, len(windows))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range jobs {
				results <- editOne(ctx, editor, tr, w, cfg, log)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, w := range windows {
			select {
			case jobs <- w:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var res Result
	for o := range results {
		if o.diag != nil {
			res.Diags.Add(*o.diag)
		}
		if o.accepted != nil {
			res.Accepted = append(res.Accepted, *o.accepted)
		}
	}

	sort.Slice(res.Accepted, func(i, j int) bool {
		return res.Accepted[i].WindowID < res.Accepted[j].WindowID
	})

	return res
}

func editOne(ctx context.Context, editor Editor, tr *model.Transcript, w model.Window, cfg StageConfig, log *logrus.Logger) struct {
	accepted *Accepted
	diag     *errs.Diagnostic
} {
	type out = struct {
		accepted *Accepted
		diag     *errs.Diagnostic
	}

	if err := ctx.Err(); err != nil {
		return out{diag: &errs.Diagnostic{
			Kind: errs.DiagWindowCancelled, Stage: "llmedit", WindowID: w.ID,
			Message: "run cancelled before window was dispatched",
		}}
	}

	req := BuildRequest(tr, w, cfg.MaxSpeakers, cfg.EditBudgetPct)

	patch, err := editWithRetry(ctx, editor, req, cfg, log)
	if err != nil {
		return out{diag: &errs.Diagnostic{
			Kind: errs.DiagPatchRejected, Stage: "llmedit", WindowID: w.ID,
			Message: "editor call failed: " + err.Error(),
		}}
	}

	valCfg := cfg.Validation
	valCfg.AllowedSpeakers = req.AllowedSpeakers
	validation := Validate(patch, tr, w, valCfg)
	if !validation.Valid {
		if log != nil {
			log.WithFields(logrus.Fields{"window": w.ID, "errors": validation.Errors}).Debug("patch rejected")
		}
		return out{diag: &errs.Diagnostic{
			Kind: errs.DiagPatchRejected, Stage: "llmedit", WindowID: w.ID,
			Message: "validation failed",
		}}
	}

	return out{accepted: &Accepted{WindowID: w.ID, Patch: patch, Window: w, Validation: validation}}
}

// editWithRetry calls the editor with a per-window timeout, retrying only on
// transport errors (the call itself returning err != nil), making at most
// cfg.MaxRetries attempts in all, with linear backoff. A schema/validation failure is
// not a transport error and is never retried here; Validate handles it once
// downstream.
func editWithRetry(ctx context.Context, editor Editor, req WindowRequest, cfg StageConfig, log *logrus.Logger) (model.WindowPatch, error) {
	var lastErr error
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, cfg.WindowTimeout)
		patch, err := editor.EditWindow(wctx, req)
		cancel()
		if err == nil {
			return patch, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return model.WindowPatch{}, ctx.Err()
		}
		if attempt < attempts-1 {
			if log != nil {
				log.WithFields(logrus.Fields{"window": req.WindowID, "attempt": attempt + 1}).Warn("editor call failed, retrying")
			}
			select {
			case <-time.After(cfg.RetryBaseDelay * time.Duration(attempt+1)):
			case <-ctx.Done():
				return model.WindowPatch{}, ctx.Err()
			}
		}
	}
	return model.WindowPatch{}, lastErr
}
