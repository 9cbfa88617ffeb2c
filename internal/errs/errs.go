// Package errs defines the pipeline's error taxonomy: fatal errors that abort
// a run, and diagnostics that are accumulated and returned alongside a
// well-formed result.
package errs

import "fmt"

// FatalError is returned when a run cannot proceed at all: a malformed input
// document, tokens out of order, negative durations, or a configuration
// error caught at startup. The pipeline aborts before producing any output.
type FatalError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal builds a FatalError.
func NewFatal(stage, kind string, err error) *FatalError {
	return &FatalError{Stage: stage, Kind: kind, Err: err}
}

// DiagnosticKind classifies a non-fatal problem recorded during a run.
type DiagnosticKind string

const (
	// DiagPatchRejected records a Stage 1 patch that failed validation, timed
	// out, or errored in transport; the affected window is treated as
	// unchanged.
	DiagPatchRejected DiagnosticKind = "patch_rejected"
	// DiagNonConvergent records a Stage 2 constraint loop that hit its
	// iteration cap without reaching a fixed point; the pipeline keeps the
	// last computed state.
	DiagNonConvergent DiagnosticKind = "non_convergent"
	// DiagWindowCancelled records a Stage 1 window that was not sent to the
	// editor because the run had already been cancelled. A request that was
	// in flight when cancellation fired is recorded as DiagPatchRejected.
	DiagWindowCancelled DiagnosticKind = "window_cancelled"
)

// Diagnostic is a non-fatal problem recorded during a run. The pipeline's
// output is always well-formed even when diagnostics are present.
type Diagnostic struct {
	Kind     DiagnosticKind
	Stage    string
	WindowID string
	Message  string
}

func (d Diagnostic) String() string {
	if d.WindowID != "" {
		return fmt.Sprintf("[%s/%s] window=%s: %s", d.Stage, d.Kind, d.WindowID, d.Message)
	}
	return fmt.Sprintf("[%s/%s] %s", d.Stage, d.Kind, d.Message)
}

// Diagnostics accumulates non-fatal problems across a run.
type Diagnostics struct {
	items []Diagnostic
}

// Add records a diagnostic.
func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

// Addf is a convenience wrapper around Add for the common message-formatting
// case.
func (d *Diagnostics) Addf(kind DiagnosticKind, stage, windowID, format string, a ...any) {
	d.Add(Diagnostic{Kind: kind, Stage: stage, WindowID: windowID, Message: fmt.Sprintf(format, a...)})
}

// Items returns every diagnostic recorded so far, in recorded order.
func (d *Diagnostics) Items() []Diagnostic {
	return append([]Diagnostic(nil), d.items...)
}

// Len returns the number of diagnostics recorded.
func (d *Diagnostics) Len() int { return len(d.items) }
