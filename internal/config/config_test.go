package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	d := Default()
	if d.Window.SizeMs != 45000 || d.Window.StrideMs != 15000 {
		t.Errorf("unexpected window defaults: %+v", d.Window)
	}
	if d.LLMEdit.EditBudgetPct != 3.0 {
		t.Errorf("expected default edit budget 3.0, got %v", d.LLMEdit.EditBudgetPct)
	}
	if d.Reconcile.MinTurnDurationMs != 700 {
		t.Errorf("expected default min turn duration 700ms, got %v", d.Reconcile.MinTurnDurationMs)
	}
	if d.Speaker.MaxSpeakers != 4 {
		t.Errorf("expected default max speakers 4, got %v", d.Speaker.MaxSpeakers)
	}
}

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	got, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Window.SizeMs != Default().Window.SizeMs {
		t.Errorf("expected defaults preserved with no file, got %+v", got.Window)
	}
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diatribe.yaml")
	yaml := "window:\n  size_ms: 30000\nllm_edit:\n  edit_budget_pct: 5.0\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Window.SizeMs != 30000 {
		t.Errorf("expected file override of window.size_ms, got %v", got.Window.SizeMs)
	}
	if got.LLMEdit.EditBudgetPct != 5.0 {
		t.Errorf("expected file override of llm_edit.edit_budget_pct, got %v", got.LLMEdit.EditBudgetPct)
	}
	// Untouched keys should still fall back to defaults.
	if got.Window.StrideMs != Default().Window.StrideMs {
		t.Errorf("expected untouched key to keep its default, got %v", got.Window.StrideMs)
	}
}

func TestLoadEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diatribe.yaml")
	if err := os.WriteFile(path, []byte("window:\n  size_ms: 30000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DIATRIBE_WINDOW_SIZE_MS", "20000")

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Window.SizeMs != 20000 {
		t.Errorf("expected env var to override file value, got %v", got.Window.SizeMs)
	}
}

func TestWriteDefaultProducesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("unexpected error re-loading the written default file: %v", err)
	}
	if got.Pipeline.Name != Default().Pipeline.Name {
		t.Errorf("expected round-tripped default config to match Default(), got %+v", got.Pipeline)
	}
}

func TestLoadAcceptsNilFlagSet(t *testing.T) {
	var fs *pflag.FlagSet
	if _, err := Load("", fs); err != nil {
		t.Fatalf("unexpected error with nil flag set: %v", err)
	}
}
