package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/noamfav/diatribe/internal/assemble"
)

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// persistOutputs writes the machine-readable structure and the rendered
// human transcript to their configured paths. Either path may be empty, in
// which case that artifact is skipped.
func persistOutputs(machinePath, humanPath string, machine assemble.MachineOutput, human string) error {
	if machinePath != "" {
		if err := writeJSON(machinePath, machine); err != nil {
			return err
		}
	}
	if humanPath != "" {
		if err := writeText(humanPath, human); err != nil {
			return err
		}
	}
	return nil
}
