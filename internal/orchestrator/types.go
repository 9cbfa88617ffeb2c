package orchestrator

import (
	"time"

	"github.com/noamfav/diatribe/internal/assemble"
)

// Output is everything one Run produces: the machine-readable structure, the
// rendered human transcript, and the diagnostics accumulated along the way.
type Output struct {
	SessionID     string
	GeneratedAt   time.Time
	Machine       assemble.MachineOutput
	HumanText     string
	Diagnostics   []string
	NonConvergent bool
}
