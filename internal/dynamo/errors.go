package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrGeometryConstruction indicates a voxel could not be built as requested.
	ErrGeometryConstruction = errors.New("dynamo: geometry construction failed")

	// ErrConfiguration indicates an invalid or inconsistent simulation setup.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrDegenerateSignal indicates a compartment had no samples when the
	// signal was evaluated. The signal is reported as zero.
	ErrDegenerateSignal = errors.New("dynamo: degenerate signal (empty compartment)")

	// ErrFinalized indicates stepping past the planned step count.
	ErrFinalized = errors.New("dynamo: simulation finalized")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// ConstructionError reports a voxel that could not reach its target blood volume.
type ConstructionError struct {
	Requested float64
	Achieved  float64
	Placed    int
	Reason    string
}

func (e *ConstructionError) Error() string {
	if e.Requested == 0 && e.Achieved == 0 {
		return fmt.Sprintf("geometry: %s", e.Reason)
	}
	return fmt.Sprintf("geometry: %s (achieved CBV %.5f of requested %.5f with %d vessels)",
		e.Reason, e.Achieved, e.Requested, e.Placed)
}

func (e *ConstructionError) Unwrap() error {
	return ErrGeometryConstruction
}

// ConfigError names the offending setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Configf builds a ConfigError with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
