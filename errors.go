// errors.go - Typed error values shared across the engine

package main

import "fmt"

// EngineError provides operation context for failures that cross component
// boundaries. Modeled on the same shape everywhere: what was attempted,
// detail text, and the underlying cause if any.
type EngineError struct {
	Operation string // What operation was being attempted
	Details   string // Additional error context
	Err       error  // Underlying error if any
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Details)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Error categories surfaced to the operator console as statusMessage levels.
const (
	StatusInfo    = "info"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusSuccess = "success"
)

// Well-known failure kinds. These are matched by substring on the console
// side, so the strings are part of the protocol surface.
const (
	ErrPermissionDenied        = "permission denied"
	ErrDeviceAcquisitionFailed = "device acquisition failed"
	ErrAutoplayBlocked         = "autoplay blocked"
	ErrContextLost             = "context lost"
	ErrTransportDisconnected   = "transport disconnected"
)
