package domain

import "errors"

// Error kinds shared by every agent and the coordinator. Callers match them
// with errors.Is; producers wrap them with fmt.Errorf("...: %w", err).
var (
	ErrInputValidation  = errors.New("input validation failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrOptimizerFailure = errors.New("optimizer failed to converge")
	ErrUnfittedModel    = errors.New("model not fitted")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrUnknownWorkflow  = errors.New("unknown workflow")
	ErrAgentDisabled    = errors.New("agent disabled")
)
