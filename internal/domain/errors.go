package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrCycleRunning        = errors.New("agent cycle already running")
	ErrAgentDisabled       = errors.New("agent is disabled")
	ErrContextDone         = errors.New("context cancelled")
)
