package service

import "errors"

// Common service errors
var (
	// ErrNoData is returned when no refresh has produced a dataset yet
	ErrNoData = errors.New("no dataset loaded")

	// ErrInvalidInput is returned when the raw input cannot be processed
	ErrInvalidInput = errors.New("invalid input")

	// ErrWarehouseDisabled is returned when a warehouse refresh is
	// requested but no warehouse source is configured
	ErrWarehouseDisabled = errors.New("warehouse source not configured")
)
