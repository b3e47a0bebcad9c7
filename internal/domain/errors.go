package domain

import "errors"

var (
	// ErrPositionNotFound is returned by the ledger for an unknown ticker.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionExists is returned when inserting a ticker that already
	// has an open position.
	ErrPositionExists = errors.New("position already open for ticker")

	// ErrExchangeUnreachable aborts orchestrator startup.
	ErrExchangeUnreachable = errors.New("exchange connectivity check failed")
)
