package model

import "time"

// Observer defines the interface for board observers.
type Observer interface {
	// New initialises the observer when the board is created.
	New() error
	// OnStages runs every time a new stage configuration is installed.
	OnStages(stages []Stage) error
	// OnMoveApplied runs after a move changed the displayed list.
	OnMoveApplied(move *MoveInfo) error
	// OnMoveSettled runs when the confirmation of a move resolves, successfully or not.
	OnMoveSettled(move *MoveInfo, elapsed time.Duration) error
	// OnReconcile runs when an authoritative list arrives. deferred reports whether
	// the displayed list was left untouched because moves were still in flight.
	OnReconcile(items []Item, deferred bool) error
	// Finish runs after the board is closed.
	Finish() error
}
