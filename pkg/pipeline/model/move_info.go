package model

import "fmt"

// MoveState is the per-move lifecycle state.
type MoveState int

const (
	// MoveIdle is the state of a move that required no confirmation.
	MoveIdle MoveState = iota
	// MoveMoving means the optimistic change is displayed and the confirmation is in flight.
	MoveMoving
	// MoveSettled means the store confirmed the change.
	MoveSettled
	// MoveRolledBack means the store rejected the change and the display was restored.
	MoveRolledBack
)

func (s MoveState) String() string {
	switch s {
	case MoveIdle:
		return "idle"
	case MoveMoving:
		return "moving"
	case MoveSettled:
		return "settled"
	case MoveRolledBack:
		return "rolled_back"
	}

	return fmt.Sprintf("MoveState(%d)", int(s))
}

// MoveInfo describes one move as seen by observers.
type MoveInfo struct {
	ID        string
	ItemID    string
	FromStage string
	ToStage   string
	FromIndex int
	ToIndex   int
	State     MoveState
	Err       error
}

// Transition is the "from->to" key used to group moves between two stages.
func (mi *MoveInfo) Transition() string {
	return mi.FromStage + "->" + mi.ToStage
}
