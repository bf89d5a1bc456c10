package measure

import (
	"sync"
	"time"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

type boardMeasure struct {
	Measure

	mu sync.Mutex
	// transitions remembers the transition of each pending move, since a rollback can rewrite
	// the origin of a later move before it settles.
	transitions map[string]string
}

func (bm *boardMeasure) New() error { return nil }

func (bm *boardMeasure) OnStages([]model.Stage) error { return nil }

func (bm *boardMeasure) OnMoveApplied(move *model.MoveInfo) error {
	if move.State != model.MoveMoving {
		return nil
	}

	transition := move.Transition()
	bm.mu.Lock()
	bm.transitions[move.ID] = transition
	bm.mu.Unlock()

	bm.AddMetric(transition).AddApplied()

	return nil
}

func (bm *boardMeasure) OnMoveSettled(move *model.MoveInfo, elapsed time.Duration) error {
	bm.mu.Lock()
	transition, ok := bm.transitions[move.ID]
	delete(bm.transitions, move.ID)
	bm.mu.Unlock()

	if !ok {
		transition = move.Transition()
	}

	bm.AddMetric(transition).AddSettled(elapsed, move.State == model.MoveRolledBack)

	return nil
}

func (bm *boardMeasure) OnReconcile([]model.Item, bool) error { return nil }

func (bm *boardMeasure) Finish() error { return nil }

// BoardMeasure records every confirmed stage change of a board into measure.
func BoardMeasure(measure Measure) model.Observer {
	return &boardMeasure{Measure: measure, transitions: make(map[string]string)}
}
