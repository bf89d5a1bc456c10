package drawer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/measure"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

type boardDrawer struct {
	Drawer
	m      measure.Measure
	stages []string
}

func (bd *boardDrawer) New() error { return nil }

func (bd *boardDrawer) OnStages(stages []model.Stage) error {
	bd.Reset()
	bd.stages = bd.stages[:0]

	for i, stage := range stages {
		err := bd.AddStage(stage)
		if err != nil {
			return err
		}
		bd.stages = append(bd.stages, stage.Name)

		if i > 0 {
			err = bd.AddLink(stages[i-1].Name, stage.Name)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (bd *boardDrawer) OnMoveApplied(*model.MoveInfo) error { return nil }

func (bd *boardDrawer) OnMoveSettled(*model.MoveInfo, time.Duration) error { return nil }

// OnReconcile draws the totals of the authoritative list.
func (bd *boardDrawer) OnReconcile(items []model.Item, _ bool) error {
	return bd.SetTotals(pipeline.ComputeStageTotals(items, bd.stages))
}

func (bd *boardDrawer) Finish() error {
	if bd.m != nil {
		err := bd.AddMeasure(bd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err := bd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw board")
	}

	return nil
}

// BoardDrawer draws the board with drawer once it is closed. measure may be nil.
func BoardDrawer(drawer Drawer, measure measure.Measure) model.Observer {
	return &boardDrawer{Drawer: drawer, m: measure}
}
