package drawer

import (
	"github.com/askiada/clinic-pipeline/pkg/pipeline/measure"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// Drawer is an interface that defines the methods for drawing a board.
type Drawer interface {
	// Reset forgets every stage and link.
	Reset()
	// AddStage adds a stage node.
	AddStage(stage model.Stage) error
	// AddLink links two consecutive stages.
	AddLink(fromStage, toStage string) error
	// SetTotals sets the count and value shown on each stage node.
	SetTotals(totals []model.StageTotal) error
	// AddMeasure adds one edge per observed transition.
	AddMeasure(measure measure.Measure) error
	// Draw renders the board.
	Draw() error
}
