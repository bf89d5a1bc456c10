// Package store holds what the board store backends share.
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

var (
	// ErrNotFound is returned when the item to update does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownStage is returned when an item is put in a stage the clinic does not have.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrStageExists is returned when a stage name is already taken in the clinic.
	ErrStageExists = errors.New("stage already exists")
	// ErrStageInUse is returned when a stage that still holds items is deleted.
	ErrStageInUse = errors.New("stage has items")
)

// Seeder creates stages and items. The created value carries the id assigned by the store.
type Seeder interface {
	CreateStage(ctx context.Context, stage model.Stage) (model.Stage, error)
	CreateItem(ctx context.Context, item model.Item) (model.Item, error)
}

// StageManager edits the columns of a clinic board.
type StageManager interface {
	// UpdateStage renames and recolours the stage with the same ID. Empty fields are kept. Items of
	// a renamed stage follow it.
	UpdateStage(ctx context.Context, stage model.Stage) (model.Stage, error)
	// ReorderStages gives each stage its index in ids as order.
	ReorderStages(ctx context.Context, ids []string) error
	// DeleteStage removes an empty stage.
	DeleteStage(ctx context.Context, id string) error
}

// Backend is a board store that can also be seeded, have its stages edited and be closed.
type Backend interface {
	pipeline.Store
	Seeder
	StageManager
	Close() error
}
