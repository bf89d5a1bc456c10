package pipeline

import (
	"context"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// Store is the remote collaborator holding the authoritative copy of the board.
type Store interface {
	// FetchItems returns the full ordered list of items.
	FetchItems(ctx context.Context) ([]model.Item, error)
	// FetchStages returns the configured stages.
	FetchStages(ctx context.Context) ([]model.Stage, error)
	// UpdateItemStage persists the stage of one item.
	UpdateItemStage(ctx context.Context, id, stage string) error
}

// Notification is a transient, user facing failure message.
type Notification struct {
	Action  string
	Message string
	ItemID  string
	MoveID  string
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
