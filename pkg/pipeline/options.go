package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// DefaultConfirmTimeout bounds a single stage confirmation.
const DefaultConfirmTimeout = 15 * time.Second

type Option func(b *Board)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(b *Board) {
		if notifier != nil {
			b.notifier = notifier
		}
	}
}

// WithObservers registers observers notified during the board lifecycle.
func WithObservers(observers ...model.Observer) Option {
	return func(b *Board) {
		b.observers = append(b.observers, observers...)
	}
}

func WithConfirmTimeout(timeout time.Duration) Option {
	return func(b *Board) {
		if timeout > 0 {
			b.confirmTimeout = timeout
		}
	}
}

// WithRefreshOnSettle refreshes the board from the store every time a confirmation settles.
func WithRefreshOnSettle() Option {
	return func(b *Board) {
		b.refreshOnSettle = true
	}
}
