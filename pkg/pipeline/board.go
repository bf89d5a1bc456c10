package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// Board is the optimistic pipeline reducer. It is safe for concurrent use.
type Board struct {
	store           Store
	notifier        Notifier
	logger          *zap.Logger
	observers       []model.Observer
	confirmTimeout  time.Duration
	refreshOnSettle bool

	// ctx is the parent of every confirmation. It is only cancelled when Close gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	stages        *StageSet
	authoritative []model.Item
	displayed     []model.Item
	deferred      []model.Item
	hasDeferred   bool
	seq           uint64
	inflight      map[string][]*Move // item id -> in-flight moves in issue order
	lastSuccess   map[string]uint64  // item id -> seq of the newest confirmed move
	closed        bool

	// confirmedSince holds the moves confirmed while a deferred list is parked; the list may predate them.
	confirmedSince []confirmedMove
}

// New creates a board backed by store. The board is empty until Refresh or Reconcile is called.
func New(store Store, opts ...Option) (*Board, error) {
	if store == nil {
		return nil, ErrStoreMustBeSet
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		store:          store,
		notifier:       nopNotifier{},
		logger:         zap.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
		ctx:            ctx,
		cancel:         cancel,
		inflight:       make(map[string][]*Move),
		lastSuccess:    make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(b)
	}

	for _, obs := range b.observers {
		err := obs.New()
		if err != nil {
			cancel()

			return nil, errors.Wrap(err, "unable to initialise board observer")
		}
	}

	return b, nil
}

// Refresh fetches stages and items concurrently, installs the stages and reconciles the items.
func (b *Board) Refresh(ctx context.Context) error {
	if b.isClosed() {
		return ErrBoardClosed
	}

	var (
		stages []model.Stage
		items  []model.Item
	)

	errGrp, gCtx := errgroup.WithContext(ctx)
	errGrp.Go(func() error {
		var err error
		stages, err = b.store.FetchStages(gCtx)

		return errors.Wrap(err, "unable to fetch stages")
	})
	errGrp.Go(func() error {
		var err error
		items, err = b.store.FetchItems(gCtx)

		return errors.Wrap(err, "unable to fetch items")
	})

	err := errGrp.Wait()
	if err != nil {
		return err
	}

	err = b.SetStages(stages)
	if err != nil {
		return err
	}

	b.Reconcile(items)

	return nil
}

// SetStages installs a new stage configuration. Moves are validated against it from now on.
func (b *Board) SetStages(stages []model.Stage) error {
	set, err := NewStageSet(stages)
	if err != nil {
		return errors.Wrap(err, "unable to build stage set")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return ErrBoardClosed
	}
	b.stages = set
	b.mu.Unlock()

	b.notifyObservers("stages", func(obs model.Observer) error {
		return obs.OnStages(set.Stages())
	})

	return nil
}

// Reconcile replaces the authoritative list. The displayed list is replaced too unless moves are in
// flight; in that case the newest list is kept aside and applied when the last move settles.
// It reports whether the displayed list was replaced now.
func (b *Board) Reconcile(items []model.Item) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return false
	}

	b.authoritative = model.CloneItems(items)

	deferred := b.inflightCount() > 0
	if deferred {
		b.deferred = model.CloneItems(items)
		b.hasDeferred = true
		b.confirmedSince = nil
	} else {
		b.replaceDisplayed(items)
	}
	b.mu.Unlock()

	if deferred {
		b.logger.Debug("reconcile deferred until in-flight moves settle", zap.Int("items", len(items)))
	}

	b.notifyObservers("reconcile", func(obs model.Observer) error {
		return obs.OnReconcile(model.CloneItems(items), deferred)
	})

	return !deferred
}

// Displayed returns a copy of the list currently shown to the user.
func (b *Board) Displayed() []model.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	return model.CloneItems(b.displayed)
}

// Authoritative returns a copy of the last list received from the store.
func (b *Board) Authoritative() []model.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	return model.CloneItems(b.authoritative)
}

// Stages returns the current stage set. It may be nil before the first refresh.
func (b *Board) Stages() *StageSet {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stages
}

// InFlight returns the number of moves waiting for confirmation.
func (b *Board) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.inflightCount()
}

// Totals computes the stage totals of the displayed list.
func (b *Board) Totals() []model.StageTotal {
	b.mu.Lock()
	items := model.CloneItems(b.displayed)
	names := b.stages.Names()
	b.mu.Unlock()

	return ComputeStageTotals(items, names)
}

// Close stops the board. Confirmations that arrive afterwards are discarded. Close waits for
// outstanding confirmations until ctx is done, then abandons them.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.cancel()

		return errors.Wrap(ctx.Err(), "unable to wait for in-flight moves")
	}
	b.cancel()

	for _, obs := range b.observers {
		err := obs.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish board observer")
		}
	}

	return nil
}

func (b *Board) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// replaceDisplayed must be called with b.mu held and no move in flight.
func (b *Board) replaceDisplayed(items []model.Item) {
	b.displayed = model.CloneItems(items)
	b.deferred = nil
	b.hasDeferred = false
	b.confirmedSince = nil
	b.lastSuccess = make(map[string]uint64)
}

func (b *Board) inflightCount() int {
	total := 0
	for _, moves := range b.inflight {
		total += len(moves)
	}

	return total
}

// notifyObservers must be called without b.mu held. Observer errors never affect the board.
func (b *Board) notifyObservers(hook string, fn func(obs model.Observer) error) {
	for _, obs := range b.observers {
		err := fn(obs)
		if err != nil {
			b.logger.Warn("board observer failed", zap.String("hook", hook), zap.Error(err))
		}
	}
}
