package pipeline

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const (
	moveAction     = "move item"
	moveFailureMsg = "could not move item"
)

// Move is the handle of one applied move.
type Move struct {
	seq      uint64
	noop     bool
	snapshot []model.Item
	done     chan struct{}

	mu   sync.Mutex
	info model.MoveInfo
	err  error
}

func newMove(seq uint64, info model.MoveInfo, snapshot []model.Item) *Move {
	return &Move{
		seq:      seq,
		info:     info,
		snapshot: snapshot,
		done:     make(chan struct{}),
	}
}

// ID returns the unique move identifier. No-op moves have an empty id.
func (m *Move) ID() string { return m.info.ID }

// Noop reports whether the move left the board untouched.
func (m *Move) Noop() bool { return m.noop }

// Info returns the current description of the move.
func (m *Move) Info() model.MoveInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.info
}

// Snapshot returns a copy of the displayed list as it was right before the move.
func (m *Move) Snapshot() []model.Item { return model.CloneItems(m.snapshot) }

// Done is closed once the move is settled.
func (m *Move) Done() <-chan struct{} { return m.done }

// Wait blocks until the move settles and returns the store error, if any.
func (m *Move) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "unable to wait for move")
	case <-m.done:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}

func (m *Move) finish(state model.MoveState, err error) model.MoveInfo {
	m.mu.Lock()
	m.info.State = state
	m.info.Err = err
	m.err = err
	info := m.info
	m.mu.Unlock()
	close(m.done)

	return info
}

// origin returns where a rollback of this move puts the item back.
func (m *Move) origin() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.info.FromStage, m.info.FromIndex
}

func (m *Move) inherit(stage string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info.FromStage = stage
	m.info.FromIndex = index
}

// ApplyMove moves an item to targetStage at targetIndex, its final zero-based position in the whole
// displayed list. The index is clamped to the list bounds.
//
// Invalid requests fail before anything changes. A move that keeps the item in its stage and position
// is a no-op. A move that keeps the stage only reorders the display and is never sent to the store.
// Any other move is displayed immediately and confirmed in the background; if the store rejects it,
// this move alone is undone and a notification is raised.
func (b *Board) ApplyMove(itemID, targetStage string, targetIndex int) (*Move, error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return nil, ErrBoardClosed
	}

	if b.stages.Len() == 0 {
		b.mu.Unlock()

		return nil, ErrNoStages
	}

	if !b.stages.Valid(targetStage) {
		b.mu.Unlock()

		return nil, errors.Wrapf(ErrInvalidStage, "stage %q", targetStage)
	}

	from := model.IndexOf(b.displayed, itemID)
	if from < 0 {
		b.mu.Unlock()

		return nil, errors.Wrapf(ErrUnknownItem, "item %q", itemID)
	}

	to := clamp(targetIndex, 0, len(b.displayed)-1)
	fromStage := b.displayed[from].Stage

	if fromStage == targetStage && from == to {
		b.mu.Unlock()
		mv := newMove(0, model.MoveInfo{
			ItemID:    itemID,
			FromStage: fromStage,
			ToStage:   targetStage,
			FromIndex: from,
			ToIndex:   to,
		}, nil)
		mv.noop = true
		mv.finish(model.MoveIdle, nil)

		return mv, nil
	}

	b.seq++
	mv := newMove(b.seq, model.MoveInfo{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		FromStage: fromStage,
		ToStage:   targetStage,
		FromIndex: from,
		ToIndex:   to,
		State:     model.MoveMoving,
	}, model.CloneItems(b.displayed))

	b.displayed = relocate(b.displayed, from, to, targetStage)

	confirm := fromStage != targetStage
	if confirm {
		b.inflight[itemID] = append(b.inflight[itemID], mv)
		b.wg.Add(1)
	}
	b.mu.Unlock()

	var info model.MoveInfo
	if confirm {
		info = mv.Info()
		go b.confirm(mv)
	} else {
		info = mv.finish(model.MoveIdle, nil)
	}

	b.logger.Debug("move applied",
		zap.String("move", info.ID),
		zap.String("item", itemID),
		zap.String("from", fromStage),
		zap.String("to", targetStage),
		zap.Int("index", to),
		zap.Bool("confirm", confirm),
	)

	b.notifyObservers("move applied", func(obs model.Observer) error {
		return obs.OnMoveApplied(&info)
	})

	return mv, nil
}

func (b *Board) confirm(mv *Move) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, b.confirmTimeout)
	defer cancel()

	info := mv.Info()
	start := time.Now()
	err := b.store.UpdateItemStage(ctx, info.ItemID, info.ToStage)
	b.settle(mv, errors.Wrapf(err, "unable to update stage of item %q", info.ItemID), time.Since(start))
}

func (b *Board) settle(mv *Move, err error, elapsed time.Duration) {
	b.mu.Lock()

	itemID := mv.info.ItemID
	b.removeInflight(itemID, mv)

	if b.closed {
		b.mu.Unlock()
		state := model.MoveSettled
		if err != nil {
			state = model.MoveRolledBack
		}
		mv.finish(state, err)
		b.logger.Debug("discarding confirmation of closed board", zap.String("move", mv.ID()))

		return
	}

	state := model.MoveSettled
	if err != nil {
		state = model.MoveRolledBack
		b.rollback(mv)
	} else {
		if mv.seq > b.lastSuccess[itemID] {
			b.lastSuccess[itemID] = mv.seq
		}
		if b.hasDeferred {
			b.confirmedSince = append(b.confirmedSince, confirmedMove{
				seq:    mv.seq,
				itemID: itemID,
				stage:  mv.info.ToStage,
			})
		}
	}

	var (
		reconciled []model.Item
		stale      bool
	)
	if b.hasDeferred && b.inflightCount() == 0 {
		reconciled = model.CloneItems(b.deferred)
		stale = replayConfirmed(reconciled, b.confirmedSince)
		b.replaceDisplayed(reconciled)
	}
	b.mu.Unlock()

	info := mv.finish(state, err)

	if err != nil {
		b.logger.Warn("move rolled back",
			zap.String("move", info.ID),
			zap.String("item", itemID),
			zap.String("stage", info.ToStage),
			zap.Error(err),
		)
		b.notifier.Notify(Notification{
			Action:  moveAction,
			Message: moveFailureMsg,
			ItemID:  itemID,
			MoveID:  info.ID,
		})
	}

	b.notifyObservers("move settled", func(obs model.Observer) error {
		return obs.OnMoveSettled(&info, elapsed)
	})

	if reconciled != nil {
		b.logger.Debug("deferred reconcile applied", zap.Int("items", len(reconciled)), zap.Bool("stale", stale))
		b.notifyObservers("reconcile", func(obs model.Observer) error {
			return obs.OnReconcile(reconciled, false)
		})
	}

	// a parked list behind a confirmed move is patched, then replaced by a fresh one
	if b.refreshOnSettle || stale {
		b.refreshAsync()
	}
}

// confirmedMove is a stage change the store accepted.
type confirmedMove struct {
	seq    uint64
	itemID string
	stage  string
}

// replayConfirmed puts the items of confirmed moves in their target stage, newest move last.
// It reports whether items was behind any of them.
func replayConfirmed(items []model.Item, confirmed []confirmedMove) bool {
	sorted := slices.Clone(confirmed)
	slices.SortFunc(sorted, func(a, b confirmedMove) int { return cmp.Compare(a.seq, b.seq) })

	stale := false
	for _, c := range sorted {
		i := model.IndexOf(items, c.itemID)
		if i < 0 || items[i].Stage == c.stage {
			continue
		}
		items[i].Stage = c.stage
		stale = true
	}

	return stale
}

// rollback undoes mv on the displayed list. It must be called with b.mu held, after mv has been removed
// from the in-flight moves.
//
// Only the failed item is touched, so moves of other items survive. When a later move of the same
// item was already confirmed, the display is already right. When a later move of the same item is
// still in flight it inherits this move's origin and the display is left to it.
func (b *Board) rollback(mv *Move) {
	itemID := mv.info.ItemID
	fromStage, fromIndex := mv.origin()

	if b.lastSuccess[itemID] > mv.seq {
		return
	}

	for _, later := range b.inflight[itemID] {
		if later.seq > mv.seq {
			later.inherit(fromStage, fromIndex)

			return
		}
	}

	current := model.IndexOf(b.displayed, itemID)
	if current < 0 {
		b.logger.Warn("rolled back item is no longer displayed", zap.String("item", itemID))

		return
	}

	b.displayed = relocate(b.displayed, current, clamp(fromIndex, 0, len(b.displayed)-1), fromStage)
}

func (b *Board) removeInflight(itemID string, mv *Move) {
	moves := b.inflight[itemID]
	for i, m := range moves {
		if m == mv {
			moves = slices.Delete(moves, i, i+1)

			break
		}
	}
	if len(moves) == 0 {
		delete(b.inflight, itemID)

		return
	}
	b.inflight[itemID] = moves
}

func (b *Board) refreshAsync() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, b.confirmTimeout)
		defer cancel()

		err := b.Refresh(ctx)
		if err != nil && !errors.Is(err, ErrBoardClosed) {
			b.logger.Warn("refresh after settle failed", zap.Error(err))
		}
	}()
}

// relocate returns a new list where the item at from sits at to with the given stage.
func relocate(items []model.Item, from, to int, stage string) []model.Item {
	moved := items[from]
	moved.Stage = stage

	out := make([]model.Item, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)

	return slices.Insert(out, to, moved)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}

	return min(max(v, lo), hi)
}
