package pipeline_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewNilStore(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(nil)
	assert.ErrorIs(t, err, pipeline.ErrStoreMustBeSet)
}

func TestApplyMoveConfirmed(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	board := newLoadedBoard(t, store)

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	assert.False(t, mv.Noop())
	assert.Equal(t, []string{"p1@Won"}, placement(board.Displayed()))
	assert.Equal(t, 1, board.InFlight())

	call := nextCall(t, store)
	assert.Equal(t, "p1", call.id)
	assert.Equal(t, "Won", call.stage)
	call.reply <- nil

	require.NoError(t, waitMove(t, mv))
	assert.Equal(t, model.MoveSettled, mv.Info().State)
	assert.Equal(t, []string{"p1@Won"}, placement(board.Displayed()))
	assert.Equal(t, 0, board.InFlight())
	assertNoCall(t, store)
}

func TestApplyMoveRollback(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	notifs := &notifications{}
	board := newLoadedBoard(t, store, pipeline.WithNotifier(notifs))

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)

	call := nextCall(t, store)
	call.reply <- assert.AnError

	err = waitMove(t, mv)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, model.MoveRolledBack, mv.Info().State)
	assert.Equal(t, mv.Snapshot(), board.Displayed())
	assert.Equal(t, []string{"p1@New"}, placement(board.Displayed()))

	got := notifs.all()
	require.Len(t, got, 1)
	assert.Equal(t, "could not move item", got[0].Message)
	assert.Equal(t, "move item", got[0].Action)
	assert.Equal(t, "p1", got[0].ItemID)
	assert.Equal(t, mv.ID(), got[0].MoveID)

	// the board stays usable after a failure
	mv, err = board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	nextCall(t, store).reply <- nil
	require.NoError(t, waitMove(t, mv))
	assert.Equal(t, []string{"p1@Won"}, placement(board.Displayed()))
}

func TestApplyMoveReorderOnly(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"))
	board := newLoadedBoard(t, store)

	mv, err := board.ApplyMove("p2", "New", 0)
	require.NoError(t, err)
	require.NoError(t, waitMove(t, mv))

	assert.False(t, mv.Noop())
	assert.Equal(t, model.MoveIdle, mv.Info().State)
	assert.Equal(t, []string{"p2@New", "p1@New"}, placement(board.Displayed()))
	assert.Equal(t, 0, board.InFlight())
	assertNoCall(t, store)
}

func TestApplyMoveNoop(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"))
	board := newLoadedBoard(t, store)
	before := board.Displayed()

	for range 3 {
		mv, err := board.ApplyMove("p2", "New", 1)
		require.NoError(t, err)
		assert.True(t, mv.Noop())
		assert.Empty(t, mv.ID())
		require.NoError(t, waitMove(t, mv))
	}

	assert.Equal(t, before, board.Displayed())
	assertNoCall(t, store)
}

func TestApplyMoveRejected(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		itemID  string
		stage   string
		wantErr error
	}{
		"unknown stage":   {itemID: "p1", stage: "Lost", wantErr: pipeline.ErrInvalidStage},
		"empty stage":     {itemID: "p1", stage: "", wantErr: pipeline.ErrInvalidStage},
		"unknown item":    {itemID: "p9", stage: "Won", wantErr: pipeline.ErrUnknownItem},
		"stage and item":  {itemID: "p9", stage: "Lost", wantErr: pipeline.ErrInvalidStage},
		"stage case diff": {itemID: "p1", stage: "won", wantErr: pipeline.ErrInvalidStage},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
			board := newLoadedBoard(t, store)
			before := board.Displayed()

			mv, err := board.ApplyMove(tc.itemID, tc.stage, 0)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, mv)
			assert.Equal(t, before, board.Displayed())
			assert.Equal(t, 0, board.InFlight())
			assertNoCall(t, store)
		})
	}
}

func TestApplyMoveBeforeRefresh(t *testing.T) {
	t.Parallel()

	board, err := pipeline.New(newControlledStore(nil))
	require.NoError(t, err)
	defer func() { require.NoError(t, board.Close(context.Background())) }()

	_, err = board.ApplyMove("p1", "New", 0)
	assert.ErrorIs(t, err, pipeline.ErrNoStages)
}

func TestApplyMoveClampsIndex(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"), item("p3", "Won"))
	board := newLoadedBoard(t, store)

	mv, err := board.ApplyMove("p1", "New", 100)
	require.NoError(t, err)
	require.NoError(t, waitMove(t, mv))
	assert.Equal(t, []string{"p2@New", "p3@Won", "p1@New"}, placement(board.Displayed()))

	mv, err = board.ApplyMove("p1", "New", -4)
	require.NoError(t, err)
	require.NoError(t, waitMove(t, mv))
	assert.Equal(t, []string{"p1@New", "p2@New", "p3@Won"}, placement(board.Displayed()))
}

func TestIndependentRollback(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		failFirst bool
	}{
		"failure arrives first": {failFirst: true},
		"success arrives first": {failFirst: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newControlledStore([]string{"New", "Won"}, item("a", "New"), item("b", "New"))
			notifs := &notifications{}
			board := newLoadedBoard(t, store, pipeline.WithNotifier(notifs))

			m1, err := board.ApplyMove("a", "Won", 1)
			require.NoError(t, err)
			callA := nextCall(t, store)

			m2, err := board.ApplyMove("b", "Won", 0)
			require.NoError(t, err)
			callB := nextCall(t, store)

			assert.Equal(t, []string{"b@Won", "a@Won"}, placement(board.Displayed()))

			if tc.failFirst {
				callA.reply <- assert.AnError
				require.Error(t, waitMove(t, m1))
				callB.reply <- nil
				require.NoError(t, waitMove(t, m2))
			} else {
				callB.reply <- nil
				require.NoError(t, waitMove(t, m2))
				callA.reply <- assert.AnError
				require.Error(t, waitMove(t, m1))
			}

			assert.Equal(t, []string{"a@New", "b@Won"}, placement(board.Displayed()))
			assert.Len(t, notifs.all(), 1)
		})
	}
}

func TestSameItemMoves(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		first, second error
		secondFirst   bool
		want          string
	}{
		"both fail in order":            {first: assert.AnError, second: assert.AnError, want: "a@New"},
		"both fail reversed":            {first: assert.AnError, second: assert.AnError, secondFirst: true, want: "a@New"},
		"first fails second confirms":   {first: assert.AnError, second: nil, want: "a@Lost"},
		"second confirms then first":    {first: assert.AnError, second: nil, secondFirst: true, want: "a@Lost"},
		"first confirms second fails":   {first: nil, second: assert.AnError, want: "a@Won"},
		"second fails then first holds": {first: nil, second: assert.AnError, secondFirst: true, want: "a@Won"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := newControlledStore([]string{"New", "Won", "Lost"}, item("a", "New"))
			board := newLoadedBoard(t, store)

			m1, err := board.ApplyMove("a", "Won", 0)
			require.NoError(t, err)
			call1 := nextCall(t, store)
			m2, err := board.ApplyMove("a", "Lost", 0)
			require.NoError(t, err)
			call2 := nextCall(t, store)

			if tc.secondFirst {
				call2.reply <- tc.second
				_ = waitMove(t, m2)
				call1.reply <- tc.first
				_ = waitMove(t, m1)
			} else {
				call1.reply <- tc.first
				_ = waitMove(t, m1)
				call2.reply <- tc.second
				_ = waitMove(t, m2)
			}

			assert.Equal(t, []string{tc.want}, placement(board.Displayed()))
		})
	}
}

func TestRandomMovesKeepEveryItem(t *testing.T) {
	t.Parallel()

	stages := []string{"New", "Open", "Won", "Lost"}
	items := []model.Item{}
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		items = append(items, item(id, stages[i%len(stages)]))
	}
	store := newControlledStore(stages, items...)
	board := newLoadedBoard(t, store)

	want := ids(board.Authoritative())
	sort.Strings(want)

	type pendingMove struct {
		call updateCall
		mv   *pipeline.Move
	}

	rnd := rand.New(rand.NewSource(42))
	pending := []pendingMove{}

	for range 200 {
		displayed := board.Displayed()
		target := displayed[rnd.Intn(len(displayed))]
		stage := stages[rnd.Intn(len(stages))]

		mv, err := board.ApplyMove(target.ID, stage, rnd.Intn(len(displayed)+2)-1)
		require.NoError(t, err)

		if mv.Info().State == model.MoveMoving {
			pending = append(pending, pendingMove{call: nextCall(t, store), mv: mv})
		}

		// resolve a random subset in random order
		for len(pending) > 0 && rnd.Intn(3) == 0 {
			i := rnd.Intn(len(pending))
			if rnd.Intn(2) == 0 {
				pending[i].call.reply <- assert.AnError
			} else {
				pending[i].call.reply <- nil
			}
			_ = waitMove(t, pending[i].mv)
			pending = append(pending[:i], pending[i+1:]...)
		}

		got := ids(board.Displayed())
		sort.Strings(got)
		require.Equal(t, want, got)
	}

	for _, p := range pending {
		p.call.reply <- assert.AnError
		_ = waitMove(t, p.mv)
	}

	got := ids(board.Displayed())
	sort.Strings(got)
	assert.Equal(t, want, got)
	for _, it := range board.Displayed() {
		assert.True(t, board.Stages().Valid(it.Stage))
	}
}

func TestReconcileDeferredWhileInFlight(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"))
	board := newLoadedBoard(t, store)

	mv, err := board.ApplyMove("p1", "Won", 1)
	require.NoError(t, err)
	call := nextCall(t, store)

	fresh := []model.Item{item("p1", "New"), item("p2", "Won"), item("p3", "New")}
	applied := board.Reconcile(fresh)
	assert.False(t, applied)
	assert.Equal(t, fresh, board.Authoritative())
	assert.Equal(t, []string{"p2@New", "p1@Won"}, placement(board.Displayed()))

	newer := []model.Item{item("p1", "Won"), item("p2", "Won"), item("p3", "New")}
	assert.False(t, board.Reconcile(newer))

	call.reply <- nil
	require.NoError(t, waitMove(t, mv))
	assert.Equal(t, newer, board.Displayed())
}

func TestReconcileDeferredKeepsConfirmedMove(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"))
	board := newLoadedBoard(t, store)
	fetched := store.fetches.Load()

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	call := nextCall(t, store)

	// list read before the stage update reached the store
	assert.False(t, board.Reconcile([]model.Item{item("p1", "New"), item("p2", "New")}))

	store.setItems(item("p1", "Won"), item("p2", "New"))
	call.reply <- nil
	require.NoError(t, waitMove(t, mv))

	assert.Equal(t, []string{"p1@Won", "p2@New"}, placement(board.Displayed()))
	assert.Eventually(t, func() bool { return store.fetches.Load() > fetched }, waitTimeout, time.Millisecond)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"p1@Won", "p2@New"}, placement(board.Authoritative()))
	}, waitTimeout, time.Millisecond)
}

func TestReconcileDeferredRolledBackMove(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"), item("p2", "New"))
	board := newLoadedBoard(t, store)
	fetched := store.fetches.Load()

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	call := nextCall(t, store)

	assert.False(t, board.Reconcile([]model.Item{item("p2", "New"), item("p1", "New")}))

	call.reply <- assert.AnError
	require.ErrorIs(t, waitMove(t, mv), assert.AnError)

	assert.Equal(t, []string{"p2@New", "p1@New"}, placement(board.Displayed()))
	assertNoCall(t, store)
	assert.Equal(t, fetched, store.fetches.Load())
}

func TestReconcileImmediate(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	board := newLoadedBoard(t, store)

	fresh := []model.Item{item("p1", "Won"), item("p2", "New")}
	assert.True(t, board.Reconcile(fresh))
	assert.Equal(t, fresh, board.Displayed())

	fresh[0].Stage = "New"
	assert.Equal(t, "Won", board.Displayed()[0].Stage)
}

func TestCloseDiscardsLateConfirmation(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	notifs := &notifications{}
	board, err := pipeline.New(store, pipeline.WithNotifier(notifs))
	require.NoError(t, err)
	require.NoError(t, board.Refresh(context.Background()))

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	call := nextCall(t, store)

	closed := make(chan error, 1)
	go func() {
		closed <- board.Close(context.Background())
	}()

	require.Eventually(t, func() bool {
		return errors.Is(board.Refresh(context.Background()), pipeline.ErrBoardClosed)
	}, waitTimeout, time.Millisecond)

	call.reply <- assert.AnError
	require.NoError(t, <-closed)
	require.Error(t, waitMove(t, mv))

	assert.Equal(t, []string{"p1@Won"}, placement(board.Displayed()))
	assert.Empty(t, notifs.all())

	_, err = board.ApplyMove("p1", "New", 0)
	assert.ErrorIs(t, err, pipeline.ErrBoardClosed)
	assert.ErrorIs(t, board.Refresh(context.Background()), pipeline.ErrBoardClosed)
	assert.NoError(t, board.Close(context.Background()))
}

func TestCloseTimeout(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	board, err := pipeline.New(store)
	require.NoError(t, err)
	require.NoError(t, board.Refresh(context.Background()))

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	nextCall(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, board.Close(ctx), context.DeadlineExceeded)

	// the abandoned confirmation unblocks through the cancelled board context
	assert.ErrorIs(t, waitMove(t, mv), context.Canceled)
}

func TestRefreshFetchError(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New"})
	store.err = assert.AnError
	board, err := pipeline.New(store)
	require.NoError(t, err)
	defer func() { require.NoError(t, board.Close(context.Background())) }()

	err = board.Refresh(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, board.Stages())
}

func TestRefreshInvalidStages(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "New"})
	board, err := pipeline.New(store)
	require.NoError(t, err)
	defer func() { require.NoError(t, board.Close(context.Background())) }()

	assert.ErrorIs(t, board.Refresh(context.Background()), pipeline.ErrDuplicateStage)
}

func TestRefreshOnSettle(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"}, item("p1", "New"))
	board := newLoadedBoard(t, store, pipeline.WithRefreshOnSettle())
	require.EqualValues(t, 1, store.fetches.Load())

	mv, err := board.ApplyMove("p1", "Won", 0)
	require.NoError(t, err)
	store.setItems(item("p1", "Won"), item("p2", "New"))
	nextCall(t, store).reply <- nil
	require.NoError(t, waitMove(t, mv))

	require.Eventually(t, func() bool {
		return len(board.Displayed()) == 2
	}, waitTimeout, time.Millisecond)
	assert.EqualValues(t, 2, store.fetches.Load())
	assert.Equal(t, []string{"p1@Won", "p2@New"}, placement(board.Displayed()))
}

func TestTotals(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New", "Won"},
		itemWithValue("p1", "Won", 100),
		itemWithValue("p2", "Won", 250),
		itemWithValue("p3", "New", 40),
	)
	board := newLoadedBoard(t, store)

	totals := board.Totals()
	require.Len(t, totals, 2)
	assert.Equal(t, "New", totals[0].Stage)
	assert.Equal(t, 1, totals[0].Count)
	assert.Equal(t, "40", totals[0].Sum.String())
	assert.Equal(t, "Won", totals[1].Stage)
	assert.Equal(t, 2, totals[1].Count)
	assert.Equal(t, "350", totals[1].Sum.String())

	mv, err := board.ApplyMove("p3", "Won", 2)
	require.NoError(t, err)

	totals = board.Totals()
	assert.Equal(t, 0, totals[0].Count)
	assert.True(t, totals[0].Sum.IsZero())
	assert.Equal(t, 3, totals[1].Count)
	assert.Equal(t, "390", totals[1].Sum.String())

	nextCall(t, store).reply <- nil
	require.NoError(t, waitMove(t, mv))
}

func TestWatch(t *testing.T) {
	t.Parallel()

	store := newControlledStore([]string{"New"}, item("p1", "New"))
	board := newLoadedBoard(t, store)

	assert.Error(t, board.Watch(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- board.Watch(ctx, time.Millisecond)
	}()

	store.setItems(item("p1", "New"), item("p2", "New"))
	require.Eventually(t, func() bool {
		return len(board.Displayed()) == 2
	}, waitTimeout, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
