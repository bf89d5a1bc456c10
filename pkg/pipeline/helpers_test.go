package pipeline_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const waitTimeout = 5 * time.Second

type updateCall struct {
	id, stage string
	reply     chan error
}

// controlledStore hands every stage update to the test, which decides when and how it resolves.
type controlledStore struct {
	mu      sync.Mutex
	stages  []model.Stage
	items   []model.Item
	calls   chan updateCall
	fetches atomic.Int64
	err     error
}

func newControlledStore(stages []string, items ...model.Item) *controlledStore {
	st := make([]model.Stage, len(stages))
	for i, name := range stages {
		st[i] = model.Stage{ID: name, Name: name, Order: i}
	}

	return &controlledStore{
		stages: st,
		items:  items,
		calls:  make(chan updateCall, 64),
	}
}

func (s *controlledStore) FetchItems(_ context.Context) ([]model.Item, error) {
	s.fetches.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	return model.CloneItems(s.items), nil
}

func (s *controlledStore) FetchStages(_ context.Context) ([]model.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Stage, len(s.stages))
	copy(out, s.stages)

	return out, nil
}

func (s *controlledStore) UpdateItemStage(ctx context.Context, id, stage string) error {
	call := updateCall{id: id, stage: stage, reply: make(chan error, 1)}
	select {
	case s.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-call.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *controlledStore) setItems(items ...model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func nextCall(t *testing.T, s *controlledStore) updateCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatal("no stage update reached the store")
	}

	return updateCall{}
}

func assertNoCall(t *testing.T, s *controlledStore) {
	t.Helper()
	select {
	case call := <-s.calls:
		t.Fatalf("unexpected stage update %s -> %s", call.id, call.stage)
	case <-time.After(20 * time.Millisecond):
	}
}

type notifications struct {
	mu  sync.Mutex
	got []pipeline.Notification
}

func (n *notifications) Notify(notif pipeline.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notif)
}

func (n *notifications) all() []pipeline.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]pipeline.Notification, len(n.got))
	copy(out, n.got)

	return out
}

func item(id, stage string) model.Item {
	return model.Item{ID: id, Stage: stage, Name: "patient " + id, Value: decimal.Zero}
}

func itemWithValue(id, stage string, value int64) model.Item {
	it := item(id, stage)
	it.Value = decimal.NewFromInt(value)

	return it
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}

	return out
}

func placement(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID + "@" + it.Stage
	}

	return out
}

func newLoadedBoard(t *testing.T, store *controlledStore, opts ...pipeline.Option) *pipeline.Board {
	t.Helper()

	board, err := pipeline.New(store, opts...)
	require.NoError(t, err)
	require.NoError(t, board.Refresh(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		require.NoError(t, board.Close(ctx))
	})

	return board
}

func waitMove(t *testing.T, mv *pipeline.Move) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	return mv.Wait(ctx)
}
