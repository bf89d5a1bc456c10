// Package memstore is an in-memory board store, used by tests and demos.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// FailFunc decides whether an update of item id to stage fails.
type FailFunc func(id, stage string) error

type Store struct {
	lock    sync.RWMutex
	items   []model.Item
	stages  []model.Stage
	failFn  FailFunc
	latency time.Duration
	now     func() time.Time
}

type Option func(s *Store)

// WithLatency delays every call by d, or until the context is done.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// WithStages adds stages. Stages without an id get one.
func WithStages(stages ...model.Stage) Option {
	return func(s *Store) {
		for _, st := range stages {
			if st.ID == "" {
				st.ID = uuid.NewString()
			}
			s.stages = append(s.stages, st)
		}
	}
}

// WithItems adds items. Items are listed newest first, like the remote store does.
func WithItems(items ...model.Item) Option {
	return func(s *Store) {
		s.items = append(s.items, items...)
	}
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FailWith makes updates fail when fn returns an error. A nil fn lets every update succeed.
func (s *Store) FailWith(fn FailFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failFn = fn
}

func (s *Store) FetchItems(ctx context.Context) ([]model.Item, error) {
	err := s.wait(ctx)
	if err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	return model.CloneItems(s.items), nil
}

func (s *Store) FetchStages(ctx context.Context) ([]model.Stage, error) {
	err := s.wait(ctx)
	if err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	return slices.Clone(s.stages), nil
}

func (s *Store) UpdateItemStage(ctx context.Context, id, stage string) error {
	err := s.wait(ctx)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.failFn != nil {
		err = s.failFn(id, stage)
		if err != nil {
			return err
		}
	}

	if !s.hasStage(stage) {
		return errors.Wrapf(store.ErrUnknownStage, "stage %q", stage)
	}

	i := model.IndexOf(s.items, id)
	if i < 0 {
		return errors.Wrapf(store.ErrNotFound, "item %q", id)
	}
	s.items[i].Stage = stage

	return nil
}

// CreateStage adds a stage. A stage without order goes after the existing ones.
func (s *Store) CreateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	err := s.wait(ctx)
	if err != nil {
		return model.Stage{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.hasStage(stage.Name) {
		return model.Stage{}, errors.Wrapf(store.ErrStageExists, "stage %q", stage.Name)
	}
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	if stage.Order == 0 {
		stage.Order = len(s.stages)
	}
	s.stages = append(s.stages, stage)

	return stage, nil
}

// CreateItem adds an item at the top of the list.
func (s *Store) CreateItem(ctx context.Context, item model.Item) (model.Item, error) {
	err := s.wait(ctx)
	if err != nil {
		return model.Item{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.hasStage(item.Stage) {
		return model.Item{}, errors.Wrapf(store.ErrUnknownStage, "stage %q", item.Stage)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.items = slices.Insert(s.items, 0, item)

	return item, nil
}

func (s *Store) UpdateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	err := s.wait(ctx)
	if err != nil {
		return model.Stage{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.stageIndex(stage.ID)
	if i < 0 {
		return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", stage.ID)
	}

	current := s.stages[i]
	if stage.Name != "" && stage.Name != current.Name {
		if s.hasStage(stage.Name) {
			return model.Stage{}, errors.Wrapf(store.ErrStageExists, "stage %q", stage.Name)
		}
		for j := range s.items {
			if s.items[j].Stage == current.Name {
				s.items[j].Stage = stage.Name
			}
		}
		current.Name = stage.Name
	}
	if stage.Color != "" {
		current.Color = stage.Color
	}
	s.stages[i] = current

	return current, nil
}

func (s *Store) ReorderStages(ctx context.Context, ids []string) error {
	err := s.wait(ctx)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for _, id := range ids {
		if s.stageIndex(id) < 0 {
			return errors.Wrapf(store.ErrNotFound, "stage %q", id)
		}
	}
	for order, id := range ids {
		s.stages[s.stageIndex(id)].Order = order
	}

	return nil
}

func (s *Store) DeleteStage(ctx context.Context, id string) error {
	err := s.wait(ctx)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.stageIndex(id)
	if i < 0 {
		return errors.Wrapf(store.ErrNotFound, "stage %q", id)
	}

	name := s.stages[i].Name
	if slices.ContainsFunc(s.items, func(it model.Item) bool { return it.Stage == name }) {
		return errors.Wrapf(store.ErrStageInUse, "stage %q", name)
	}
	s.stages = slices.Delete(s.stages, i, i+1)

	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) stageIndex(id string) int {
	return slices.IndexFunc(s.stages, func(st model.Stage) bool { return st.ID == id })
}

func (s *Store) hasStage(name string) bool {
	return slices.ContainsFunc(s.stages, func(st model.Stage) bool { return st.Name == name })
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return errors.Wrap(ctx.Err(), "memory store")
	}

	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "memory store")
	case <-timer.C:
		return nil
	}
}

var _ store.Backend = (*Store)(nil)
