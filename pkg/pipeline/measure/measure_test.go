package measure_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/measure"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func TestDefaultMetric(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	mt := m.AddMetric("New->Won")
	assert.Same(t, mt, m.AddMetric("New->Won"))
	assert.Nil(t, m.GetMetric("Won->New"))

	assert.Zero(t, mt.AVGDuration())
	assert.Zero(t, mt.RollbackRatio())

	mt.AddApplied()
	mt.AddApplied()
	mt.AddApplied()
	mt.AddApplied()
	mt.AddSettled(10*time.Millisecond, false)
	mt.AddSettled(20*time.Millisecond, false)
	mt.AddSettled(30*time.Millisecond, true)
	mt.AddSettled(40*time.Millisecond, false)

	assert.EqualValues(t, 4, mt.Applied())
	assert.EqualValues(t, 3, mt.Confirmed())
	assert.EqualValues(t, 1, mt.RolledBack())
	assert.Equal(t, 25*time.Millisecond, mt.AVGDuration())
	assert.InDelta(t, 0.25, mt.RollbackRatio(), 1e-9)
	assert.Len(t, m.AllMetrics(), 1)
}

func TestDefaultMeasureConcurrent(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mt := m.AddMetric("New->Won")
			mt.AddApplied()
			mt.AddSettled(time.Millisecond, false)
		}()
	}
	wg.Wait()

	mt := m.GetMetric("New->Won")
	require.NotNil(t, mt)
	assert.EqualValues(t, 50, mt.Applied())
	assert.EqualValues(t, 50, mt.Confirmed())
}

func TestBoardMeasure(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	obs := measure.BoardMeasure(m)
	require.NoError(t, obs.New())

	reorder := &model.MoveInfo{ID: "r1", FromStage: "New", ToStage: "New", State: model.MoveIdle}
	require.NoError(t, obs.OnMoveApplied(reorder))
	assert.Empty(t, m.AllMetrics())

	move := &model.MoveInfo{ID: "m1", ItemID: "p1", FromStage: "New", ToStage: "Won", State: model.MoveMoving}
	require.NoError(t, obs.OnMoveApplied(move))

	// A rollback of an earlier move rewrites the origin before this one settles.
	settled := *move
	settled.FromStage = "Lost"
	settled.State = model.MoveRolledBack
	require.NoError(t, obs.OnMoveSettled(&settled, 5*time.Millisecond))
	require.NoError(t, obs.Finish())

	mt := m.GetMetric("New->Won")
	require.NotNil(t, mt)
	assert.EqualValues(t, 1, mt.Applied())
	assert.EqualValues(t, 1, mt.RolledBack())
	assert.Equal(t, 5*time.Millisecond, mt.AVGDuration())
	assert.Nil(t, m.GetMetric("Lost->Won"))
}
