package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/clinic-pipeline/internal/store/memstore"
	"github.com/askiada/clinic-pipeline/pkg/access"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func newTestModel(t *testing.T, opts ...Option) (Model, *pipeline.Board, *memstore.Store) {
	t.Helper()

	s := memstore.New(
		memstore.WithStages(model.Stage{Name: "New", Order: 0}, model.Stage{Name: "Won", Order: 1}),
		memstore.WithItems(
			model.Item{ID: "p1", Name: "Ana", Stage: "New", Value: decimal.NewFromInt(100), UserID: "dr-lima"},
			model.Item{ID: "p2", Name: "Bruno", Stage: "New", Value: decimal.NewFromInt(50), UserID: "dr-rocha"},
			model.Item{ID: "p3", Name: "Carla", Stage: "Won", Value: decimal.NewFromInt(200), UserID: "dr-lima"},
		),
	)

	board, err := pipeline.New(s)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, board.Close(ctx))
	})

	m := New(context.Background(), board, opts...)
	next, _ := m.Update(m.Init()())

	return next.(Model), board, s
}

func press(t *testing.T, m Model, r rune) (Model, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})

	return next.(Model), cmd
}

// run presses r and delivers the resulting message, as the program would. Only for keys whose
// command returns right away.
func run(t *testing.T, m Model, r rune) Model {
	t.Helper()

	m, cmd := press(t, m, r)
	if cmd == nil {
		return m
	}
	next, _ := m.Update(cmd())

	return next.(Model)
}

func placement(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID + "@" + it.Stage
	}

	return out
}

func TestModelMoveAcrossStages(t *testing.T) {
	t.Parallel()

	m, board, _ := newTestModel(t)
	assert.Equal(t, 0, m.col)
	assert.Equal(t, 0, m.row)

	m = run(t, m, 'L')
	assert.Equal(t, []string{"p2@New", "p3@Won", "p1@Won"}, placement(board.Displayed()))
	assert.Equal(t, 1, m.col)
	assert.Equal(t, 1, m.row)

	m = run(t, m, 'K')
	assert.Equal(t, []string{"p2@New", "p1@Won", "p3@Won"}, placement(board.Displayed()))
	assert.Equal(t, 0, m.row)

	m = run(t, m, 'H')
	assert.Equal(t, []string{"p2@New", "p1@New", "p3@Won"}, placement(board.Displayed()))
	assert.Equal(t, 0, m.col)
	assert.Equal(t, 1, m.row)

	// no stage before the first one
	m = run(t, m, 'H')
	assert.Equal(t, []string{"p2@New", "p1@New", "p3@Won"}, placement(board.Displayed()))
	assert.Equal(t, 0, m.col)
	totals := board.Totals()
	assert.Equal(t, "150", totals[0].Sum.String())
	assert.Equal(t, "200", totals[1].Sum.String())
}

func TestModelRollback(t *testing.T) {
	t.Parallel()

	m, board, s := newTestModel(t)
	s.FailWith(func(string, string) error { return assert.AnError })

	m = run(t, m, 'L')
	assert.Equal(t, []string{"p1@New", "p2@New", "p3@Won"}, placement(board.Displayed()))
	assert.Equal(t, 0, m.col)
	assert.Equal(t, 0, m.row)

	next, cmd := m.Update(NotificationMsg{Action: "move item", Message: "could not move item"})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "could not move item")

	next, _ = m.Update(clearStatusMsg{seq: m.statusSeq})
	m = next.(Model)
	assert.NotContains(t, m.View(), "could not move item")
}

func TestModelNavigation(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)

	m, _ = press(t, m, 'j')
	assert.Equal(t, 1, m.row)
	m, _ = press(t, m, 'j')
	assert.Equal(t, 1, m.row)
	m, _ = press(t, m, 'l')
	assert.Equal(t, 1, m.col)
	assert.Equal(t, 0, m.row)
	m, _ = press(t, m, 'l')
	assert.Equal(t, 1, m.col)
	m, _ = press(t, m, 'h')
	assert.Equal(t, 0, m.col)

	m, _ = press(t, m, '?')
	assert.True(t, m.help.ShowAll)

	_, cmd := press(t, m, 'q')
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelForbiddenMove(t *testing.T) {
	t.Parallel()

	m, board, _ := newTestModel(t, WithMember(access.Member{UserID: "dr-lima"}))

	m, cmd := press(t, m, 'L')
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"p1@New", "p2@New", "p3@Won"}, placement(board.Displayed()))
	assert.Contains(t, m.View(), "not allowed")
}

func TestModelView(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := next.(Model).View()

	assert.Contains(t, view, "New (2)")
	assert.Contains(t, view, "Won (1)")
	assert.Contains(t, view, "R$ 150,00")
	assert.Contains(t, view, "Ana")
}

func TestModelDoctorSeesOwnPatients(t *testing.T) {
	t.Parallel()

	m, board, _ := newTestModel(t, WithMember(access.Member{UserID: "dr-lima", Role: access.Doctor}))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "New (1)")
	assert.Contains(t, view, "R$ 100,00")
	assert.NotContains(t, view, "Bruno")

	// the only card below Ana in New is not visible
	m, cmd := press(t, m, 'J')
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"p1@New", "p2@New", "p3@Won"}, placement(board.Displayed()))

	m = run(t, m, 'L')
	assert.Equal(t, []string{"p2@New", "p3@Won", "p1@Won"}, placement(board.Displayed()))
	assert.Equal(t, 1, m.col)
	assert.Equal(t, 1, m.row)
	assert.Contains(t, m.View(), "New (0)")
}

func TestModelRefreshTick(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestModel(t)
	_, cmd := m.Update(tickMsg{})
	assert.Nil(t, cmd)

	m, board, s := newTestModel(t, WithRefreshInterval(time.Hour))
	_, cmd = m.Update(tickMsg{})
	assert.NotNil(t, cmd)

	_, err := s.CreateItem(context.Background(), model.Item{Name: "Duda", Stage: "Won"})
	require.NoError(t, err)
	m.Update(m.refresh()())
	assert.Len(t, board.Displayed(), 4)
}

func TestProgramNotifierWithoutProgram(t *testing.T) {
	t.Parallel()

	n := &ProgramNotifier{}
	assert.NotPanics(t, func() {
		n.Notify(pipeline.Notification{Message: "could not move item"})
	})
}
