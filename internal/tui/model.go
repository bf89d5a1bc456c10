// Package tui is the terminal kanban of the clinic board.
package tui

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/askiada/clinic-pipeline/pkg/access"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const statusTTL = 4 * time.Second

// Board is what the terminal board needs from the pipeline.
type Board interface {
	Displayed() []model.Item
	Stages() *pipeline.StageSet
	Totals() []model.StageTotal
	InFlight() int
	ApplyMove(itemID, targetStage string, targetIndex int) (*pipeline.Move, error)
	Refresh(ctx context.Context) error
}

// NotificationMsg carries a board notification into the program, see Notifier.
type NotificationMsg pipeline.Notification

type refreshedMsg struct{ err error }

type settledMsg struct {
	itemID string
	err    error
}

type clearStatusMsg struct{ seq int }

type tickMsg struct{}

type Model struct {
	ctx    context.Context
	board  Board
	member access.Member
	keys   keyMap
	help   help.Model

	col, row      int
	status        string
	statusIsError bool
	statusSeq     int
	width         int
	height        int
	interval      time.Duration
}

type Option func(m *Model)

// WithRefreshInterval reloads the board from the store every d.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		m.interval = d
	}
}

// WithMember restricts what the user can do and see to the permissions of member.
func WithMember(member access.Member) Option {
	return func(m *Model) {
		m.member = member
	}
}

func New(ctx context.Context, board Board, opts ...Option) Model {
	m := Model{
		ctx:    ctx,
		board:  board,
		member: access.Member{Role: access.Receptionist},
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// ProgramNotifier forwards board notifications to a program. The board is built before the program,
// so the program is attached later; notifications raised before that are dropped.
type ProgramNotifier struct {
	program atomic.Pointer[tea.Program]
}

func (n *ProgramNotifier) Attach(p *tea.Program) {
	n.program.Store(p)
}

func (n *ProgramNotifier) Notify(notification pipeline.Notification) {
	if p := n.program.Load(); p != nil {
		p.Send(NotificationMsg(notification))
	}
}

func (m Model) Init() tea.Cmd {
	if m.interval > 0 {
		return tea.Batch(m.refresh(), m.tick())
	}

	return m.refresh()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		return m, nil
	case NotificationMsg:
		return m.setStatus(msg.Message, true)
	case refreshedMsg:
		m.clampFocus()
		if msg.err != nil {
			return m.setStatus("could not refresh the board", true)
		}

		return m, nil
	case settledMsg:
		m.focus(msg.itemID)

		return m, nil
	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())
	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusIsError = false
		}

		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.Left):
		m.col--
		m.row = 0
		m.clampFocus()
	case key.Matches(msg, m.keys.Right):
		m.col++
		m.row = 0
		m.clampFocus()
	case key.Matches(msg, m.keys.Up):
		m.row--
		m.clampFocus()
	case key.Matches(msg, m.keys.Down):
		m.row++
		m.clampFocus()
	case key.Matches(msg, m.keys.MovePrev):
		return m.moveAcross(-1)
	case key.Matches(msg, m.keys.MoveNext):
		return m.moveAcross(1)
	case key.Matches(msg, m.keys.MoveUp):
		return m.moveWithin(-1)
	case key.Matches(msg, m.keys.MoveDown):
		return m.moveWithin(1)
	}

	return m, nil
}

// moveAcross moves the focused card to the end of the neighbouring stage.
func (m Model) moveAcross(dir int) (tea.Model, tea.Cmd) {
	current, ok := m.focused()
	if !ok {
		return m, nil
	}

	stages := m.board.Stages()
	var (
		target string
		found  bool
	)
	if dir < 0 {
		target, found = stages.Prev(current.Stage)
	} else {
		target, found = stages.Next(current.Stage)
	}
	if !found {
		return m, nil
	}

	return m.apply(current.ID, target, pipeline.EndOfStage(m.board.Displayed(), current.ID, target))
}

// moveWithin swaps the focused card with its visible neighbour in the same stage.
func (m Model) moveWithin(dir int) (tea.Model, tea.Cmd) {
	current, ok := m.focused()
	if !ok {
		return m, nil
	}

	items := m.board.Displayed()
	from := model.IndexOf(items, current.ID)
	for i := from + dir; i >= 0 && i < len(items); i += dir {
		if items[i].Stage == current.Stage && m.member.CanSee(items[i]) {
			return m.apply(current.ID, current.Stage, i)
		}
	}

	return m, nil
}

func (m Model) apply(itemID, stage string, index int) (tea.Model, tea.Cmd) {
	if !m.member.CanMoveItems() {
		return m.setStatus("you are not allowed to move patients", true)
	}

	mv, err := m.board.ApplyMove(itemID, stage, index)
	if err != nil {
		return m.setStatus(errors.Cause(err).Error(), true)
	}
	m.focus(itemID)

	if mv.Noop() {
		return m, nil
	}

	ctx := m.ctx

	return m, func() tea.Msg {
		return settledMsg{itemID: itemID, err: mv.Wait(ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	ctx, board := m.ctx, m.board

	return func() tea.Msg {
		return refreshedMsg{err: board.Refresh(ctx)}
	}
}

func (m Model) tick() tea.Cmd {
	if m.interval <= 0 {
		return nil
	}

	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) setStatus(status string, isError bool) (tea.Model, tea.Cmd) {
	m.statusSeq++
	m.status = status
	m.statusIsError = isError
	seq := m.statusSeq

	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

// columns returns the stage names and the cards of each stage the member sees.
func (m Model) columns() ([]string, map[string][]model.Item) {
	names := m.board.Stages().Names()

	return names, pipeline.GroupByStage(m.member.Visible(m.board.Displayed()), names)
}

func (m Model) totals() []model.StageTotal {
	if m.member.CanViewAllPatients() {
		return m.board.Totals()
	}

	return pipeline.ComputeStageTotals(m.member.Visible(m.board.Displayed()), m.board.Stages().Names())
}

func (m Model) focused() (model.Item, bool) {
	names, groups := m.columns()
	if m.col < 0 || m.col >= len(names) {
		return model.Item{}, false
	}
	cards := groups[names[m.col]]
	if m.row < 0 || m.row >= len(cards) {
		return model.Item{}, false
	}

	return cards[m.row], true
}

// focus puts the cursor on itemID wherever it is now.
func (m *Model) focus(itemID string) {
	names, groups := m.columns()
	for c, name := range names {
		for r, it := range groups[name] {
			if it.ID == itemID {
				m.col, m.row = c, r

				return
			}
		}
	}
	m.clampFocus()
}

func (m *Model) clampFocus() {
	names, groups := m.columns()
	if len(names) == 0 {
		m.col, m.row = 0, 0

		return
	}
	m.col = min(max(m.col, 0), len(names)-1)

	cards := groups[names[m.col]]
	if len(cards) == 0 {
		m.row = 0

		return
	}
	m.row = min(max(m.row, 0), len(cards)-1)
}
