package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const (
	minColumnWidth = 22
	maxCards       = 12
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	focusedCardStyle = cardStyle.BorderForeground(lipgloss.Color("12"))
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func (m Model) View() string {
	stages := m.board.Stages()
	if stages.Len() == 0 {
		return mutedStyle.Render("loading board…") + "\n\n" + m.help.View(m.keys)
	}

	names, groups := m.columns()
	totals := make(map[string]model.StageTotal)
	for _, total := range m.totals() {
		totals[total.Stage] = total
	}

	width := minColumnWidth
	if m.width > 0 {
		width = max(minColumnWidth, m.width/len(names)-1)
	}

	columns := make([]string, len(names))
	for c, name := range names {
		header := lipgloss.NewStyle().
			Width(width).
			Background(lipgloss.Color(stages.Color(name))).
			Foreground(lipgloss.Color(stages.TextColor(name))).
			Render(titleStyle.Render(fmt.Sprintf("%s (%d)", name, totals[name].Count)) + "\n" +
				titleStyle.Render(model.FormatMoney(totals[name].Sum)))

		cards := []string{header}
		for r, it := range groups[name] {
			if r == maxCards {
				cards = append(cards, mutedStyle.Render(fmt.Sprintf("+%d more", len(groups[name])-maxCards)))

				break
			}
			cards = append(cards, m.renderCard(it, width, c == m.col && r == m.row))
		}
		columns[c] = lipgloss.JoinVertical(lipgloss.Left, cards...)
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	b.WriteString("\n")

	switch {
	case m.status != "" && m.statusIsError:
		b.WriteString(errorStyle.Render(m.status))
	case m.status != "":
		b.WriteString(infoStyle.Render(m.status))
	case m.board.InFlight() > 0:
		b.WriteString(mutedStyle.Render(fmt.Sprintf("saving %d move(s)…", m.board.InFlight())))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) renderCard(it model.Item, width int, focused bool) string {
	style := cardStyle
	if focused {
		style = focusedCardStyle
	}

	lines := []string{lipgloss.NewStyle().Bold(true).Render(it.Name)}
	if it.Treatment != "" {
		lines = append(lines, it.Treatment)
	}
	if it.Phone != "" {
		lines = append(lines, mutedStyle.Render(model.FormatPhone(it.Phone)))
	}
	lines = append(lines, model.FormatMoney(it.Value))

	return style.Width(width - 2).Render(strings.Join(lines, "\n"))
}
