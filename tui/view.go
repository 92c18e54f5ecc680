package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/numberflow/game"
)

const cellWidth = 5

func (m Model) View() string {
	theme := defaultTheme
	board := renderBoard(m.state, theme)
	info := renderInfo(m, theme)
	content := lipgloss.JoinHorizontal(lipgloss.Top, board, info)
	minWidth := lipgloss.Width(board) + 24
	if m.width > 0 && m.width < minWidth {
		content = lipgloss.JoinVertical(lipgloss.Left, board, info)
	}
	return center(m.width, m.height, content)
}

func renderBoard(s *game.RoundState, theme Theme) string {
	border := lipgloss.NewStyle().Foreground(theme.BorderColor)
	centerCell := lipgloss.NewStyle().Background(theme.CenterColor)
	empty := strings.Repeat(" ", cellWidth)
	mid := s.Grid.Center()

	var b strings.Builder
	b.WriteString(border.Render("+" + strings.Repeat("-", s.Grid.Width*cellWidth) + "+"))
	b.WriteString("\n")
	for y := 0; y < s.Grid.Height; y++ {
		b.WriteString(border.Render("|"))
		for x := 0; x < s.Grid.Width; x++ {
			pt := game.Point{X: x, Y: y}
			v, fromPiece := s.ValueAt(pt)
			switch {
			case v != 0:
				style := lipgloss.NewStyle().
					Background(CellColor(v)).
					Foreground(TextColor(v)).
					Width(cellWidth).
					Align(lipgloss.Center)
				if fromPiece {
					style = style.Underline(true)
				} else {
					style = style.Bold(true)
				}
				b.WriteString(style.Render(strconv.Itoa(v)))
			case pt == mid:
				b.WriteString(centerCell.Render(empty))
			default:
				b.WriteString(empty)
			}
		}
		b.WriteString(border.Render("|"))
		b.WriteString("\n")
	}
	b.WriteString(border.Render("+" + strings.Repeat("-", s.Grid.Width*cellWidth) + "+"))
	return b.String()
}

func renderInfo(m Model, theme Theme) string {
	s := m.state
	var b strings.Builder
	pad := lipgloss.NewStyle().PaddingLeft(2)
	line := func(text string) {
		b.WriteString(pad.Render(text))
		b.WriteString("\n")
	}

	line(titleStyle(theme).Render("NumberFlow"))
	b.WriteString("\n")
	line(fmt.Sprintf("Score:   %d", s.Score))
	line(fmt.Sprintf("Highest: %d", s.Highest))
	if m.best > 0 {
		line(fmt.Sprintf("Best:    %d", m.best))
	}
	line(fmt.Sprintf("Speed:   %d (%dms)", s.SpeedLevel, s.TickPace.Milliseconds()))
	line(fmt.Sprintf("Ticks:   %d", s.Ticks))
	b.WriteString("\n")

	switch s.Phase {
	case game.Idle:
		line(titleStyle(theme).Render("Press Enter to start"))
	case game.Paused:
		line(titleStyle(theme).Render("Paused"))
	case game.Won:
		line(lipgloss.NewStyle().Foreground(CellColor(m.engine.Config().Target)).Bold(true).
			Render(fmt.Sprintf("You reached %d!", m.engine.Config().Target)))
		line(helpStyle(theme).Render("Enter: play again"))
	case game.Lost:
		line(warningStyle(theme).Render("Game over"))
		line(helpStyle(theme).Render("Enter: play again"))
	default:
		if m.lastEvent != "" {
			line(titleStyle(theme).Render(m.lastEvent))
		}
	}
	if m.warning != "" {
		line(warningStyle(theme).Render(m.warning))
	}
	b.WriteString("\n")

	keys := []string{
		"W/S: left up/down",
		"D: left forward",
		"E: left rotate",
		"Up/Down: right up/down",
		"Left: right forward",
		"Space: right rotate",
		"P: pause",
		"Q: quit",
	}
	for _, k := range keys {
		line(helpStyle(theme).Render(k))
	}
	return b.String()
}

func center(width, height int, content string) string {
	if width == 0 || height == 0 {
		return content
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
