package tui

import "github.com/charmbracelet/lipgloss"

var palette = map[int]lipgloss.Color{
	2:    "#ffffff",
	4:    "#c0c0c0",
	8:    "#808080",
	16:   "#EEDBE0",
	32:   "#ff8844",
	64:   "#E04426",
	128:  "#228b22",
	256:  "#8b4513",
	512:  "#8844ff",
	1024: "#4b0082",
	2048: "#FFD700",
	4096: "#ff0088",
	8192: "#8800ff",
}

const fallbackColor = lipgloss.Color("#888888")

// CellColor is the background for a cell holding v.
func CellColor(v int) lipgloss.Color {
	if c, ok := palette[v]; ok {
		return c
	}
	return fallbackColor
}

// TextColor picks black on the light backgrounds and white elsewhere.
func TextColor(v int) lipgloss.Color {
	switch v {
	case 2, 4, 16, 2048:
		return lipgloss.Color("#000000")
	default:
		return lipgloss.Color("#ffffff")
	}
}

type Theme struct {
	BorderColor lipgloss.Color
	TextColor   lipgloss.Color
	AccentColor lipgloss.Color
	CenterColor lipgloss.Color
}

var defaultTheme = Theme{
	BorderColor: lipgloss.Color("250"),
	TextColor:   lipgloss.Color("245"),
	AccentColor: lipgloss.Color("220"),
	CenterColor: lipgloss.Color("238"),
}

func titleStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.AccentColor).Bold(true)
}

func helpStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.TextColor)
}

func warningStyle(Theme) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
}
