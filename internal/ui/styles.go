package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/orcadeck/orca/internal/attention"
)

// Theme is the active color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type palette struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red, Comment                lipgloss.Color
}

// Tokyo Night
var darkPalette = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
	Comment: lipgloss.Color("#787fa0"),
}

// Tokyo Night Light
var lightPalette = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
	Comment: lipgloss.Color("#6a6d7c"),
}

var (
	themeMu      sync.RWMutex
	currentTheme = ThemeDark
	colors       = darkPalette
)

var (
	TitleStyle       lipgloss.Style
	DimStyle         lipgloss.Style
	ErrorStyle       lipgloss.Style
	GroupNameStyle   lipgloss.Style
	GroupCountStyle  lipgloss.Style
	SessionTitle     lipgloss.Style
	SelectedRowStyle lipgloss.Style
	FilterPrompt     lipgloss.Style
	HelpKeyStyle     lipgloss.Style
	HelpDescStyle    lipgloss.Style

	badgeStyles map[attention.Status]lipgloss.Style
)

// InitTheme switches palettes. Anything other than "light" is dark.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme, colors = ThemeLight, lightPalette
	} else {
		currentTheme, colors = ThemeDark, darkPalette
	}
	initStyles()
}

// CurrentTheme returns the active theme.
func CurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

func initStyles() {
	TitleStyle = lipgloss.NewStyle().Foreground(colors.Accent).Bold(true)
	DimStyle = lipgloss.NewStyle().Foreground(colors.TextDim)
	ErrorStyle = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)
	GroupNameStyle = lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true)
	GroupCountStyle = lipgloss.NewStyle().Foreground(colors.Comment)
	SessionTitle = lipgloss.NewStyle().Foreground(colors.Text)
	SelectedRowStyle = lipgloss.NewStyle().Foreground(colors.Bg).Background(colors.Accent).Bold(true)
	FilterPrompt = lipgloss.NewStyle().Foreground(colors.Purple).Bold(true)
	HelpKeyStyle = lipgloss.NewStyle().Foreground(colors.Accent).Bold(true)
	HelpDescStyle = lipgloss.NewStyle().Foreground(colors.Comment)

	badgeStyles = map[attention.Status]lipgloss.Style{
		attention.NeedsInput: lipgloss.NewStyle().Foreground(colors.Bg).Background(colors.Yellow).Bold(true),
		attention.Error:      lipgloss.NewStyle().Foreground(colors.Bg).Background(colors.Red).Bold(true),
		attention.Running:    lipgloss.NewStyle().Foreground(colors.Green),
		attention.Idle:       lipgloss.NewStyle().Foreground(colors.TextDim),
		attention.Stale:      lipgloss.NewStyle().Foreground(colors.Orange),
		attention.Unknown:    lipgloss.NewStyle().Foreground(colors.Purple),
	}
}

// statusIcon is the glyph shown before each session.
func statusIcon(st attention.Status) string {
	switch st {
	case attention.NeedsInput:
		return "◐"
	case attention.Error:
		return "✕"
	case attention.Running:
		return "●"
	case attention.Idle:
		return "○"
	case attention.Stale:
		return "◌"
	}
	return "?"
}

// StatusBadge renders a colored attention label.
func StatusBadge(st attention.Status) string {
	themeMu.RLock()
	style, ok := badgeStyles[st]
	themeMu.RUnlock()
	if !ok {
		style = badgeStyles[attention.Unknown]
	}
	return style.Render(" " + statusIcon(st) + " " + st.Label() + " ")
}
