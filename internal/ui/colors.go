package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/ytplay/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Styles returns the default palette.
func Styles() *Palette { return styles }

// Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// TaskStatus renders an import task status padded to a fixed column width.
func (p *Palette) TaskStatus(s models.TaskStatus) string {
	label := lipgloss.NewStyle().Width(9).Render(s.String())
	switch s {
	case models.TaskRunning:
		return p.ok.Render(label)
	case models.TaskPaused:
		return p.warn.Render(label)
	case models.TaskCancelled:
		return p.err.Render(label)
	default:
		return p.help.Render(label)
	}
}

// TrackStatus renders a single track marker: ✓ found, ✗ not found, … otherwise.
func (p *Palette) TrackStatus(s models.TrackStatus) string {
	switch s {
	case models.TrackFound:
		return p.ok.Render("✓")
	case models.TrackNotFound:
		return p.err.Render("✗")
	default:
		return p.help.Render("…")
	}
}
