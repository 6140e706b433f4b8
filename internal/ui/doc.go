// Package ui styles terminal output for the CLI.
//
// A [Palette] holds the named [lipgloss] styles used by command output. Import task and track
// statuses map to fixed colors so listings read the same across commands.
package ui
