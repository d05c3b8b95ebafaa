package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// TextField is a minimal single-line input. Masked fields echo asterisks.
type TextField struct {
	Label       string
	Placeholder string
	Masked      bool
	value       []rune
	focused     bool
}

// NewTextField builds a field with a label.
func NewTextField(label, placeholder string) *TextField {
	return &TextField{Label: label, Placeholder: placeholder}
}

// Focus gives the field keyboard input.
func (f *TextField) Focus() { f.focused = true }

// Blur removes keyboard focus.
func (f *TextField) Blur() { f.focused = false }

// Focused reports whether the field has focus.
func (f *TextField) Focused() bool { return f.focused }

// Value returns the current text.
func (f *TextField) Value() string { return string(f.value) }

// SetValue replaces the current text.
func (f *TextField) SetValue(v string) { f.value = []rune(v) }

// Reset clears the field.
func (f *TextField) Reset() { f.value = nil }

// Update consumes key events while focused.
func (f *TextField) Update(msg tea.KeyMsg) {
	if !f.focused {
		return
	}
	switch msg.Type {
	case tea.KeyBackspace:
		if len(f.value) > 0 {
			f.value = f.value[:len(f.value)-1]
		}
	case tea.KeySpace:
		f.value = append(f.value, ' ')
	case tea.KeyRunes:
		f.value = append(f.value, msg.Runes...)
	}
}

// View renders the field with its label.
func (f *TextField) View() string {
	text := string(f.value)
	if f.Masked {
		text = strings.Repeat("*", len(f.value))
	}
	if text == "" && f.Placeholder != "" {
		text = dimStyle.Render(f.Placeholder)
	}
	cursor := " "
	label := labelStyle.Render(f.Label + ": ")
	if f.focused {
		cursor = focusedStyle.Render("█")
		label = focusedStyle.Render(f.Label + ": ")
	}
	return label + text + cursor
}
