package tui

import (
	"github.com/atotto/clipboard"
)

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

func (m model) copyAccount() (string, bool) {
	if !m.render.Connected {
		return "No account to copy", true
	}
	if err := writeClipboard(m.render.Account); err != nil {
		return "Failed to copy to clipboard", true
	}
	return "Full address copied to clipboard!", false
}

func (m model) inputFocused() bool {
	return m.focus != focusNone
}

func (m *model) setFocus(f int) {
	m.focus = f
	m.messageInput.Blur()
	m.amountInput.Blur()
	switch f {
	case focusMessage:
		m.messageInput.Focus()
	case focusAmount:
		m.amountInput.Focus()
	}
}
