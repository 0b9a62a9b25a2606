package tui

import (
	"errors"
	"fmt"

	"tipjar/pkg/controller"
	"tipjar/pkg/models"

	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 8
		h := msg.Height - 22
		if h < 3 {
			h = 3
		}
		m.viewport.Height = h
		m.syncRender()

	case controller.Event:
		// Keep listening on the same subscription.
		cmds = append(cmds, listenForEvents(m.sub))
		m.syncRender()
		if msg.Type == controller.EventNotice {
			if n, ok := msg.Data.(models.Notice); ok {
				cmds = append(cmds, m.setStatus(n.Text, n.Level == "error"))
			}
		}

	case writeDoneMsg:
		m.syncRender()
		if msg.err == nil && msg.kind == models.WriteTip {
			m.messageInput.SetValue("")
		}

	case actionDoneMsg:
		m.syncRender()
		if msg.err != nil && msg.action == "refresh" && !errors.Is(msg.err, models.ErrNotConnected) {
			cmds = append(cmds, m.setStatus(fmt.Sprintf("Refresh failed: %v", msg.err), true))
		}

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false

	case tea.KeyMsg:
		if m.showHelp {
			switch msg.String() {
			case "q", "esc", "?":
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.setFocus((m.focus + 1) % 3)
			return m, nil
		case "shift+tab":
			m.setFocus((m.focus + 2) % 3)
			return m, nil
		case "esc":
			m.setFocus(focusNone)
			return m, nil
		case "enter":
			if !m.render.Connected {
				cmd := m.setStatus("Connect your wallet to interact.", true)
				return m, cmd
			}
			cmd, err := m.sendTipCmd()
			if err != nil {
				cmd = m.setStatus(fmt.Sprintf("Invalid amount: %v", err), true)
			}
			return m, cmd
		}

		if m.inputFocused() {
			var cmd tea.Cmd
			if m.focus == focusMessage {
				m.messageInput, cmd = m.messageInput.Update(msg)
			} else {
				m.amountInput, cmd = m.amountInput.Update(msg)
			}
			return m, cmd
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "?":
			m.showHelp = true
		case "c":
			if m.render.Connected {
				cmds = append(cmds, m.setStatus("Wallet already connected", false))
			} else {
				cmds = append(cmds, m.connectCmd())
			}
		case "w":
			if !m.render.Connected {
				cmds = append(cmds, m.setStatus("Connect your wallet to interact.", true))
			} else {
				cmds = append(cmds, m.withdrawCmd())
			}
		case "r":
			cmds = append(cmds, m.refreshCmd(), m.setStatus("Refreshing data...", false))
		case "g":
			m.showChart = !m.showChart
		case "y":
			text, isErr := m.copyAccount()
			cmds = append(cmds, m.setStatus(text, isErr))
		case "n":
			if m.switcher == nil {
				cmds = append(cmds, m.setStatus("Account switching needs dev_keys", true))
			} else {
				m.switcher.Next()
			}
		case "x":
			if m.switcher == nil {
				cmds = append(cmds, m.setStatus("Disconnect from within your wallet", true))
			} else {
				m.switcher.Disconnect()
			}
		case "up", "k", "down", "j", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}
