package tui

import (
	"fmt"
	"strings"

	"tipjar/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	rm := m.render
	targetWidth := m.width - 4
	if targetWidth < 40 {
		targetWidth = 40
	}

	header := titleStyle.Render("TipJar")
	if rm.IsOwner {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, " ", ownerBadgeStyle.Render("owner"))
	}

	balance := fmt.Sprintf("%s %s", labelStyle.Render("Contract balance:"), balanceStyle.Render(rm.Balance))
	account := fmt.Sprintf("%s %s", labelStyle.Render("Connected account:"), rm.AccountLabel)

	connStyle := subtleStyle
	if rm.Connected {
		connStyle = infoStyle
	}
	spinnerView := ""
	if rm.Phase == models.PhaseConnecting {
		spinnerView = m.spinner.View() + " "
	}
	connection := spinnerView + connStyle.Render(rm.ConnectionText)

	form := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("%-10s %s", "Message:", m.messageInput.View()),
		fmt.Sprintf("%-10s %s", "Amount:", m.amountInput.View()+" "+m.opts.Symbol),
	)

	sendBtn, withdrawBtn := sendButtonStyle, withdrawButtonStyle
	if !rm.CanWrite {
		sendBtn, withdrawBtn = disabledButtonStyle, disabledButtonStyle
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		sendBtn.Render("[enter] "+rm.SendLabel),
		"  ",
		withdrawBtn.Render("[w] "+rm.WithdrawLabel),
	)

	var processing string
	if rm.Submitting {
		processing = m.spinner.View() + " " + rm.ProcessingText
	}

	tipsHeader := titleStyle.Render(fmt.Sprintf("Tips received (%d)", len(rm.Tips)))
	var tips string
	if m.showChart {
		tips = renderChart(rm, m.opts.Symbol, targetWidth-12, m.viewport.Height)
	} else if m.viewport.Height > 0 {
		tips = m.viewport.View()
	} else {
		tips = renderTipList(rm, targetWidth)
	}

	parts := []string{header, "", balance, account, connection, "", form, "", buttons}
	if processing != "" {
		parts = append(parts, "", processing)
	}
	parts = append(parts, "", tipsHeader, tips)
	content := boxStyle.Width(targetWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))

	line1 := "c:connect • tab:input • enter:send • w:withdraw • r:refresh • g:graph • y:copy • ?:help • q:quit"
	if m.switcher != nil {
		line1 = "n:next acct • x:disconnect • " + line1
	}
	line1 += fmt.Sprintf(" • v%s", Version)

	var footer string
	if m.width > 0 {
		footer = subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line1)
	} else {
		footer = subtleStyle.Render(line1)
	}
	if m.statusMessage != "" {
		style := infoStyle
		if m.statusIsError {
			style = errStyle
		}
		footer = lipgloss.JoinVertical(lipgloss.Center, style.Render(m.statusMessage), footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, content, footer)
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"c: Connect Wallet",
		"tab/S-tab: Focus Message/Amount",
		"esc: Leave Input",
		"enter: Send Tip",
		"w: Withdraw Funds (owner)",
		"r: Refresh Data",
		"g: Toggle Tip Graph",
		"↑/k ↓/j: Scroll Tips",
		"y: Copy Account",
	}
	if m.switcher != nil {
		shortcuts = append(shortcuts, "n: Next Dev Account", "x: Disconnect Dev Wallet")
	}
	shortcuts = append(shortcuts, "q: Quit", "?: Toggle Help")

	header := titleStyle.Render("Help: Main View")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
