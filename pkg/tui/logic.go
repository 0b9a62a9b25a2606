package tui

import (
	"fmt"
	"strings"
	"time"

	"tipjar/pkg/controller"
	"tipjar/pkg/models"
	"tipjar/pkg/utils"
	"tipjar/pkg/view"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
)

func listenForEvents(sub controller.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// syncRender re-projects the controller state and refreshes the tip list.
func (m *model) syncRender() {
	m.render = view.Project(m.ctrl.Snapshot(), m.opts)
	m.viewport.SetContent(renderTipList(m.render, m.viewport.Width))
}

func (m *model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusMessage = text
	m.statusIsError = isErr
	return clearStatusAfter(3 * time.Second)
}

func (m model) sendTipCmd() (tea.Cmd, error) {
	amount, err := utils.ParseEther(m.amountInput.Value())
	if err != nil {
		return nil, err
	}
	ctx, ctrl, message := m.ctx, m.ctrl, m.messageInput.Value()
	return func() tea.Msg {
		return writeDoneMsg{kind: models.WriteTip, err: ctrl.SendTip(ctx, message, amount)}
	}, nil
}

func (m model) withdrawCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return writeDoneMsg{kind: models.WriteWithdraw, err: ctrl.Withdraw(ctx)}
	}
}

func (m model) connectCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionDoneMsg{action: "connect", err: ctrl.Connect(ctx)}
	}
}

func (m model) refreshCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return actionDoneMsg{action: "refresh", err: ctrl.Refresh(ctx)}
	}
}

func renderTipList(rm view.RenderModel, width int) string {
	if len(rm.Tips) == 0 {
		return subtleStyle.Render(rm.EmptyText)
	}
	msgWidth := width - 10
	if msgWidth < 20 {
		msgWidth = 60
	}
	var b strings.Builder
	for i, tip := range rm.Tips {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("From:"), tip.From)
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Amount:"), tip.Amount)
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Message:"), utils.TruncateString(tip.Message, msgWidth))
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Date:"), tip.Date)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderChart(rm view.RenderModel, symbol string, width, height int) string {
	series := rm.ChartSeries()
	if len(series) < 2 {
		return "Not enough data to draw graph."
	}
	if width < 10 {
		width = 10
	}
	if height < 3 {
		height = 3
	}
	return asciigraph.Plot(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("Tip amounts (%s), oldest to newest", symbol)),
	)
}
