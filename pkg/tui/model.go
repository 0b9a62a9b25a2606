package tui

import (
	"context"
	"math/big"

	"tipjar/pkg/controller"
	"tipjar/pkg/models"
	"tipjar/pkg/view"
	"tipjar/pkg/wallet"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// Controller is what the terminal front-end drives.
type Controller interface {
	Snapshot() models.State
	Subscribe() controller.Subscriber
	Unsubscribe(controller.Subscriber)
	Connect(ctx context.Context) error
	Refresh(ctx context.Context) error
	SendTip(ctx context.Context, message string, amount *big.Int) error
	Withdraw(ctx context.Context) error
}

// --- Messages ---

type clearStatusMsg struct{}

type writeDoneMsg struct {
	kind models.WriteKind
	err  error
}

type actionDoneMsg struct {
	action string
	err    error
}

// --- Model ---

const (
	focusNone = iota
	focusMessage
	focusAmount
)

type model struct {
	ctx      context.Context
	ctrl     Controller
	sub      controller.Subscriber
	switcher wallet.AccountSwitcher
	opts     view.Options

	render        view.RenderModel
	width         int
	height        int
	spinner       spinner.Model
	messageInput  textinput.Model
	amountInput   textinput.Model
	focus         int
	viewport      viewport.Model
	showChart     bool
	showHelp      bool
	statusMessage string
	statusIsError bool
}

func initialModel(ctx context.Context, ctrl Controller, opts Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	mi := textinput.New()
	mi.Placeholder = "Your message"
	mi.CharLimit = 280
	mi.Width = 40

	ai := textinput.New()
	ai.Placeholder = "0.01"
	ai.Width = 20
	defaultTip := opts.DefaultTip
	if defaultTip == "" {
		defaultTip = "0.01"
	}
	ai.SetValue(defaultTip)

	m := model{
		ctx:          ctx,
		ctrl:         ctrl,
		sub:          ctrl.Subscribe(),
		switcher:     opts.Switcher,
		opts:         opts.View,
		spinner:      s,
		messageInput: mi,
		amountInput:  ai,
		viewport:     viewport.New(0, 0),
	}
	m.syncRender()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForEvents(m.sub),
		m.spinner.Tick,
	)
}
