package tui

import (
	"context"
	"fmt"

	"tipjar/pkg/view"
	"tipjar/pkg/wallet"

	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	View       view.Options
	DefaultTip string
	// Switcher is set when the wallet is backed by local dev keys.
	Switcher wallet.AccountSwitcher
	Version  string
}

func Start(ctx context.Context, ctrl Controller, opts Options) error {
	if opts.Version != "" {
		Version = opts.Version
	}
	m := initialModel(ctx, ctrl, opts)
	defer ctrl.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}
