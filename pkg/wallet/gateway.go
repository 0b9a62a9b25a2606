package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway wraps the wallet capability and translates its failures into the
// application's error taxonomy. A Gateway without a provider reports
// ErrWalletUnavailable from every call.
type Gateway struct {
	provider Provider
	logger   *slog.Logger
}

func NewGateway(p Provider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, logger: logger}
}

// Available reports whether a wallet capability is present.
func (g *Gateway) Available() bool {
	return g.provider != nil
}

// Provider returns the wrapped capability, or nil.
func (g *Gateway) Provider() Provider {
	return g.provider
}

// RequestConnection prompts for account access and returns the first authorized account.
func (g *Gateway) RequestConnection(ctx context.Context) (common.Address, error) {
	if g.provider == nil {
		return common.Address{}, models.ErrWalletUnavailable
	}
	accounts, err := g.provider.RequestAccounts(ctx)
	if err != nil {
		if isUserRejection(err) {
			return common.Address{}, fmt.Errorf("%w: %v", models.ErrConnectionRejected, err)
		}
		return common.Address{}, fmt.Errorf("%w: %v", models.ErrWalletUnavailable, err)
	}
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("%w: wallet returned no accounts", models.ErrConnectionRejected)
	}
	g.logger.Info("wallet connected", "account", accounts[0].Hex())
	return accounts[0], nil
}

// CurrentAccounts returns the authorized accounts without prompting; may be empty.
func (g *Gateway) CurrentAccounts(ctx context.Context) ([]common.Address, error) {
	if g.provider == nil {
		return nil, models.ErrWalletUnavailable
	}
	accounts, err := g.provider.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrWalletUnavailable, err)
	}
	return accounts, nil
}

// SubscribeAccountChange calls handler, in emission order, on every change of
// the authorized account set. The returned func unsubscribes and waits for
// any running handler to return, so it must not be called from the handler.
func (g *Gateway) SubscribeAccountChange(handler func([]common.Address)) func() {
	if g.provider == nil {
		return func() {}
	}
	ch := make(chan []common.Address, 16)
	sub := g.provider.SubscribeAccounts(ch)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case accounts := <-ch:
				handler(accounts)
			case <-sub.Err():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			<-done
		})
	}
}

// SignTransaction lets the Gateway act as the signer for contract writes.
func (g *Gateway) SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if g.provider == nil {
		return nil, models.ErrWalletUnavailable
	}
	signed, err := g.provider.SignTransaction(ctx, from, tx, chainID)
	if err != nil {
		if isUserRejection(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrTransactionRejected, err)
		}
		return nil, fmt.Errorf("%w: sign: %v", models.ErrChainWrite, err)
	}
	return signed, nil
}
