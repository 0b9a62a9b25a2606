package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	codeUserRejected   = 4001
	codeUnauthorized   = 4100
	codeMethodNotFound = -32601
)

var errUserRejected = errors.New("user rejected the request")

// Provider is the wallet capability: it authorizes accounts, signs
// transactions and reports changes of the authorized account set.
type Provider interface {
	// RequestAccounts may prompt the user (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts never prompts (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	// SubscribeAccounts delivers the new account list on every change (accountsChanged).
	SubscribeAccounts(ch chan<- []common.Address) event.Subscription
	SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// AccountSwitcher is implemented by providers whose account can be changed
// from inside the application.
type AccountSwitcher interface {
	Next()
	Disconnect()
}

func isUserRejection(err error) bool {
	if errors.Is(err, errUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		return code == codeUserRejected || code == codeUnauthorized
	}
	return false
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
