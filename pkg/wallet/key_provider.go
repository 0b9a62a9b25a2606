package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

// KeyProvider is a development wallet holding raw private keys. At most one
// key is authorized at a time; Next and Disconnect emit account changes.
type KeyProvider struct {
	mu     sync.Mutex
	keys   []*ecdsa.PrivateKey
	addrs  []common.Address
	active int // -1 when nothing is authorized
	feed   event.Feed
}

// NewKeyProvider parses hex-encoded private keys (with or without 0x).
func NewKeyProvider(hexKeys []string) (*KeyProvider, error) {
	p := &KeyProvider{active: -1}
	for i, k := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
		if err != nil {
			return nil, fmt.Errorf("dev key %d: %w", i, err)
		}
		p.keys = append(p.keys, key)
		p.addrs = append(p.addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	return p, nil
}

// RequestAccounts auto-approves the first key.
func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return nil, errUserRejected
	}
	if p.active < 0 {
		p.active = 0
	}
	return []common.Address{p.addrs[p.active]}, nil
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current(), nil
}

func (p *KeyProvider) current() []common.Address {
	if p.active < 0 {
		return []common.Address{}
	}
	return []common.Address{p.addrs[p.active]}
}

func (p *KeyProvider) SubscribeAccounts(ch chan<- []common.Address) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Next authorizes the following key, wrapping around.
func (p *KeyProvider) Next() {
	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return
	}
	p.active = (p.active + 1) % len(p.keys)
	accounts := p.current()
	p.mu.Unlock()
	p.feed.Send(accounts)
}

func (p *KeyProvider) Disconnect() {
	p.mu.Lock()
	p.active = -1
	p.mu.Unlock()
	p.feed.Send([]common.Address{})
}

// SignTransaction signs with the key for from; unauthorized accounts are refused.
func (p *KeyProvider) SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	p.mu.Lock()
	var key *ecdsa.PrivateKey
	if p.active >= 0 && p.addrs[p.active] == from {
		key = p.keys[p.active]
	}
	p.mu.Unlock()
	if key == nil {
		return nil, fmt.Errorf("%w: account %s is not authorized", errUserRejected, from.Hex())
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
}
