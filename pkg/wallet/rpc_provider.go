package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

var AccountsCallTimeout = 10 * time.Second

// RPCProvider talks to a wallet that exposes the injected-provider methods
// over JSON-RPC. Account changes are detected by polling eth_accounts.
type RPCProvider struct {
	client       *rpc.Client
	pollInterval time.Duration
	logger       *slog.Logger

	feed      event.Feed
	mu        sync.Mutex
	last      []common.Address
	startOnce sync.Once
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// DialRPCProvider connects to the wallet endpoint.
func DialRPCProvider(ctx context.Context, url string, pollInterval time.Duration, logger *slog.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet %s: %w", url, err)
	}
	return NewRPCProvider(client, pollInterval, logger), nil
}

func NewRPCProvider(client *rpc.Client, pollInterval time.Duration, logger *slog.Logger) *RPCProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &RPCProvider{
		client:       client,
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	if isMethodNotFound(err) {
		// Plain nodes only know eth_accounts and never prompt.
		accounts, err = p.Accounts(ctx)
	}
	if err != nil {
		return nil, err
	}
	p.remember(accounts)
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SubscribeAccounts starts the poller on first use.
func (p *RPCProvider) SubscribeAccounts(ch chan<- []common.Address) event.Subscription {
	sub := p.feed.Subscribe(ch)
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.pollingLoop()
	})
	return sub
}

func (p *RPCProvider) remember(accounts []common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sameAccounts(p.last, accounts) {
		return false
	}
	p.last = append([]common.Address(nil), accounts...)
	return true
}

func (p *RPCProvider) pollingLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll()
		case <-p.stopChan:
			return
		}
	}
}

func (p *RPCProvider) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), AccountsCallTimeout)
	defer cancel()
	accounts, err := p.Accounts(ctx)
	if err != nil {
		p.logger.Debug("eth_accounts poll failed", "err", err)
		return
	}
	if p.remember(accounts) {
		p.logger.Info("wallet accounts changed", "count", len(accounts))
		p.feed.Send(accounts)
	}
}

type txArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

func argsFromTx(from common.Address, tx *types.Transaction, chainID *big.Int) txArgs {
	args := txArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

// SignTransaction asks the wallet to sign via eth_signTransaction. Both the
// {"raw": ...} object form and a bare hex string are accepted.
func (p *RPCProvider) SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, "eth_signTransaction", argsFromTx(from, tx, chainID)); err != nil {
		return nil, err
	}

	var raw hexutil.Bytes
	var obj struct {
		Raw hexutil.Bytes `json:"raw"`
	}
	if err := json.Unmarshal(result, &obj); err == nil && len(obj.Raw) > 0 {
		raw = obj.Raw
	} else if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("recover signer: %w", err)
	}
	if sender != from {
		return nil, fmt.Errorf("wallet signed as %s, expected %s", sender.Hex(), from.Hex())
	}
	return signed, nil
}

// Close stops the poller and the underlying client.
func (p *RPCProvider) Close() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.client.Close()
	})
}
