package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var DefaultReceiptPollInterval = time.Second

// Pending is a broadcast transaction awaiting confirmation.
type Pending interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A mined but failed
	// transaction is reported as ErrTransactionReverted (or ErrUnauthorized).
	Wait(ctx context.Context) (*types.Receipt, error)
}

// Writer submits state-changing calls as one account.
type Writer struct {
	backend      Backend
	contract     common.Address
	account      common.Address
	signer       Signer
	pollInterval time.Duration
	logger       *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

func NewWriter(backend Backend, contract, account common.Address, signer Signer, chainID *big.Int, pollInterval time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultReceiptPollInterval
	}
	return &Writer{
		backend:      backend,
		contract:     contract,
		account:      account,
		signer:       signer,
		chainID:      chainID,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func (w *Writer) Account() common.Address {
	return w.account
}

// SubmitTip calls tip(message) with amount attached as the payment. The
// amount is passed through unmodified; nil means zero.
func (w *Writer) SubmitTip(ctx context.Context, message string, amount *big.Int) (Pending, error) {
	data, err := ContractABI.Pack("tip", message)
	if err != nil {
		return nil, fmt.Errorf("%w: pack tip: %v", models.ErrChainWrite, err)
	}
	value := new(big.Int)
	if amount != nil {
		value.Set(amount)
	}
	return w.submit(ctx, models.WriteTip, data, value)
}

// SubmitWithdraw calls withdraw(). Ownership is only known to the contract;
// its rejection is surfaced as ErrUnauthorized.
func (w *Writer) SubmitWithdraw(ctx context.Context) (Pending, error) {
	data, err := ContractABI.Pack("withdraw")
	if err != nil {
		return nil, fmt.Errorf("%w: pack withdraw: %v", models.ErrChainWrite, err)
	}
	return w.submit(ctx, models.WriteWithdraw, data, new(big.Int))
}

func (w *Writer) getChainID(ctx context.Context) (*big.Int, error) {
	w.chainMu.Lock()
	defer w.chainMu.Unlock()
	if w.chainID != nil && w.chainID.Sign() > 0 {
		return w.chainID, nil
	}
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	w.chainID = id
	return id, nil
}

// submit builds, signs and broadcasts exactly one transaction.
func (w *Writer) submit(ctx context.Context, kind models.WriteKind, data []byte, value *big.Int) (Pending, error) {
	chainID, err := w.getChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", models.ErrChainWrite, err)
	}

	msg := ethereum.CallMsg{From: w.account, To: &w.contract, Value: value, Data: data}
	gas, err := w.backend.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return nil, classifyRevert(kind, err)
		}
		if isChainRejection(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrTransactionReverted, err)
		}
		return nil, fmt.Errorf("%w: estimate gas: %v", models.ErrChainWrite, err)
	}
	gas += gas / 5

	nonce, err := w.backend.PendingNonceAt(ctx, w.account)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", models.ErrChainWrite, err)
	}

	tx, err := w.buildTx(ctx, chainID, nonce, gas, value, data)
	if err != nil {
		return nil, err
	}

	signed, err := w.signer.SignTransaction(ctx, w.account, tx, chainID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionRejected) || errors.Is(err, models.ErrChainWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: sign: %v", models.ErrChainWrite, err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		if isRevert(err) {
			return nil, classifyRevert(kind, err)
		}
		if isChainRejection(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrTransactionReverted, err)
		}
		return nil, fmt.Errorf("%w: broadcast: %v", models.ErrChainWrite, err)
	}

	w.logger.Info("transaction broadcast", "op", kind, "tx", signed.Hash().Hex(), "account", w.account.Hex())
	return &pendingTx{
		hash:         signed.Hash(),
		kind:         kind,
		msg:          msg,
		backend:      w.backend,
		pollInterval: w.pollInterval,
		logger:       w.logger,
	}, nil
}

// buildTx prefers an EIP-1559 transaction when the head block has a base fee.
func (w *Writer) buildTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, value *big.Int, data []byte) (*types.Transaction, error) {
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: head: %v", models.ErrChainWrite, err)
	}
	to := w.contract
	if head.BaseFee != nil {
		tip, err := w.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: gas tip: %v", models.ErrChainWrite, err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		}), nil
	}
	price, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %v", models.ErrChainWrite, err)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}

type pendingTx struct {
	hash         common.Hash
	kind         models.WriteKind
	msg          ethereum.CallMsg
	backend      Backend
	pollInterval time.Duration
	logger       *slog.Logger
}

func (p *pendingTx) Hash() common.Hash {
	return p.hash
}

// Wait polls for the receipt. Lookup failures other than "not found" are
// logged and polling continues; only ctx ends the wait early.
func (p *pendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			return receipt, p.failure(ctx, receipt)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			p.logger.Debug("receipt lookup failed", "tx", p.hash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: awaiting %s: %v", models.ErrChainWrite, p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// failure replays the call at the failing block to recover the revert reason.
func (p *pendingTx) failure(ctx context.Context, receipt *types.Receipt) error {
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	_, err := p.backend.CallContract(ctx, p.msg, block)
	if err != nil && isRevert(err) {
		return classifyRevert(p.kind, err)
	}
	return fmt.Errorf("%w: %s failed in block %v", models.ErrTransactionReverted, p.hash.Hex(), receipt.BlockNumber)
}
