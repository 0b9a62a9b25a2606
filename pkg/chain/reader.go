package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"tipjar/pkg/metrics"
	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger fetch modes.
const (
	ModeAuto    = "auto"
	ModeBulk    = "bulk"
	ModeIndexed = "indexed"
)

// maxPrealloc bounds the slice capacity taken from the reported tip count.
const maxPrealloc = 1024

var errNoBulkAccessor = errors.New("contract has no getAllTips accessor")

// rawTip mirrors the getAllTips tuple; field order must match the ABI.
type rawTip struct {
	Tipper    common.Address
	Amount    *big.Int
	Message   string
	Timestamp *big.Int
}

// Reader performs read-only contract queries.
type Reader struct {
	backend  Backend
	contract common.Address
	mode     string
	metrics  *metrics.Metrics

	// set once auto mode has seen the bulk accessor fail as unsupported
	bulkUnsupported atomic.Bool
}

func NewReader(backend Backend, contract common.Address, mode string, m *metrics.Metrics) *Reader {
	if mode == "" {
		mode = ModeAuto
	}
	return &Reader{backend: backend, contract: contract, mode: mode, metrics: m}
}

func (r *Reader) Contract() common.Address {
	return r.contract
}

// ReadBalance returns the contract's native balance in wei.
func (r *Reader) ReadBalance(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	bal, err := r.backend.BalanceAt(ctx, r.contract, nil)
	r.metrics.RecordChainRead("balance", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %v", models.ErrChainRead, err)
	}
	return bal, nil
}

// ReadOwner calls owner().
func (r *Reader) ReadOwner(ctx context.Context) (common.Address, error) {
	out, err := r.call(ctx, nil, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: owner() returned %T", models.ErrChainRead, out[0])
	}
	return owner, nil
}

// ReadTipCount calls getTipsCount() at block (nil for latest).
func (r *Reader) ReadTipCount(ctx context.Context, block *big.Int) (uint64, error) {
	out, err := r.call(ctx, block, "getTipsCount")
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok || count.Sign() < 0 || !count.IsUint64() {
		return 0, fmt.Errorf("%w: getTipsCount() returned %v", models.ErrChainRead, out[0])
	}
	return count.Uint64(), nil
}

// ReadTipAt calls tips(index) at block (nil for latest).
func (r *Reader) ReadTipAt(ctx context.Context, index uint64, block *big.Int) (models.TipRecord, error) {
	out, err := r.call(ctx, block, "tips", new(big.Int).SetUint64(index))
	if err != nil {
		return models.TipRecord{}, err
	}
	if len(out) != 4 {
		return models.TipRecord{}, fmt.Errorf("%w: %w: tips(%d) returned %d values", models.ErrChainRead, models.ErrMalformedTip, index, len(out))
	}
	tipper, ok1 := out[0].(common.Address)
	amount, ok2 := out[1].(*big.Int)
	message, ok3 := out[2].(string)
	timestamp, ok4 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.TipRecord{}, fmt.Errorf("%w: %w: tips(%d) has unexpected types", models.ErrChainRead, models.ErrMalformedTip, index)
	}
	return toRecord(index, rawTip{Tipper: tipper, Amount: amount, Message: message, Timestamp: timestamp})
}

// ReadAllTips returns the ledger oldest first. An empty ledger is an empty
// snapshot, not an error.
func (r *Reader) ReadAllTips(ctx context.Context) (models.TipLedgerSnapshot, error) {
	switch r.mode {
	case ModeBulk:
		return r.readBulk(ctx)
	case ModeIndexed:
		return r.readIndexed(ctx)
	}

	if !r.bulkUnsupported.Load() {
		tips, err := r.readBulk(ctx)
		if !errors.Is(err, errNoBulkAccessor) {
			return tips, err
		}
		r.bulkUnsupported.Store(true)
	}
	return r.readIndexed(ctx)
}

// SupportsBulk probes getAllTips once.
func (r *Reader) SupportsBulk(ctx context.Context) (bool, error) {
	_, err := r.readBulk(ctx)
	if errors.Is(err, errNoBulkAccessor) {
		return false, nil
	}
	return err == nil, err
}

func (r *Reader) readBulk(ctx context.Context) (tips models.TipLedgerSnapshot, err error) {
	data, err := r.rawCall(ctx, nil, "getAllTips")
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %w", errNoBulkAccessor, err)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w: empty return data", models.ErrChainRead, errNoBulkAccessor)
	}
	out, err := ContractABI.Unpack("getAllTips", data)
	if err != nil || len(out) != 1 {
		return nil, fmt.Errorf("%w: %w: getAllTips: %v", models.ErrChainRead, models.ErrMalformedTip, err)
	}

	// ConvertType panics when the decoded shape does not match rawTip.
	defer func() {
		if rec := recover(); rec != nil {
			tips, err = nil, fmt.Errorf("%w: %w: getAllTips: %v", models.ErrChainRead, models.ErrMalformedTip, rec)
		}
	}()
	raws := *abi.ConvertType(out[0], new([]rawTip)).(*[]rawTip)

	tips = make(models.TipLedgerSnapshot, 0, len(raws))
	for i, raw := range raws {
		rec, err := toRecord(uint64(i), raw)
		if err != nil {
			return nil, err
		}
		tips = append(tips, rec)
	}
	return tips, nil
}

// readIndexed pins the count and every tips(i) read to one block so the
// result is a consistent snapshot even while tips are being appended.
func (r *Reader) readIndexed(ctx context.Context) (models.TipLedgerSnapshot, error) {
	head, err := r.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", models.ErrChainRead, err)
	}
	block := new(big.Int).SetUint64(head)

	count, err := r.ReadTipCount(ctx, block)
	if err != nil {
		return nil, err
	}
	tips := make(models.TipLedgerSnapshot, 0, min(count, maxPrealloc))
	for i := uint64(0); i < count; i++ {
		rec, err := r.ReadTipAt(ctx, i, block)
		if err != nil {
			return nil, err
		}
		tips = append(tips, rec)
	}
	return tips, nil
}

func (r *Reader) call(ctx context.Context, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.rawCall(ctx, block, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := ContractABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrChainRead, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", models.ErrChainRead, method)
	}
	return out, nil
}

func (r *Reader) rawCall(ctx context.Context, block *big.Int, method string, args ...interface{}) ([]byte, error) {
	input, err := ContractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", models.ErrChainRead, method, err)
	}
	start := time.Now()
	data, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input}, block)
	r.metrics.RecordChainRead(method, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrChainRead, method, err)
	}
	return data, nil
}

// toRecord validates a decoded tuple at the read boundary.
func toRecord(index uint64, raw rawTip) (models.TipRecord, error) {
	switch {
	case raw.Amount == nil || raw.Amount.Sign() < 0:
		return models.TipRecord{}, fmt.Errorf("%w: %w: tip %d has invalid amount", models.ErrChainRead, models.ErrMalformedTip, index)
	case raw.Timestamp == nil || raw.Timestamp.Sign() < 0 || !raw.Timestamp.IsInt64():
		return models.TipRecord{}, fmt.Errorf("%w: %w: tip %d has invalid timestamp", models.ErrChainRead, models.ErrMalformedTip, index)
	case raw.Tipper == (common.Address{}):
		return models.TipRecord{}, fmt.Errorf("%w: %w: tip %d has zero tipper", models.ErrChainRead, models.ErrMalformedTip, index)
	case !utf8.ValidString(raw.Message):
		return models.TipRecord{}, fmt.Errorf("%w: %w: tip %d message is not valid UTF-8", models.ErrChainRead, models.ErrMalformedTip, index)
	}
	return models.TipRecord{
		Tipper:    raw.Tipper,
		Amount:    new(big.Int).Set(raw.Amount),
		Message:   raw.Message,
		Timestamp: raw.Timestamp.Int64(),
	}, nil
}
