package chain

import (
	"log/slog"
	"math/big"
	"time"

	"tipjar/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
)

// Handle is the bound (endpoint, contract, signing account) triple. It is
// immutable; an account change produces a new Handle.
type Handle struct {
	*Reader
	*Writer

	Endpoint string
}

// Contract disambiguates the promoted accessors; both halves share it.
func (h *Handle) Contract() common.Address {
	return h.Reader.Contract()
}

// Binder derives handles for accounts against one endpoint and contract.
type Binder struct {
	backend      Backend
	endpoint     string
	reader       *Reader
	signer       Signer
	chainID      *big.Int
	pollInterval time.Duration
	logger       *slog.Logger
}

type BinderOptions struct {
	Endpoint     string
	Contract     common.Address
	FetchMode    string
	ChainID      *big.Int
	PollInterval time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func NewBinder(backend Backend, signer Signer, opts BinderOptions) *Binder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		backend:      backend,
		endpoint:     opts.Endpoint,
		reader:       NewReader(backend, opts.Contract, opts.FetchMode, opts.Metrics),
		signer:       signer,
		chainID:      opts.ChainID,
		pollInterval: opts.PollInterval,
		logger:       logger,
	}
}

// Reader returns the account-independent read half, shared by every handle
// so the auto mode's bulk probe result survives account changes.
func (b *Binder) Reader() *Reader {
	return b.reader
}

// Bind returns a fresh handle that signs as account.
func (b *Binder) Bind(account common.Address) *Handle {
	return &Handle{
		Reader:   b.reader,
		Writer:   NewWriter(b.backend, b.reader.Contract(), account, b.signer, b.chainID, b.pollInterval, b.logger.With("account", account.Hex())),
		Endpoint: b.endpoint,
	}
}
