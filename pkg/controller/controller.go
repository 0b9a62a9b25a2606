package controller

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"tipjar/pkg/chain"
	"tipjar/pkg/metrics"
	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Wallet is the account source the controller tracks.
type Wallet interface {
	Available() bool
	RequestConnection(ctx context.Context) (common.Address, error)
	CurrentAccounts(ctx context.Context) ([]common.Address, error)
	SubscribeAccountChange(handler func([]common.Address)) func()
}

// ContractHandle issues reads and writes as one account.
type ContractHandle interface {
	Account() common.Address
	ReadBalance(ctx context.Context) (*big.Int, error)
	ReadAllTips(ctx context.Context) (models.TipLedgerSnapshot, error)
	ReadOwner(ctx context.Context) (common.Address, error)
	SubmitTip(ctx context.Context, message string, amount *big.Int) (chain.Pending, error)
	SubmitWithdraw(ctx context.Context) (chain.Pending, error)
}

// Binder derives a ContractHandle for an account.
type Binder interface {
	Bind(account common.Address) ContractHandle
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(account common.Address) ContractHandle

func (f BinderFunc) Bind(account common.Address) ContractHandle {
	return f(account)
}

type Options struct {
	// AutoConnect prompts the wallet on Start; otherwise only accounts that
	// are already authorized are adopted.
	AutoConnect bool
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Controller reconciles the wallet account, contract balance and tip ledger
// into one state and serializes writes against it.
type Controller struct {
	wallet      Wallet
	binder      Binder
	autoConnect bool
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu      sync.RWMutex
	phase   models.Phase
	session models.Session
	handle  ContractHandle
	// epoch changes whenever handle is replaced or cleared
	epoch   uint64
	balance *big.Int
	tips    models.TipLedgerSnapshot
	owner   *common.Address
	op      models.OperationState
	pending models.WriteKind

	// last issued refresh generation, and the generation applied per field
	generation uint64
	balanceGen uint64
	tipsGen    uint64
	ownerGen   uint64

	subMu       sync.RWMutex
	subscribers []Subscriber

	ctx               context.Context
	cancel            context.CancelFunc
	closed            bool
	unsubscribeWallet func()
	wg                sync.WaitGroup
}

func New(wallet Wallet, binder Binder, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		wallet:      wallet,
		binder:      binder,
		autoConnect: opts.AutoConnect,
		metrics:     opts.Metrics,
		logger:      logger,
		phase:       models.PhaseDisconnected,
		op:          models.OpIdle,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to account changes and performs the initial connection.
// Without a wallet capability it returns ErrWalletUnavailable and the
// controller stays Disconnected for the rest of the session.
func (c *Controller) Start(ctx context.Context) error {
	available := c.wallet != nil && c.wallet.Available()

	c.mu.Lock()
	c.session.HasWalletCapability = available
	c.mu.Unlock()

	if !available {
		c.logger.Warn("no wallet capability; running disconnected")
		c.notice("error", "No wallet found. Install or configure a wallet to interact.", models.ErrWalletUnavailable)
		return models.ErrWalletUnavailable
	}

	unsubscribe := c.wallet.SubscribeAccountChange(c.handleAccountsChanged)
	c.mu.Lock()
	c.unsubscribeWallet = unsubscribe
	c.mu.Unlock()

	if c.autoConnect {
		if err := c.Connect(ctx); err != nil {
			c.logger.Info("initial connection failed", "err", err)
		}
		return nil
	}

	accounts, err := c.wallet.CurrentAccounts(ctx)
	if err != nil {
		c.logger.Warn("could not query authorized accounts", "err", err)
		return nil
	}
	if len(accounts) > 0 {
		c.handleAccountsChanged(accounts)
	}
	return nil
}

// Connect prompts the wallet for account access. It is a no-op while a
// connection exists or is being established.
func (c *Controller) Connect(ctx context.Context) error {
	if c.wallet == nil || !c.wallet.Available() {
		c.notice("error", "No wallet found. Install or configure a wallet to interact.", models.ErrWalletUnavailable)
		return models.ErrWalletUnavailable
	}

	c.mu.Lock()
	if c.phase != models.PhaseDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.phase = models.PhaseConnecting
	c.mu.Unlock()
	c.notify(Event{Type: EventSessionChanged, Data: c.Snapshot().Session})

	account, err := c.wallet.RequestConnection(ctx)
	if err != nil {
		c.mu.Lock()
		if c.phase == models.PhaseConnecting {
			c.phase = models.PhaseDisconnected
		}
		c.mu.Unlock()
		c.notify(Event{Type: EventSessionChanged, Data: c.Snapshot().Session})
		c.notice("error", "Wallet connection failed", err)
		return err
	}

	c.adopt(account)

	// The wallet may authorize a different first account than it returned.
	if accounts, err := c.wallet.CurrentAccounts(ctx); err == nil && len(accounts) > 0 && accounts[0] != account {
		c.adopt(accounts[0])
	}
	return nil
}

// handleAccountsChanged is the wallet's account-change callback.
func (c *Controller) handleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		c.clear()
		return
	}
	c.adopt(accounts[0])
}

// adopt replaces the handle for account and schedules a full refresh.
func (c *Controller) adopt(account common.Address) {
	handle := c.binder.Bind(account)

	c.mu.Lock()
	c.epoch++
	c.handle = handle
	c.session.Account = &account
	c.phase = models.PhaseConnected
	session := c.copySessionLocked()
	c.mu.Unlock()

	c.logger.Info("account active", "account", account.Hex())
	c.metrics.RecordAccountChange("set")
	c.notify(Event{Type: EventSessionChanged, Data: session})
	c.refreshAsync()
}

// clear drops the session and everything read through it. An in-flight
// write keeps the operation Submitting until it settles.
func (c *Controller) clear() {
	c.mu.Lock()
	c.epoch++
	c.handle = nil
	c.session.Account = nil
	c.phase = models.PhaseDisconnected
	c.balance = nil
	c.tips = nil
	c.owner = nil
	session := c.copySessionLocked()
	c.mu.Unlock()

	c.logger.Info("wallet disconnected")
	c.metrics.RecordAccountChange("cleared")
	c.metrics.SetLedgerSize(0)
	c.notify(Event{Type: EventSessionChanged, Data: session})
	c.notify(Event{Type: EventBalanceUpdated, Data: (*big.Int)(nil)})
	c.notify(Event{Type: EventTipsUpdated, Data: models.TipLedgerSnapshot(nil)})
	c.notify(Event{Type: EventOwnerUpdated, Data: (*common.Address)(nil)})
}

func (c *Controller) refreshAsync() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		_ = c.Refresh(c.ctx)
	}()
}

// Refresh re-reads balance, ledger and owner and replaces the cached values.
// Each field is applied only if no newer refresh has already applied it and
// the handle it was read through is still current. A failed read keeps the
// previous value.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return models.ErrNotConnected
	}
	c.generation++
	gen, epoch, h := c.generation, c.epoch, c.handle
	c.mu.Unlock()

	log := c.logger.With("generation", gen, "account", h.Account().Hex())
	var (
		appliedMu sync.Mutex
		applied   int
	)
	markApplied := func(ok bool) {
		if ok {
			appliedMu.Lock()
			applied++
			appliedMu.Unlock()
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		bal, err := h.ReadBalance(ctx)
		if err != nil {
			return err
		}
		markApplied(c.applyBalance(gen, epoch, bal))
		return nil
	})
	g.Go(func() error {
		tips, err := h.ReadAllTips(ctx)
		if err != nil {
			return err
		}
		markApplied(c.applyTips(gen, epoch, tips))
		return nil
	})
	g.Go(func() error {
		owner, err := h.ReadOwner(ctx)
		if err != nil {
			log.Debug("owner read failed", "err", err)
			return nil
		}
		markApplied(c.applyOwner(gen, epoch, owner))
		return nil
	})

	err := g.Wait()
	switch {
	case err != nil:
		c.metrics.RecordRefresh("failed")
		log.Warn("refresh failed", "err", err)
		if c.isCurrent(epoch) {
			c.notice("error", "Could not load contract data", err)
		}
	case applied == 0:
		c.metrics.RecordRefresh("discarded")
		log.Debug("refresh superseded")
	default:
		c.metrics.RecordRefresh("applied")
		log.Debug("refresh applied")
	}
	return err
}

func (c *Controller) isCurrent(epoch uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return epoch == c.epoch
}

func (c *Controller) applyBalance(gen, epoch uint64, bal *big.Int) bool {
	c.mu.Lock()
	if epoch != c.epoch || gen <= c.balanceGen {
		c.mu.Unlock()
		return false
	}
	c.balanceGen = gen
	c.balance = new(big.Int).Set(bal)
	c.mu.Unlock()

	c.notify(Event{Type: EventBalanceUpdated, Data: new(big.Int).Set(bal)})
	return true
}

func (c *Controller) applyTips(gen, epoch uint64, tips models.TipLedgerSnapshot) bool {
	if tips == nil {
		tips = models.TipLedgerSnapshot{}
	}
	c.mu.Lock()
	if epoch != c.epoch || gen <= c.tipsGen {
		c.mu.Unlock()
		return false
	}
	c.tipsGen = gen
	c.tips = tips.Clone()
	c.mu.Unlock()

	c.metrics.SetLedgerSize(len(tips))
	c.notify(Event{Type: EventTipsUpdated, Data: tips.Clone()})
	return true
}

func (c *Controller) applyOwner(gen, epoch uint64, owner common.Address) bool {
	c.mu.Lock()
	if epoch != c.epoch || gen <= c.ownerGen {
		c.mu.Unlock()
		return false
	}
	c.ownerGen = gen
	c.owner = &owner
	c.mu.Unlock()

	c.notify(Event{Type: EventOwnerUpdated, Data: &owner})
	return true
}

// SendTip submits tip(message) paying amount and waits for confirmation.
func (c *Controller) SendTip(ctx context.Context, message string, amount *big.Int) error {
	return c.write(ctx, models.WriteTip, func(h ContractHandle) (chain.Pending, error) {
		return h.SubmitTip(ctx, message, amount)
	})
}

// Withdraw submits withdraw() and waits for confirmation.
func (c *Controller) Withdraw(ctx context.Context) error {
	return c.write(ctx, models.WriteWithdraw, func(h ContractHandle) (chain.Pending, error) {
		return h.SubmitWithdraw(ctx)
	})
}

// write runs one write operation. The Submitting check and transition happen
// under the lock before anything is dispatched, so a second write is
// rejected without touching the chain.
func (c *Controller) write(ctx context.Context, kind models.WriteKind, submit func(ContractHandle) (chain.Pending, error)) error {
	c.mu.Lock()
	if c.op == models.OpSubmitting {
		c.mu.Unlock()
		c.metrics.RecordWrite(string(kind), "busy")
		c.notice("error", "Another transaction is still processing", models.ErrOperationInProgress)
		return models.ErrOperationInProgress
	}
	if c.handle == nil {
		c.mu.Unlock()
		c.notice("error", "Connect your wallet to interact.", models.ErrNotConnected)
		return models.ErrNotConnected
	}
	h := c.handle
	c.op = models.OpSubmitting
	c.pending = kind
	c.mu.Unlock()

	c.metrics.SetSubmitting(true)
	c.notify(Event{Type: EventOperationChanged, Data: OperationChange{Operation: models.OpSubmitting, Pending: kind}})
	log := c.logger.With("op", kind, "account", h.Account().Hex())
	log.Info("submitting transaction")

	err := func() error {
		defer c.settle()
		pending, err := submit(h)
		if err != nil {
			return err
		}
		log.Info("awaiting confirmation", "tx", pending.Hash().Hex())
		_, err = pending.Wait(ctx)
		return err
	}()

	if err != nil {
		c.metrics.RecordWrite(string(kind), models.ErrorKind(err))
		log.Warn("transaction failed", "err", err)
		c.notice("error", failureText(kind, err), err)
		return err
	}

	c.metrics.RecordWrite(string(kind), "success")
	log.Info("transaction confirmed")
	c.notice("info", successText(kind), nil)

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, models.ErrNotConnected) {
		log.Warn("post-write refresh failed", "err", err)
	}
	return nil
}

func (c *Controller) settle() {
	c.mu.Lock()
	c.op = models.OpIdle
	c.pending = ""
	c.mu.Unlock()

	c.metrics.SetSubmitting(false)
	c.notify(Event{Type: EventOperationChanged, Data: OperationChange{Operation: models.OpIdle}})
}

func successText(kind models.WriteKind) string {
	if kind == models.WriteWithdraw {
		return "Funds withdrawn!"
	}
	return "Tip sent!"
}

func failureText(kind models.WriteKind, err error) string {
	if kind == models.WriteWithdraw {
		return "Withdraw failed (are you the owner?)"
	}
	if errors.Is(err, models.ErrTransactionRejected) {
		return "Transaction rejected in wallet"
	}
	return "Transaction failed"
}

func (c *Controller) notice(level, text string, err error) {
	n := models.Notice{
		ID:    uuid.NewString(),
		Level: level,
		Text:  text,
		Kind:  models.ErrorKind(err),
	}
	c.notify(Event{Type: EventNotice, Data: n})
}

func (c *Controller) copySessionLocked() models.Session {
	s := models.Session{HasWalletCapability: c.session.HasWalletCapability}
	if c.session.Account != nil {
		a := *c.session.Account
		s.Account = &a
	}
	return s
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() models.State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := models.State{
		Phase:     c.phase,
		Session:   c.copySessionLocked(),
		Tips:      c.tips.Clone(),
		Operation: c.op,
		Pending:   c.pending,
	}
	if c.balance != nil {
		st.Balance = new(big.Int).Set(c.balance)
	}
	if c.owner != nil {
		o := *c.owner
		st.Owner = &o
	}
	return st
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (c *Controller) Subscribe() Subscriber {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ch := make(Subscriber, 100)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (c *Controller) Unsubscribe(ch Subscriber) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Controller) notify(event Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
			// slow subscriber; it can resync from Snapshot
		}
	}
}

// Close stops account tracking and waits for background refreshes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribeWallet
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	c.wg.Wait()
}
