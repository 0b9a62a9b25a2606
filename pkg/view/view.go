package view

import (
	"math/big"
	"time"

	"tipjar/pkg/models"
	"tipjar/pkg/utils"
)

const (
	NoAccount      = "None"
	NoTips         = "No tips yet!"
	ConnectedText  = "Your wallet is connected."
	ConnectText    = "Connect your wallet to interact."
	ConnectingText = "Waiting for wallet approval..."
	NoWalletText   = "No wallet found. Configure wallet_url or dev_keys."
	ProcessingText = "Processing transaction..."
)

// Options controls formatting.
type Options struct {
	Symbol string
	// Decimals caps the fractional digits of the balance; negative shows all 18.
	// Tip amounts always show full precision.
	Decimals int
	Location *time.Location
}

func DefaultOptions() Options {
	return Options{Symbol: "ETH", Decimals: 4, Location: time.Local}
}

type TipRow struct {
	From      string  `json:"from"`
	FromShort string  `json:"from_short"`
	Amount    string  `json:"amount"`
	AmountWei string  `json:"amount_wei"`
	Value     float64 `json:"-"`
	Message   string  `json:"message"`
	Date      string  `json:"date"`
	Timestamp int64   `json:"timestamp"`
}

// RenderModel is everything a front-end needs to draw one frame.
type RenderModel struct {
	Phase          models.Phase `json:"phase"`
	HasWallet      bool         `json:"has_wallet"`
	Connected      bool         `json:"connected"`
	Account        string       `json:"account,omitempty"`
	AccountLabel   string       `json:"account_label"`
	ConnectionText string       `json:"connection_text"`
	IsOwner        bool         `json:"is_owner"`

	Balance    string `json:"balance"`
	BalanceWei string `json:"balance_wei"`

	Submitting     bool             `json:"submitting"`
	Pending        models.WriteKind `json:"pending,omitempty"`
	SendLabel      string           `json:"send_label"`
	WithdrawLabel  string           `json:"withdraw_label"`
	ProcessingText string           `json:"processing_text,omitempty"`
	CanWrite       bool             `json:"can_write"`

	// Tips is newest first.
	Tips      []TipRow `json:"tips"`
	EmptyText string   `json:"empty_text,omitempty"`
}

// Project maps controller state to a render model. Missing values render
// as placeholders.
func Project(st models.State, opts Options) RenderModel {
	if opts.Symbol == "" {
		opts.Symbol = "ETH"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	rm := RenderModel{
		Phase:         st.Phase,
		HasWallet:     st.Session.HasWalletCapability,
		Connected:     st.Session.Connected(),
		AccountLabel:  NoAccount,
		Submitting:    st.Operation == models.OpSubmitting,
		Pending:       st.Pending,
		SendLabel:     "Send tip",
		WithdrawLabel: "Withdraw funds (owner)",
		Tips:          make([]TipRow, 0, len(st.Tips)),
	}

	switch {
	case rm.Connected:
		rm.Account = st.Session.Account.Hex()
		rm.AccountLabel = utils.ShortAddress(*st.Session.Account)
		rm.ConnectionText = ConnectedText
		rm.IsOwner = st.Owner != nil && *st.Owner == *st.Session.Account
	case st.Phase == models.PhaseConnecting:
		rm.ConnectionText = ConnectingText
	case !rm.HasWallet:
		rm.ConnectionText = NoWalletText
	default:
		rm.ConnectionText = ConnectText
	}

	balance := st.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	rm.Balance = formatAmount(balance, opts)
	rm.BalanceWei = balance.String()

	if rm.Submitting {
		rm.SendLabel = "Sending..."
		rm.WithdrawLabel = "Withdrawing..."
		rm.ProcessingText = ProcessingText
	}
	rm.CanWrite = rm.Connected && !rm.Submitting

	for i := len(st.Tips) - 1; i >= 0; i-- {
		rm.Tips = append(rm.Tips, projectTip(st.Tips[i], opts))
	}
	if len(rm.Tips) == 0 {
		rm.EmptyText = NoTips
	}
	return rm
}

func projectTip(t models.TipRecord, opts Options) TipRow {
	amount := t.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return TipRow{
		From:      t.Tipper.Hex(),
		FromShort: utils.ShortAddress(t.Tipper),
		Amount:    utils.FormatEther(amount, -1) + " " + opts.Symbol,
		AmountWei: amount.String(),
		Value:     utils.WeiToFloat(amount),
		Message:   t.Message,
		Date:      utils.FormatTimestamp(t.Timestamp, opts.Location),
		Timestamp: t.Timestamp,
	}
}

func formatAmount(wei *big.Int, opts Options) string {
	return utils.FormatEther(wei, opts.Decimals) + " " + opts.Symbol
}

// ChartSeries returns tip values oldest first, for plotting.
func (rm RenderModel) ChartSeries() []float64 {
	out := make([]float64, 0, len(rm.Tips))
	for i := len(rm.Tips) - 1; i >= 0; i-- {
		out = append(out, rm.Tips[i].Value)
	}
	return out
}
