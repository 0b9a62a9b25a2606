package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TipRecord is one entry of the contract's tip ledger.
type TipRecord struct {
	Tipper    common.Address `json:"tipper"`
	Amount    *big.Int       `json:"amount"` // wei
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"` // seconds since epoch
}

// TipLedgerSnapshot is a point-in-time copy of the ledger in append order (oldest first).
type TipLedgerSnapshot []TipRecord

// Clone returns a copy that shares no amount pointers with s.
func (s TipLedgerSnapshot) Clone() TipLedgerSnapshot {
	if s == nil {
		return nil
	}
	out := make(TipLedgerSnapshot, len(s))
	for i, t := range s {
		out[i] = t
		if t.Amount != nil {
			out[i].Amount = new(big.Int).Set(t.Amount)
		}
	}
	return out
}

// Session describes the wallet connection.
type Session struct {
	Account             *common.Address `json:"account,omitempty"`
	HasWalletCapability bool            `json:"has_wallet_capability"`
}

// Connected reports whether an account is present.
func (s Session) Connected() bool {
	return s.Account != nil
}

// Phase is the connection phase of the controller.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
)

// OperationState tracks whether a write is in flight.
type OperationState string

const (
	OpIdle       OperationState = "idle"
	OpSubmitting OperationState = "submitting"
)

// WriteKind names a state-changing contract call.
type WriteKind string

const (
	WriteTip      WriteKind = "tip"
	WriteWithdraw WriteKind = "withdraw"
)

// State is a read-only copy of everything the controller owns.
type State struct {
	Phase     Phase             `json:"phase"`
	Session   Session           `json:"session"`
	Balance   *big.Int          `json:"balance,omitempty"` // nil when unknown
	Tips      TipLedgerSnapshot `json:"tips"`
	Operation OperationState    `json:"operation"`
	Pending   WriteKind         `json:"pending,omitempty"`
	Owner     *common.Address   `json:"owner,omitempty"`
}

// Notice is a user-visible message produced by the controller.
type Notice struct {
	ID    string `json:"id"`
	Level string `json:"level"` // "info" or "error"
	Text  string `json:"text"`
	Kind  string `json:"kind,omitempty"`
}

// CheckReport holds the results of the configuration check.
type CheckReport struct {
	ConfigPath      string   `json:"config_path"`
	ValidStructure  bool     `json:"valid_structure"`
	StructureErrors []string `json:"structure_errors,omitempty"`
	RPCURL          string   `json:"rpc_url"`
	Contract        string   `json:"contract"`
	RPCStatus       string   `json:"rpc_status"` // "ok" or "error"
	RPCError        string   `json:"rpc_error,omitempty"`
	LatencyMillis   int64    `json:"latency_ms,omitempty"`
	ConfigChainID   int64    `json:"config_chain_id"`
	ObservedChainID int64    `json:"observed_chain_id,omitempty"`
	ChainIDMismatch bool     `json:"chain_id_mismatch"`
	HasCode         bool     `json:"has_code"`
	TipCount        int64    `json:"tip_count"`
	BulkSupported   bool     `json:"bulk_supported"`
	Owner           string   `json:"owner,omitempty"`
	ContractErrors  []string `json:"contract_errors,omitempty"`
}

// Healthy reports whether the check found nothing that blocks the client.
func (r CheckReport) Healthy() bool {
	return r.ValidStructure && r.RPCStatus == "ok" && !r.ChainIDMismatch && r.HasCode && len(r.ContractErrors) == 0
}
