package chain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC code geth uses for execution reverts.
const codeExecutionReverted = 3

// OwnableUnauthorizedAccount(address)
var ownableUnauthorizedSelector = []byte{0x11, 0x8c, 0xda, 0xa7}

var unauthorizedHints = []string{"owner", "unauthori", "not authorized", "not allowed"}

// Pre-execution rejections reported by the node's transaction pool.
var chainRejections = []string{
	"insufficient funds",
	"intrinsic gas too low",
	"nonce too low",
	"max fee per gas less than block base fee",
}

// isRevert reports whether err came from the EVM rejecting the call rather
// than from the transport.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeExecutionReverted {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

// isChainRejection reports whether the node refused the transaction before
// execution, e.g. for an underfunded sender.
func isChainRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, r := range chainRejections {
		if strings.Contains(msg, r) {
			return true
		}
	}
	return false
}

// revertDetails extracts the revert reason string and raw revert data, when present.
func revertDetails(err error) (string, []byte) {
	var data []byte
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if b, decErr := hexutil.Decode(s); decErr == nil {
				data = b
			}
		}
	}
	if len(data) > 0 {
		if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
			return reason, data
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted:"); i >= 0 {
		return strings.TrimSpace(msg[i+len("execution reverted:"):]), data
	}
	return "", data
}

// classifyRevert maps an EVM rejection of kind to the error taxonomy.
func classifyRevert(kind models.WriteKind, err error) error {
	reason, data := revertDetails(err)
	if kind == models.WriteWithdraw && looksUnauthorized(reason, data) {
		return fmt.Errorf("%w: %w: %s", models.ErrUnauthorized, models.ErrTransactionReverted, reasonOr(reason, "caller is not the owner"))
	}
	return fmt.Errorf("%w: %s", models.ErrTransactionReverted, reasonOr(reason, err.Error()))
}

func looksUnauthorized(reason string, data []byte) bool {
	if len(data) >= 4 && bytes.Equal(data[:4], ownableUnauthorizedSelector) {
		return true
	}
	r := strings.ToLower(reason)
	for _, hint := range unauthorizedHints {
		if strings.Contains(r, hint) {
			return true
		}
	}
	return false
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
