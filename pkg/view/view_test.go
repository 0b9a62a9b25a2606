package view

import (
	"math/big"
	"testing"
	"time"

	"tipjar/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	acct  = common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	other = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func testOptions() Options {
	return Options{Symbol: "ETH", Decimals: 4, Location: time.UTC}
}

func TestProject_EmptyState(t *testing.T) {
	rm := Project(models.State{Phase: models.PhaseDisconnected, Session: models.Session{HasWalletCapability: true}}, testOptions())

	assert.False(t, rm.Connected)
	assert.Equal(t, NoAccount, rm.AccountLabel)
	assert.Equal(t, ConnectText, rm.ConnectionText)
	assert.Equal(t, "0 ETH", rm.Balance)
	assert.Empty(t, rm.Tips)
	assert.NotNil(t, rm.Tips)
	assert.Equal(t, NoTips, rm.EmptyText)
	assert.False(t, rm.CanWrite)
	assert.Equal(t, "Send tip", rm.SendLabel)
}

func TestProject_NoWallet(t *testing.T) {
	rm := Project(models.State{}, testOptions())
	assert.Equal(t, NoWalletText, rm.ConnectionText)
	assert.Equal(t, "0 ETH", rm.Balance)
}

func TestProject_TipAmountsKeepFullPrecision(t *testing.T) {
	st := models.State{
		Balance: big.NewInt(50_000_000_000_000),
		Tips: models.TipLedgerSnapshot{
			{Tipper: other, Amount: big.NewInt(50_000_000_000_000), Message: "dust", Timestamp: 1_700_000_000},
		},
	}
	rm := Project(st, testOptions())

	require.Len(t, rm.Tips, 1)
	assert.Equal(t, "0.00005 ETH", rm.Tips[0].Amount)
	assert.Equal(t, "0 ETH", rm.Balance)
}

func TestProject_ReversesLedger(t *testing.T) {
	st := models.State{
		Phase:   models.PhaseConnected,
		Session: models.Session{Account: &acct, HasWalletCapability: true},
		Balance: big.NewInt(30_000_000_000_000_000),
		Tips: models.TipLedgerSnapshot{
			{Tipper: other, Amount: big.NewInt(10_000_000_000_000_000), Message: "first", Timestamp: 1_700_000_000},
			{Tipper: acct, Amount: big.NewInt(20_000_000_000_000_000), Message: "", Timestamp: 1_700_000_060},
		},
	}
	rm := Project(st, testOptions())

	require.Len(t, rm.Tips, 2)
	assert.Equal(t, "", rm.Tips[0].Message)
	assert.Equal(t, "first", rm.Tips[1].Message)
	assert.Equal(t, "0.02 ETH", rm.Tips[0].Amount)
	assert.Equal(t, "20000000000000000", rm.Tips[0].AmountWei)
	assert.Equal(t, "2023-11-14 22:13:20", rm.Tips[1].Date)
	assert.Equal(t, "2023-11-14 22:14:20", rm.Tips[0].Date)
	assert.Equal(t, acct.Hex(), rm.Tips[0].From)
	assert.Equal(t, "0xAb58...eC9B", rm.Tips[0].FromShort)
	assert.Empty(t, rm.EmptyText)

	assert.Equal(t, "0.03 ETH", rm.Balance)
	assert.Equal(t, "0xAb58...eC9B", rm.AccountLabel)
	assert.Equal(t, ConnectedText, rm.ConnectionText)
	assert.True(t, rm.CanWrite)
	assert.False(t, rm.IsOwner)

	assert.InDeltaSlice(t, []float64{0.01, 0.02}, rm.ChartSeries(), 1e-12)
}

func TestProject_AppendedTipShowsFirst(t *testing.T) {
	st := models.State{Tips: models.TipLedgerSnapshot{{Tipper: other, Amount: big.NewInt(1), Message: "old"}}}
	before := Project(st, testOptions())

	st.Tips = append(st.Tips, models.TipRecord{Tipper: acct, Amount: big.NewInt(1), Message: "hello"})
	after := Project(st, testOptions())

	assert.Equal(t, "hello", after.Tips[0].Message)
	assert.Equal(t, before.Tips[0], after.Tips[1])
}

func TestProject_Submitting(t *testing.T) {
	st := models.State{
		Phase:     models.PhaseConnected,
		Session:   models.Session{Account: &acct, HasWalletCapability: true},
		Operation: models.OpSubmitting,
		Pending:   models.WriteWithdraw,
		Owner:     &acct,
	}
	rm := Project(st, testOptions())

	assert.True(t, rm.Submitting)
	assert.False(t, rm.CanWrite)
	assert.Equal(t, "Sending...", rm.SendLabel)
	assert.Equal(t, "Withdrawing...", rm.WithdrawLabel)
	assert.Equal(t, ProcessingText, rm.ProcessingText)
	assert.True(t, rm.IsOwner)
}

func TestProject_Connecting(t *testing.T) {
	rm := Project(models.State{Phase: models.PhaseConnecting, Session: models.Session{HasWalletCapability: true}}, testOptions())
	assert.Equal(t, ConnectingText, rm.ConnectionText)
}

func TestProject_FullPrecisionAndSymbol(t *testing.T) {
	st := models.State{Balance: big.NewInt(1)}
	rm := Project(st, Options{Symbol: "GO", Decimals: -1, Location: time.UTC})
	assert.Equal(t, "0.000000000000000001 GO", rm.Balance)

	rm = Project(st, Options{})
	assert.Equal(t, "0 ETH", rm.Balance)
}
