package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"tipjar/pkg/chain"
	"tipjar/pkg/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var testOwner = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type abiTip struct {
	Tipper    common.Address
	Amount    *big.Int
	Message   string
	Timestamp *big.Int
}

type nodeOptions struct {
	chainID uint64
	noCode  bool
	noBulk  bool
}

func mustPack(t *testing.T, method string, values ...interface{}) string {
	t.Helper()
	data, err := chain.ContractABI.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return hexutil.Encode(data)
}

// newNode answers the handful of JSON-RPC methods the check touches.
func newNode(t *testing.T, opts nodeOptions) *httptest.Server {
	t.Helper()
	tips := []abiTip{
		{Tipper: testOwner, Amount: big.NewInt(1e16), Message: "gm", Timestamp: big.NewInt(1700000000)},
		{Tipper: testOwner, Amount: big.NewInt(2e16), Message: "again", Timestamp: big.NewInt(1700000100)},
	}
	count := mustPack(t, "getTipsCount", big.NewInt(int64(len(tips))))
	all := mustPack(t, "getAllTips", tips)
	owner := mustPack(t, "owner", testOwner)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = hexutil.EncodeUint64(opts.chainID)
		case "eth_getCode":
			if opts.noCode {
				resp["result"] = "0x"
			} else {
				resp["result"] = "0x6080604052"
			}
		case "eth_call":
			var call struct {
				Input hexutil.Bytes `json:"input"`
				Data  hexutil.Bytes `json:"data"`
			}
			_ = json.Unmarshal(req.Params[0], &call)
			input := call.Input
			if len(input) == 0 {
				input = call.Data
			}
			switch {
			case bytes.HasPrefix(input, chain.ContractABI.Methods["getTipsCount"].ID):
				resp["result"] = count
			case bytes.HasPrefix(input, chain.ContractABI.Methods["owner"].ID):
				resp["result"] = owner
			case bytes.HasPrefix(input, chain.ContractABI.Methods["getAllTips"].ID):
				if opts.noBulk {
					delete(resp, "result")
					resp["error"] = map[string]interface{}{"code": 3, "message": "execution reverted", "data": "0x"}
				} else {
					resp["result"] = all
				}
			default:
				resp["result"] = "0x"
			}
		default:
			resp["result"] = "0x0"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testConfig(url string) config.Config {
	cfg := config.Default()
	cfg.RPCURL = url
	cfg.ContractAddress = testContract
	return cfg
}

func TestCheckHealthyContract(t *testing.T) {
	node := newNode(t, nodeOptions{chainID: 31337})
	defer node.Close()

	cfg := testConfig(node.URL)
	cfg.ChainID = 31337
	report := Check(context.Background(), "/tmp/tipjar.json", cfg)

	assert.True(t, report.ValidStructure)
	assert.Equal(t, "ok", report.RPCStatus)
	assert.Equal(t, int64(31337), report.ObservedChainID)
	assert.False(t, report.ChainIDMismatch)
	assert.True(t, report.HasCode)
	assert.Equal(t, int64(2), report.TipCount)
	assert.True(t, report.BulkSupported)
	assert.Equal(t, testOwner.Hex(), report.Owner)
	assert.Empty(t, report.ContractErrors)
	assert.True(t, report.Healthy())
}

func TestCheckChainIDMismatch(t *testing.T) {
	node := newNode(t, nodeOptions{chainID: 1})
	defer node.Close()

	cfg := testConfig(node.URL)
	cfg.ChainID = 31337
	report := Check(context.Background(), "", cfg)

	assert.True(t, report.ChainIDMismatch)
	assert.Equal(t, int64(1), report.ObservedChainID)
	assert.False(t, report.Healthy())
}

func TestCheckWithoutBulkAccessor(t *testing.T) {
	node := newNode(t, nodeOptions{chainID: 31337, noBulk: true})
	defer node.Close()

	report := Check(context.Background(), "", testConfig(node.URL))

	assert.False(t, report.BulkSupported)
	assert.Equal(t, int64(2), report.TipCount)
	assert.Empty(t, report.ContractErrors)
}

func TestCheckNoCode(t *testing.T) {
	node := newNode(t, nodeOptions{chainID: 31337, noCode: true})
	defer node.Close()

	report := Check(context.Background(), "", testConfig(node.URL))

	assert.Equal(t, "ok", report.RPCStatus)
	assert.False(t, report.HasCode)
	assert.Contains(t, report.ContractErrors, "no contract code at address")
	assert.False(t, report.Healthy())
}

func TestCheckInvalidStructure(t *testing.T) {
	cfg := config.Default()
	cfg.ContractAddress = "not-an-address"
	report := Check(context.Background(), "", cfg)

	assert.False(t, report.ValidStructure)
	require.NotEmpty(t, report.StructureErrors)
	assert.Contains(t, report.StructureErrors[0], "contract_address")
	assert.Empty(t, report.RPCStatus)
}

func TestCheckUnreachableNode(t *testing.T) {
	node := newNode(t, nodeOptions{})
	url := node.URL
	node.Close()

	report := Check(context.Background(), "", testConfig(url))

	assert.True(t, report.ValidStructure)
	assert.Equal(t, "error", report.RPCStatus)
	assert.NotEmpty(t, report.RPCError)
}
