package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tipjar/pkg/controller"
	"tipjar/pkg/models"
	"tipjar/pkg/view"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu        sync.Mutex
	state     models.State
	subs      []controller.Subscriber
	tipErr    error
	withdrawE error
	refreshes chan struct{}
	amounts   []*big.Int
	// writeErrs records ctx.Err() as seen by each write.
	writeErrs []error
}

func newFakeController() *fakeController {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return &fakeController{
		state: models.State{
			Phase:     models.PhaseConnected,
			Session:   models.Session{Account: &addr, HasWalletCapability: true},
			Balance:   big.NewInt(2_500_000_000_000_000_000),
			Operation: models.OpIdle,
		},
		refreshes: make(chan struct{}, 1),
	}
}

func (f *fakeController) Snapshot() models.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Subscribe() controller.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := make(controller.Subscriber, 10)
	f.subs = append(f.subs, sub)
	return sub
}

func (f *fakeController) Unsubscribe(controller.Subscriber) {}

func (f *fakeController) Refresh(ctx context.Context) error {
	f.refreshes <- struct{}{}
	return nil
}

func (f *fakeController) SendTip(ctx context.Context, message string, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	f.writeErrs = append(f.writeErrs, ctx.Err())
	return f.tipErr
}

func (f *fakeController) Withdraw(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrs = append(f.writeErrs, ctx.Err())
	return f.withdrawE
}

func newTestServer(ctrl *fakeController) *Server {
	return NewServer(ctrl, Options{View: view.DefaultOptions(), Gatherer: prometheus.NewRegistry()})
}

func TestHandleState(t *testing.T) {
	s := newTestServer(newFakeController())

	req, _ := http.NewRequest("GET", "/api/state", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp view.RenderModel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Connected)
	assert.Equal(t, "2.5 ETH", resp.Balance)
	assert.Equal(t, view.NoTips, resp.EmptyText)
}

func TestHandleRefresh(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)

	req, _ := http.NewRequest("POST", "/api/refresh", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	select {
	case <-ctrl.refreshes:
	case <-time.After(time.Second):
		t.Fatal("refresh not triggered")
	}
}

func TestHandleTip(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"ok", `{"message":"hi","amount":"0.01"}`, nil, http.StatusOK},
		{"bad amount", `{"message":"hi","amount":"lots"}`, nil, http.StatusUnprocessableEntity},
		{"bad body", `{`, nil, http.StatusBadRequest},
		{"busy", `{"amount":"1"}`, models.ErrOperationInProgress, http.StatusConflict},
		{"rejected", `{"amount":"1"}`, fmt.Errorf("%w: user denied", models.ErrTransactionRejected), http.StatusForbidden},
		{"reverted", `{"amount":"1"}`, fmt.Errorf("%w: out of gas", models.ErrTransactionReverted), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.tipErr = tt.err
			s := newTestServer(ctrl)

			req, _ := http.NewRequest("POST", "/api/tips", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestHandleTipPassesWei(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)

	req, _ := http.NewRequest("POST", "/api/tips", strings.NewReader(`{"message":"hi","amount":"0.000000000000000001"}`))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, ctrl.amounts, 1)
	assert.Equal(t, int64(1), ctrl.amounts[0].Int64())
}

func TestWritesOutliveRequest(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(reqCtx, "POST", "/api/tips", strings.NewReader(`{"amount":"0.1"}`))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)
	req, _ = http.NewRequestWithContext(reqCtx, "POST", "/api/withdraw", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	require.Len(t, ctrl.writeErrs, 2)
	for _, err := range ctrl.writeErrs {
		assert.NoError(t, err)
	}
}

func TestHandleWithdraw(t *testing.T) {
	ctrl := newFakeController()
	ctrl.withdrawE = fmt.Errorf("%w: caller is not the owner", models.ErrUnauthorized)
	s := newTestServer(ctrl)

	req, _ := http.NewRequest("POST", "/api/withdraw", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp["kind"])

	ctrl.withdrawE = nil
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(newFakeController())

	req, _ := http.NewRequest("GET", "/api/withdraw", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tipjar_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(newFakeController(), Options{Gatherer: reg})
	req, _ := http.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tipjar_test_total 1")
}

func TestHandleWS(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	sub := ctrl.Subscribe()
	go s.listenToController(sub)
	defer close(sub)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "initial", msg["type"])

	sub <- controller.Event{Type: controller.EventNotice, Data: models.Notice{Level: "info", Text: "Tip sent!"}}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]interface{}
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, string(controller.EventNotice), ev["type"])
	data, ok := ev["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Tip sent!", data["text"])
}
