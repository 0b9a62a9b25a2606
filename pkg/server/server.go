package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"tipjar/pkg/controller"
	"tipjar/pkg/models"
	"tipjar/pkg/utils"
	"tipjar/pkg/view"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the subset of the synchronization controller the server drives.
type Controller interface {
	Snapshot() models.State
	Subscribe() controller.Subscriber
	Unsubscribe(controller.Subscriber)
	Refresh(ctx context.Context) error
	SendTip(ctx context.Context, message string, amount *big.Int) error
	Withdraw(ctx context.Context) error
}

type Options struct {
	View view.Options
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	ctrl    Controller
	opts    view.Options
	logger  *slog.Logger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	router  *mux.Router
	// ctx bounds refreshes and writes; a write outlives the request that
	// started it once the transaction may be broadcast.
	ctx context.Context
}

type tipRequest struct {
	Message string `json:"message"`
	Amount  string `json:"amount"`
}

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(ctrl Controller, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctrl:    ctrl,
		opts:    opts.View,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
		router:  mux.NewRouter(),
		ctx:     context.Background(),
	}
	s.routes(opts.Gatherer)
	return s
}

func (s *Server) routes(g prometheus.Gatherer) {
	s.router.HandleFunc("/api/state", s.handleState).Methods("GET")
	s.router.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/api/tips", s.handleTip).Methods("POST")
	s.router.HandleFunc("/api/withdraw", s.handleWithdraw).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWS).Methods("GET")

	metricsHandler := promhttp.Handler()
	if g != nil {
		metricsHandler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	s.router.Handle("/metrics", metricsHandler).Methods("GET")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	s.ctx = ctx
	sub := s.ctrl.Subscribe()
	go s.listenToController(sub)
	defer s.ctrl.Unsubscribe(sub)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) renderModel() view.RenderModel {
	return view.Project(s.ctrl.Snapshot(), s.opts)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.renderModel())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.ctrl.Refresh(s.ctx); err != nil && !errors.Is(err, models.ErrNotConnected) {
			s.logger.Warn("refresh failed", "err", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var req tipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	amount, err := utils.ParseEther(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.ctrl.SendTip(s.ctx, req.Message, amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderModel())
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Withdraw(s.ctx); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderModel())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Initial state goes out before the connection joins the broadcast set.
	s.mu.Lock()
	err = conn.WriteJSON(wsMessage{Type: "initial", Data: s.renderModel()})
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToController(sub controller.Subscriber) {
	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event controller.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrTransactionRejected):
		return http.StatusForbidden
	case errors.Is(err, models.ErrOperationInProgress), errors.Is(err, models.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, models.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	if kind := models.ErrorKind(err); kind != "unknown" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}
