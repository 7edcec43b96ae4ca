package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intentwire/verifier/pkg/approval"
	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/router"
	"github.com/intentwire/verifier/pkg/store"
	"github.com/intentwire/verifier/pkg/validator"
)

// Server exposes the verification API together with health and metrics
// endpoints on a single port.
type Server struct {
	port            string
	store           store.Store
	validator       *validator.Validator
	approvals       *approval.Service
	drafts          *router.Router
	adapters        map[int]chains.Adapter
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker
	metricsAPIKey   string
	logger          logger.Logger

	srv *http.Server
}

// NewServer creates a new API server
func NewServer(
	port string,
	st store.Store,
	v *validator.Validator,
	approvals *approval.Service,
	drafts *router.Router,
	adapters map[int]chains.Adapter,
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker,
	log logger.Logger,
) *Server {
	return &Server{
		port:            port,
		store:           st,
		validator:       v,
		approvals:       approvals,
		drafts:          drafts,
		adapters:        adapters,
		circuitBreakers: circuitBreakers,
		metricsAPIKey:   os.Getenv("METRICS_API_KEY"),
		logger:          log,
	}
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("POST /approval", s.handleApprove)
	mux.HandleFunc("GET /public-key", s.handlePublicKeys)
	mux.HandleFunc("POST /validate-outflow-fulfillment", s.handleValidateOutflow)
	mux.HandleFunc("POST /validate-inflow-escrow", s.handleValidateInflow)

	mux.HandleFunc("POST /draft-intent", s.handleSubmitDraft)
	mux.HandleFunc("GET /draft-intents/pending", s.handlePendingDrafts)
	mux.HandleFunc("POST /draft-intent/{id}/signature", s.handleSubmitSignature)
	mux.HandleFunc("GET /draft-intent/{id}/signature", s.handleGetSignature)

	mux.HandleFunc("POST /circuit/reset", s.handleCircuitReset)
	mux.Handle("GET /metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start starts the API server and blocks until it shuts down.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting API server on port %s", s.port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for chainID, adapter := range s.adapters {
		if err := adapter.Healthy(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Chain %d not reachable: %v", chainID, err)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	for chainID, adapter := range s.adapters {
		circuitStatus := "closed"
		if cb, ok := s.circuitBreakers[chainID]; ok && cb.IsOpen() {
			circuitStatus = "open"
		}

		healthy := true
		if err := adapter.Healthy(r.Context()); err != nil {
			healthy = false
		}

		status[fmt.Sprintf("chain_%d", chainID)] = map[string]interface{}{
			"name":    adapter.Name(),
			"kind":    adapter.Kind(),
			"circuit": circuitStatus,
			"healthy": healthy,
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Records())
}

type approvalRequest struct {
	IntentID  string           `json:"intent_id"`
	Direction models.Direction `json:"direction"`
}

type approvalResponse struct {
	IntentID  string            `json:"intent_id"`
	Direction models.Direction  `json:"direction"`
	Scheme    models.SignScheme `json:"scheme"`
	Signature string            `json:"signature"`
	SignedAt  time.Time         `json:"signed_at"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntentID == "" {
		http.Error(w, "intent_id is required", http.StatusBadRequest)
		return
	}

	record, err := s.approvals.Approve(r.Context(), req.IntentID, req.Direction)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, approvalResponse{
		IntentID:  record.IntentID,
		Direction: record.Direction,
		Scheme:    record.Scheme,
		Signature: hexutil.Encode(record.Signature),
		SignedAt:  record.SignedAt,
	})
}

func (s *Server) handlePublicKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.approvals.PublicKeys())
}

type outflowRequest struct {
	IntentID    string `json:"intent_id"`
	TxReference string `json:"tx_reference,omitempty"`
}

func (s *Server) handleValidateOutflow(w http.ResponseWriter, r *http.Request) {
	var req outflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntentID == "" {
		http.Error(w, "intent_id is required", http.StatusBadRequest)
		return
	}

	fulfillment, err := s.validator.ValidateOutflow(r.Context(), req.IntentID, req.TxReference)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fulfillment)
}

type inflowRequest struct {
	IntentID string `json:"intent_id"`
}

func (s *Server) handleValidateInflow(w http.ResponseWriter, r *http.Request) {
	var req inflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IntentID == "" {
		http.Error(w, "intent_id is required", http.StatusBadRequest)
		return
	}

	escrow, err := s.validator.ValidateInflow(r.Context(), req.IntentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	var req router.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draftID, err := s.drafts.SubmitDraft(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"draft_id": draftID})
}

func (s *Server) handlePendingDrafts(w http.ResponseWriter, _ *http.Request) {
	pending := s.drafts.ListPending()
	if pending == nil {
		pending = []models.DraftIntent{}
	}
	writeJSON(w, http.StatusOK, pending)
}

type signatureRequest struct {
	Solver    string `json:"solver_addr"`
	Signature string `json:"signature"`
}

func (s *Server) handleSubmitSignature(w http.ResponseWriter, r *http.Request) {
	draftID := r.PathValue("id")

	var req signatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Solver == "" {
		http.Error(w, "solver is required", http.StatusBadRequest)
		return
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		http.Error(w, "signature must be 0x-prefixed hex", http.StatusBadRequest)
		return
	}

	if err := s.drafts.SubmitSignature(draftID, req.Solver, signature); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"draft_id": draftID, "solver": req.Solver})
}

func (s *Server) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	draftID := r.PathValue("id")

	signature, solver, found, err := s.drafts.GetSignature(draftID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// A known draft with no winner yet is not an error; clients poll until
	// the state flips to signed.
	if !found {
		writeJSON(w, http.StatusOK, map[string]string{
			"draft_id": draftID,
			"state":    string(models.DraftPending),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"draft_id":  draftID,
		"state":     string(models.DraftSigned),
		"solver":    solver,
		"signature": hexutil.Encode(signature),
	})
}

// handleCircuitReset is an admin control to force a tripped breaker closed.
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	chainIDStr := r.URL.Query().Get("chain")
	if chainIDStr == "" {
		http.Error(w, "Missing chain parameter", http.StatusBadRequest)
		return
	}

	chainID, err := strconv.Atoi(chainIDStr)
	if err != nil {
		http.Error(w, "Invalid chain ID", http.StatusBadRequest)
		return
	}

	cb, ok := s.circuitBreakers[chainID]
	if !ok {
		http.Error(w, fmt.Sprintf("No circuit breaker for chain %d", chainID), http.StatusNotFound)
		return
	}

	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
}

type rejectionResponse struct {
	Error     string            `json:"error"`
	Reason    models.ReasonCode `json:"reason,omitempty"`
	Transient bool              `json:"transient"`
}

// writeError maps rejection reasons onto HTTP status codes. Transient
// rejections mean "not yet observed, retry later", permanent ones mean the
// linkage can never validate.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	reason := models.ReasonOf(err)
	if reason == models.ReasonNone {
		s.logger.Error("Internal error serving request: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusFor(reason), rejectionResponse{
		Error:     err.Error(),
		Reason:    reason,
		Transient: reason.Transient(),
	})
}

func statusFor(reason models.ReasonCode) int {
	switch reason {
	case models.ReasonDraftNotFound:
		return http.StatusNotFound
	case models.ReasonAlreadyClaimed:
		return http.StatusConflict
	case models.ReasonChainUnavailable:
		return http.StatusServiceUnavailable
	}
	if reason.Transient() {
		// the counterpart event has not been observed yet
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
