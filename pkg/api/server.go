package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/nftxcards/exchange/pkg/exchange"
)

// Server handles REST API and WebSocket connections
type Server struct {
	engine  *exchange.Engine
	router  *mux.Router
	hub     *Hub // WebSocket hub
	origins []string
}

// NewServer creates a new API server fronting engine. allowedOrigins is
// the CORS allow-list for browser clients.
func NewServer(engine *exchange.Engine, allowedOrigins []string) *Server {
	s := &Server{
		engine:  engine,
		router:  mux.NewRouter(),
		hub:     NewHub(),
		origins: allowedOrigins,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Settlement endpoints
	api.HandleFunc("/orders/match", s.handleMatchOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/settlements", s.handleGetSettlements).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server and the settlement broadcast bridge.
func (s *Server) Start(addr string) error {
	// Start WebSocket hub
	go s.hub.Run()

	// Bridge engine settlement events onto the "settlements" channel
	go func() {
		for rec := range s.engine.Subscribe() {
			s.hub.BroadcastToChannel("settlements", SettlementUpdate{
				Type:       "settlement",
				Settlement: rec,
			})
		}
	}()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleMatchOrder(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Caller == (common.Address{}) {
		respondError(w, http.StatusBadRequest, "missing caller", "")
		return
	}

	rec, err := s.engine.MatchOrder(req.Caller, &req.Order, req.TakerPermit, req.Value)
	if err != nil {
		respondError(w, statusFor(err), "match rejected", err.Error())
		return
	}

	log.Printf("[api] order settled: hash=%s caller=%s", rec.OrderHash.Hex(), req.Caller.Hex())
	respondJSON(w, MatchResponse{Status: "settled", Settlement: rec})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Caller == (common.Address{}) {
		respondError(w, http.StatusBadRequest, "missing caller", "")
		return
	}

	hash, err := s.engine.CancelOrder(req.Caller, &req.Order)
	if err != nil {
		respondError(w, statusFor(err), "cancel rejected", err.Error())
		return
	}

	log.Printf("[api] order cancelled: hash=%s", hash.Hex())
	respondJSON(w, CancelResponse{Status: "cancelled", OrderHash: hash})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hashStr := vars["hash"]

	hashBytes, err := hexDecodeHash(hashStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order hash", err.Error())
		return
	}

	status, err := s.engine.Status(hashBytes)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "status lookup failed", err.Error())
		return
	}

	respondJSON(w, OrderStatusResponse{OrderHash: hashBytes, Status: status.String()})
}

func (s *Server) handleGetSettlements(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	recs, err := s.engine.Settlements(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "settlement scan failed", err.Error())
		return
	}
	if recs == nil {
		recs = []*exchange.SettlementRecord{}
	}

	respondJSON(w, recs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	domain := s.engine.Domain()
	treas := s.engine.TreasuryConfig()

	respondJSON(w, ConfigResponse{
		ChainID:       domain.ChainID,
		Contract:      domain.VerifyingContract,
		DomainName:    domain.Name,
		DomainVersion: domain.Version,
		Treasury:      treas.Treasury,
		FeeBps:        treas.FeeBps,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps engine errors onto HTTP status codes: malformed input is
// 400, authorization failures 403, insufficient balance or approval 402,
// order-state conflicts 409, everything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrInvalidCommodity),
		errors.Is(err, exchange.ErrInvalidPayment),
		errors.Is(err, exchange.ErrZeroPrice),
		errors.Is(err, exchange.ErrMalformedSignature),
		errors.Is(err, exchange.ErrBadPermit):
		return http.StatusBadRequest

	case errors.Is(err, exchange.ErrInvalidSignature),
		errors.Is(err, exchange.ErrInvalidTaker),
		errors.Is(err, exchange.ErrNotOrderOwner),
		errors.Is(err, exchange.ErrNotStarted),
		errors.Is(err, exchange.ErrExpired),
		errors.Is(err, exchange.ErrPermitExpired),
		errors.Is(err, exchange.ErrPermitInvalidSigner),
		errors.Is(err, exchange.ErrPermitReplayed),
		errors.Is(err, exchange.ErrNotAdmin):
		return http.StatusForbidden

	case errors.Is(err, exchange.ErrWrongState):
		return http.StatusConflict

	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrInsufficientAllowance),
		errors.Is(err, exchange.ErrInsufficientValue),
		errors.Is(err, exchange.ErrNotOwnerOrApproved),
		errors.Is(err, exchange.ErrNotApproved):
		return http.StatusPaymentRequired

	default:
		return http.StatusInternalServerError
	}
}

func hexDecodeHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, errors.New("hash must be 32 bytes")
	}
	return common.BytesToHash(b), nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
