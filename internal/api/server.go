// Package api provides the HTTP surface of the node: extrinsic
// submission plus read access to contracts, balances and events.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
)

// Server is the node's HTTP API server.
type Server struct {
	store          *sqlite.DB
	pool           *chain.Pool
	metricsEnabled bool
}

// NewServer creates a new API server over the given store and pool.
func NewServer(store *sqlite.DB, pool *chain.Pool) *Server {
	return &Server{store: store, pool: pool}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/extrinsics", s.handleSubmitExtrinsic)
		r.Get("/contracts/{id}", s.handleContract)
		r.Get("/contracts/{id}/state", s.handleContractState)
		r.Get("/accounts/{account}/reservations", s.handleAccountReservations)
		r.Get("/accounts/{account}/balance", s.handleBalance)
		r.Get("/events", s.handleEvents)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var height, nextID uint64
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		if height, err = tx.Height(); err != nil {
			return err
		}
		nextID, err = tx.ReservationID()
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"height":              height,
		"next_reservation_id": nextID,
		"pool_depth":          s.pool.Depth(),
	})
}

func (s *Server) handleSubmitExtrinsic(w http.ResponseWriter, r *http.Request) {
	var ext chain.Extrinsic
	if err := json.NewDecoder(r.Body).Decode(&ext); err != nil {
		writeError(w, http.StatusBadRequest, "malformed extrinsic: "+err.Error())
		return
	}

	if err := s.pool.Submit(&ext); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, chain.ErrPoolFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id": ext.ID,
	})
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var contract *domain.Contract
	var volume domain.VolumeType
	var hasVolume bool
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		if contract, err = tx.Contract(id); err != nil {
			return err
		}
		volume, hasVolume, err = tx.Volume(id)
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, domain.ErrContractNotExists.Error())
		return
	}

	resp := map[string]any{"contract": contract}
	if hasVolume {
		resp["volume"] = volume
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContractState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var state domain.WorkloadState
	var found bool
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		state, found, err = tx.ReservationState(id)
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, domain.ErrContractNotExists.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reservation_id": id,
		"state":          state,
	})
}

func (s *Server) handleAccountReservations(w http.ResponseWriter, r *http.Request) {
	account := domain.AccountID(chi.URLParam(r, "account"))

	var ids []uint64
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		ids, err = tx.AccountReservations(account)
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []uint64{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":      account,
		"reservations": ids,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := domain.AccountID(chi.URLParam(r, "account"))

	var balance uint64
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		balance, err = tx.Balance(account)
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": balance,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since height")
			return
		}
		since = v
	}

	var events []domain.Event
	err := s.store.View(func(tx *sqlite.Tx) error {
		var err error
		events, err = tx.EventsSince(since)
		return err
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
