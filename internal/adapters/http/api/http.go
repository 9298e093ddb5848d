// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	service "github.com/vnFuhung2903/rubyams/internal/app"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	auctionsHandler    *AuctionsHandler
	evaluationsHandler *EvaluationsHandler
	activityHandler    *ActivityHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(auctions AuctionService, evaluations EvaluationService, activity ActivityReader, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		auctionsHandler:    NewAuctionsHandler(auctions),
		evaluationsHandler: NewEvaluationsHandler(evaluations),
		activityHandler:    NewActivityHandler(activity),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	a := s.auctionsHandler
	mux.HandleFunc("POST /auctions", MetricsMiddleware(a.HandleCreate, "auctions_create"))
	mux.HandleFunc("GET /auctions/{id}", MetricsMiddleware(a.HandleGet, "auctions_get"))
	mux.HandleFunc("POST /auctions/{id}/bids", MetricsMiddleware(a.HandlePlaceBid, "auctions_bid"))
	mux.HandleFunc("GET /auctions/{id}/bids", MetricsMiddleware(a.HandleBids, "auctions_bids"))
	mux.HandleFunc("GET /auctions/{id}/standings", MetricsMiddleware(a.HandleStandings, "auctions_standings"))
	mux.HandleFunc("POST /auctions/{id}/end", MetricsMiddleware(a.HandleEnd, "auctions_end"))
	mux.HandleFunc("POST /auctions/{id}/send-back", MetricsMiddleware(a.HandleSendBack, "auctions_send_back"))

	e := s.evaluationsHandler
	mux.HandleFunc("POST /evaluations", MetricsMiddleware(e.HandleCreate, "evaluations_create"))
	mux.HandleFunc("GET /evaluations/{id}", MetricsMiddleware(e.HandleGet, "evaluations_get"))
	mux.HandleFunc("POST /evaluations/{id}/votes", MetricsMiddleware(e.HandleVote, "evaluations_vote"))
	mux.HandleFunc("GET /evaluations/{id}/results", MetricsMiddleware(e.HandleResults, "evaluations_results"))
	mux.HandleFunc("POST /evaluations/{id}/end", MetricsMiddleware(e.HandleEnd, "evaluations_end"))

	mux.HandleFunc("GET /activity/{txHash}", MetricsMiddleware(s.activityHandler.HandleGet, "activity_get"))
	mux.HandleFunc("GET /activity", MetricsMiddleware(s.activityHandler.HandleList, "activity_list"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// txResponse is returned by every state-changing route.
type txResponse[T any] struct {
	TxHash string `json:"tx_hash,omitempty"`
	State  string `json:"state"`
	Record *T     `json:"record,omitempty"`
}

const statePending = "pending"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// writeTx renders the result of a transition. A confirmation timeout is not
// a failure here: the transaction was accepted and its hash is returned.
func writeTx[T any](w http.ResponseWriter, status int, hash string, state service.State, view func() *T, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, txResponse[T]{TxHash: hash, State: string(state), Record: view()})
	case errors.Is(err, protocol.ErrConfirmationTimeout):
		writeJSON(w, http.StatusAccepted, txResponse[T]{TxHash: hash, State: statePending})
	default:
		writeError(w, err)
	}
}

func decodeBody(op string, r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

// pathID reads a non-negative integer path value.
func pathID(op string, r *http.Request) (*big.Int, error) {
	raw := r.PathValue("id")
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid id %q", raw))
	}
	return id, nil
}

// wholeNumber converts a JSON number to an integer, rejecting fractions and
// values below minimum.
func wholeNumber(op, field string, d *decimal.Decimal, minimum int64) (*big.Int, error) {
	if d == nil {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("missing %s", field))
	}
	if !d.IsInteger() || d.LessThan(decimal.NewFromInt(minimum)) {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("%s must be an integer of at least %d", field, minimum))
	}
	return d.BigInt(), nil
}

// identity turns a request identity into the bytes stored on chain.
// Addresses are stored as their raw bytes, anything else as text.
func identity(op, field, raw string) (protocol.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, WrapKind(op, ErrBadRequest, fmt.Errorf("missing %s", field))
	}
	return protocol.Identity(ledger.AddressBytes(raw)), nil
}

// ada renders lovelace as ADA.
func ada(lovelace uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lovelace), -6).StringFixed(6)
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
