package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	service "github.com/vnFuhung2903/rubyams/internal/app"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/ranking"
)

// AuctionService defines the auction operations the handlers drive.
type AuctionService interface {
	Create(ctx context.Context, id, studentsMax *big.Int) (service.AuctionOutcome, error)
	PlaceBid(ctx context.Context, id *big.Int, bidder protocol.Identity, amount *big.Int) (service.AuctionOutcome, error)
	End(ctx context.Context, id *big.Int) (service.AuctionOutcome, error)
	SendBack(ctx context.Context, id *big.Int, recipient string) (service.AuctionOutcome, error)
	State(ctx context.Context, id *big.Int) (service.AuctionSnapshot, error)
	Bids(ctx context.Context, id *big.Int) ([]protocol.Bid, error)
	Standings(ctx context.Context, id *big.Int) ([]ranking.Standing, error)
}

type createAuctionRequest struct {
	AuctionID   *decimal.Decimal `json:"auction_id"`
	StudentsMax *decimal.Decimal `json:"students_max"`
}

type bidRequest struct {
	Bidder string           `json:"bidder"`
	Amount *decimal.Decimal `json:"amount"`
}

type sendBackRequest struct {
	Recipient string `json:"recipient"`
}

type bidView struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

type auctionView struct {
	AuctionID       string    `json:"auction_id"`
	State           string    `json:"state"`
	Admin           string    `json:"admin,omitempty"`
	StudentsMax     string    `json:"students_max,omitempty"`
	Bids            []bidView `json:"bids"`
	OutRef          string    `json:"out_ref,omitempty"`
	DepositLovelace uint64    `json:"deposit_lovelace,omitempty"`
	DepositADA      string    `json:"deposit_ada,omitempty"`
}

type standingView struct {
	Rank   int    `json:"rank"`
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
	Bids   int    `json:"bids"`
	Winner bool   `json:"winner"`
}

func bidViews(bids []protocol.Bid) []bidView {
	out := make([]bidView, len(bids))
	for i, b := range bids {
		out[i] = bidView{Bidder: b.Bidder.String(), Amount: intString(b.Amount)}
	}
	return out
}

func newAuctionView(id *big.Int, snap service.AuctionSnapshot) *auctionView {
	v := &auctionView{AuctionID: id.String(), State: string(snap.State), Bids: []bidView{}}
	if snap.State == service.StateAbsent {
		return v
	}
	v.Admin = snap.Record.Admin.String()
	v.StudentsMax = intString(snap.Record.StudentsMax)
	v.Bids = bidViews(snap.Record.Bids)
	v.OutRef = snap.Output.Ref.String()
	v.DepositLovelace = snap.Output.Lovelace
	v.DepositADA = ada(snap.Output.Lovelace)
	return v
}

// AuctionsHandler serves the auction routes.
type AuctionsHandler struct {
	deps AuctionService
}

// NewAuctionsHandler creates a new auctions handler.
func NewAuctionsHandler(deps AuctionService) *AuctionsHandler {
	return &AuctionsHandler{deps: deps}
}

// HandleCreate handles POST /auctions.
func (h *AuctionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_auction"
	var req createAuctionRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := wholeNumber(op, "auction_id", req.AuctionID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	studentsMax, err := wholeNumber(op, "students_max", req.StudentsMax, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.Create(r.Context(), id, studentsMax)
	writeTx(w, http.StatusCreated, out.TxHash, out.State, func() *auctionView { return newAuctionView(id, out.Snapshot) }, err)
}

// HandleGet handles GET /auctions/{id}.
func (h *AuctionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_auction"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.deps.State(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap.State == service.StateAbsent {
		writeError(w, NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(id, snap))
}

// HandlePlaceBid handles POST /auctions/{id}/bids.
func (h *AuctionsHandler) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	const op = "api.place_bid"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req bidRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	bidder, err := identity(op, "bidder", req.Bidder)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := wholeNumber(op, "amount", req.Amount, 1)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.PlaceBid(r.Context(), id, bidder, amount)
	writeTx(w, http.StatusOK, out.TxHash, out.State, func() *auctionView { return newAuctionView(id, out.Snapshot) }, err)
}

// HandleBids handles GET /auctions/{id}/bids.
func (h *AuctionsHandler) HandleBids(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_bids"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	bids, err := h.deps.Bids(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bidViews(bids))
}

// HandleStandings handles GET /auctions/{id}/standings.
func (h *AuctionsHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	const op = "api.standings"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	standings, err := h.deps.Standings(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]standingView, len(standings))
	for i, s := range standings {
		out[i] = standingView{Rank: s.Rank, Bidder: s.Bidder.String(), Amount: intString(s.Amount), Bids: s.Bids, Winner: s.Winner}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleEnd handles POST /auctions/{id}/end.
func (h *AuctionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_auction"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.End(r.Context(), id)
	writeTx(w, http.StatusOK, out.TxHash, out.State, func() *auctionView { return newAuctionView(id, out.Snapshot) }, err)
}

// HandleSendBack handles POST /auctions/{id}/send-back.
func (h *AuctionsHandler) HandleSendBack(w http.ResponseWriter, r *http.Request) {
	const op = "api.send_back"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendBackRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Recipient == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	out, err := h.deps.SendBack(r.Context(), id, req.Recipient)
	writeTx(w, http.StatusOK, out.TxHash, out.State, func() *auctionView { return newAuctionView(id, out.Snapshot) }, err)
}
