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

// EvaluationService defines the evaluation operations the handlers drive.
type EvaluationService interface {
	Create(ctx context.Context, judgeID *big.Int, qualities []string) (service.EvaluationOutcome, error)
	Vote(ctx context.Context, judgeID *big.Int, voter protocol.Identity, quality string) (service.EvaluationOutcome, error)
	End(ctx context.Context, judgeID *big.Int) (service.EvaluationOutcome, error)
	State(ctx context.Context, judgeID *big.Int) (service.EvaluationSnapshot, error)
	Results(ctx context.Context, judgeID *big.Int) ([]ranking.Tally, error)
}

type createEvaluationRequest struct {
	JudgeID   *decimal.Decimal `json:"judge_id"`
	Qualities []string         `json:"qualities"`
}

type voteRequest struct {
	Voter   string `json:"voter"`
	Quality string `json:"quality"`
}

type qualityView struct {
	Name   string   `json:"name"`
	Voters []string `json:"voters"`
}

type evaluationView struct {
	JudgeID         string        `json:"judge_id"`
	State           string        `json:"state"`
	Admin           string        `json:"admin,omitempty"`
	Qualities       []qualityView `json:"qualities"`
	OutRef          string        `json:"out_ref,omitempty"`
	DepositLovelace uint64        `json:"deposit_lovelace,omitempty"`
	DepositADA      string        `json:"deposit_ada,omitempty"`
}

type tallyView struct {
	Quality string   `json:"quality"`
	Votes   int      `json:"votes"`
	Voters  []string `json:"voters"`
}

func identities(ids []protocol.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func newEvaluationView(id *big.Int, snap service.EvaluationSnapshot) *evaluationView {
	v := &evaluationView{JudgeID: id.String(), State: string(snap.State), Qualities: []qualityView{}}
	if snap.State == service.StateAbsent {
		return v
	}
	v.Admin = snap.Record.Admin.String()
	for _, q := range snap.Record.Qualities {
		v.Qualities = append(v.Qualities, qualityView{Name: string(q.Name), Voters: identities(q.Voters)})
	}
	v.OutRef = snap.Output.Ref.String()
	v.DepositLovelace = snap.Output.Lovelace
	v.DepositADA = ada(snap.Output.Lovelace)
	return v
}

// EvaluationsHandler serves the evaluation routes.
type EvaluationsHandler struct {
	deps EvaluationService
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps EvaluationService) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

// HandleCreate handles POST /evaluations.
func (h *EvaluationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_evaluation"
	var req createEvaluationRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := wholeNumber(op, "judge_id", req.JudgeID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.Create(r.Context(), id, req.Qualities)
	writeTx(w, http.StatusCreated, out.TxHash, out.State, func() *evaluationView { return newEvaluationView(id, out.Snapshot) }, err)
}

// HandleGet handles GET /evaluations/{id}.
func (h *EvaluationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_evaluation"
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
	writeJSON(w, http.StatusOK, newEvaluationView(id, snap))
}

// HandleVote handles POST /evaluations/{id}/votes.
func (h *EvaluationsHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.vote"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req voteRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	voter, err := identity(op, "voter", req.Voter)
	if err != nil {
		writeError(w, err)
		return
	}
	quality := req.Quality
	if quality == "" {
		quality = service.DefaultQuality
	}
	out, err := h.deps.Vote(r.Context(), id, voter, quality)
	writeTx(w, http.StatusOK, out.TxHash, out.State, func() *evaluationView { return newEvaluationView(id, out.Snapshot) }, err)
}

// HandleResults handles GET /evaluations/{id}/results.
func (h *EvaluationsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	const op = "api.results"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tallies, err := h.deps.Results(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tallyView, len(tallies))
	for i, t := range tallies {
		out[i] = tallyView{Quality: t.Quality, Votes: t.Votes, Voters: identities(t.Voters)}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleEnd handles POST /evaluations/{id}/end.
func (h *EvaluationsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_evaluation"
	id, err := pathID(op, r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.deps.End(r.Context(), id)
	writeTx(w, http.StatusOK, out.TxHash, out.State, func() *evaluationView { return newEvaluationView(id, out.Snapshot) }, err)
}
