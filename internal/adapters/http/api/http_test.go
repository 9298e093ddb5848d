package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/adapters/http/api"
	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	service "github.com/vnFuhung2903/rubyams/internal/app"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/ranking"
)

const txHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func openAuction(id int64, bids ...protocol.Bid) service.AuctionSnapshot {
	rec := protocol.NewAuction(protocol.Identity("admin"), big.NewInt(id), big.NewInt(2))
	for _, b := range bids {
		rec = rec.WithBid(b)
	}
	return service.AuctionSnapshot{
		State:  service.StateOpen,
		Output: ledger.Output{Ref: ledger.OutRef{TxHash: txHash, Index: 0}, Lovelace: 2_000_000},
		Record: rec,
	}
}

type fakeAuctions struct {
	snap    service.AuctionSnapshot
	err     error
	lastID  *big.Int
	bidder  protocol.Identity
	amount  *big.Int
	created *big.Int
	to      string
}

func (f *fakeAuctions) outcome(id *big.Int) (service.AuctionOutcome, error) {
	f.lastID = id
	if f.err != nil {
		hash := ""
		if isTimeout(f.err) {
			hash = txHash
		}
		return service.AuctionOutcome{TxHash: hash}, f.err
	}
	return service.AuctionOutcome{TxHash: txHash, Snapshot: f.snap}, nil
}

func (f *fakeAuctions) Create(_ context.Context, id, studentsMax *big.Int) (service.AuctionOutcome, error) {
	f.created = studentsMax
	return f.outcome(id)
}

func (f *fakeAuctions) PlaceBid(_ context.Context, id *big.Int, bidder protocol.Identity, amount *big.Int) (service.AuctionOutcome, error) {
	f.bidder, f.amount = bidder, amount
	return f.outcome(id)
}

func (f *fakeAuctions) End(_ context.Context, id *big.Int) (service.AuctionOutcome, error) {
	return f.outcome(id)
}

func (f *fakeAuctions) SendBack(_ context.Context, id *big.Int, recipient string) (service.AuctionOutcome, error) {
	f.to = recipient
	return f.outcome(id)
}

func (f *fakeAuctions) State(_ context.Context, id *big.Int) (service.AuctionSnapshot, error) {
	f.lastID = id
	return f.snap, f.err
}

func (f *fakeAuctions) Bids(_ context.Context, _ *big.Int) ([]protocol.Bid, error) {
	return f.snap.Record.Bids, f.err
}

func (f *fakeAuctions) Standings(_ context.Context, _ *big.Int) ([]ranking.Standing, error) {
	return ranking.Standings(f.snap.Record), f.err
}

type fakeEvaluations struct {
	snap    service.EvaluationSnapshot
	err     error
	quality string
	created []string
}

func (f *fakeEvaluations) Create(_ context.Context, _ *big.Int, qualities []string) (service.EvaluationOutcome, error) {
	f.created = qualities
	return service.EvaluationOutcome{TxHash: txHash, Snapshot: f.snap}, f.err
}

func (f *fakeEvaluations) Vote(_ context.Context, _ *big.Int, _ protocol.Identity, quality string) (service.EvaluationOutcome, error) {
	f.quality = quality
	if f.err != nil {
		return service.EvaluationOutcome{}, f.err
	}
	return service.EvaluationOutcome{TxHash: txHash, Snapshot: f.snap}, nil
}

func (f *fakeEvaluations) End(_ context.Context, _ *big.Int) (service.EvaluationOutcome, error) {
	return service.EvaluationOutcome{TxHash: txHash, Snapshot: f.snap}, f.err
}

func (f *fakeEvaluations) State(_ context.Context, _ *big.Int) (service.EvaluationSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeEvaluations) Results(_ context.Context, _ *big.Int) ([]ranking.Tally, error) {
	return ranking.Tallies(f.snap.Record), f.err
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "trackerWorkers": 4}
}

func isTimeout(err error) bool {
	return protocol.KindOf(err) == protocol.ErrConfirmationTimeout
}

func opErr(kind error) error {
	return protocol.NewOpError("auction.test", big.NewInt(1), kind)
}

type fixture struct {
	auctions    *fakeAuctions
	evaluations *fakeEvaluations
	activity    *journal.Memory
	mux         *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{
		auctions:    &fakeAuctions{snap: openAuction(1)},
		evaluations: &fakeEvaluations{},
		activity:    journal.NewMemory(),
		mux:         http.NewServeMux(),
	}
	rec := protocol.NewEvaluation(protocol.Identity("admin"), big.NewInt(4), "Clarity", "Depth")
	rec, _ = rec.WithVote(protocol.Identity("alice"), []byte("Depth"))
	f.evaluations.snap = service.EvaluationSnapshot{
		State:  service.StateOpen,
		Output: ledger.Output{Ref: ledger.OutRef{TxHash: txHash, Index: 1}, Lovelace: 2_500_000},
		Record: rec,
	}
	api.NewServer(f.auctions, f.evaluations, f.activity, fakeStats{}).Register(context.Background(), f.mux)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		f := newFixture()

		Convey("Health and metrics are served from the registry", func() {
			So(f.do("GET", "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(f.do("GET", "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Stats are rendered as JSON", func() {
			w := f.do("GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldBeTrue)
		})

		Convey("Unknown routes are not found", func() {
			So(f.do("GET", "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Wrong methods are refused", func() {
			So(f.do("DELETE", "/auctions/1", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAuctionRoutes(t *testing.T) {
	Convey("Given the auction routes", t, func() {
		f := newFixture()

		Convey("POST /auctions creates and returns the record", func() {
			w := f.do("POST", "/auctions", `{"auction_id": 1, "students_max": "2"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			body := decode(w)
			So(body["tx_hash"], ShouldEqual, txHash)
			So(body["state"], ShouldEqual, "open")
			record := body["record"].(map[string]any)
			So(record["auction_id"], ShouldEqual, "1")
			So(record["deposit_ada"], ShouldEqual, "2.000000")
			So(record["admin"], ShouldEqual, "admin")
			So(f.auctions.created.Int64(), ShouldEqual, 2)
		})

		Convey("Fractional or missing numbers are bad requests", func() {
			So(f.do("POST", "/auctions", `{"auction_id": 1.5, "students_max": 2}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/auctions", `{"students_max": 2}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/auctions", `not json`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A duplicate create is a conflict", func() {
			f.auctions.err = opErr(protocol.ErrAlreadyExists)
			w := f.do("POST", "/auctions", `{"auction_id": 1, "students_max": 2}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode(w)["code"], ShouldEqual, "already_exists")
		})

		Convey("GET /auctions/{id} renders the located record", func() {
			f.auctions.snap = openAuction(7, protocol.Bid{Bidder: protocol.Identity("bob"), Amount: big.NewInt(30)})
			w := f.do("GET", "/auctions/7", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["out_ref"], ShouldEqual, txHash+"#0")
			bids := body["bids"].([]any)
			So(len(bids), ShouldEqual, 1)
			So(bids[0].(map[string]any)["amount"], ShouldEqual, "30")
			So(f.auctions.lastID.Int64(), ShouldEqual, 7)
		})

		Convey("An absent auction is not found", func() {
			f.auctions.snap = service.AuctionSnapshot{State: service.StateAbsent}
			So(f.do("GET", "/auctions/7", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A malformed id is a bad request", func() {
			So(f.do("GET", "/auctions/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/auctions/-3", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Bids carry the bidder identity and the amount", func() {
			w := f.do("POST", "/auctions/1/bids", `{"bidder": "alice", "amount": "120000000000000000000"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(string(f.auctions.bidder), ShouldEqual, "alice")
			So(f.auctions.amount.String(), ShouldEqual, "120000000000000000000")
		})

		Convey("Non-positive bids are refused before the facade", func() {
			So(f.do("POST", "/auctions/1/bids", `{"bidder": "alice", "amount": 0}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("POST", "/auctions/1/bids", `{"amount": 5}`).Code, ShouldEqual, http.StatusBadRequest)
			So(f.auctions.lastID, ShouldBeNil)
		})

		Convey("Bids on a closed auction are a conflict", func() {
			f.auctions.err = opErr(protocol.ErrAlreadyClosed)
			So(f.do("POST", "/auctions/1/bids", `{"bidder": "alice", "amount": 5}`).Code, ShouldEqual, http.StatusConflict)
		})

		Convey("A confirmation timeout is accepted with the hash", func() {
			f.auctions.err = opErr(protocol.ErrConfirmationTimeout)
			w := f.do("POST", "/auctions/1/end", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			body := decode(w)
			So(body["tx_hash"], ShouldEqual, txHash)
			So(body["state"], ShouldEqual, "pending")
		})

		Convey("A rejected submission is a bad gateway", func() {
			f.auctions.err = opErr(protocol.ErrSubmitRejected)
			So(f.do("POST", "/auctions/1/end", "").Code, ShouldEqual, http.StatusBadGateway)
		})

		Convey("Standings rank bidders", func() {
			f.auctions.snap = openAuction(1,
				protocol.Bid{Bidder: protocol.Identity("alice"), Amount: big.NewInt(10)},
				protocol.Bid{Bidder: protocol.Identity("bob"), Amount: big.NewInt(30)})
			w := f.do("GET", "/auctions/1/standings", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rows []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows[0]["bidder"], ShouldEqual, "bob")
			So(rows[0]["rank"], ShouldEqual, 1.0)
			So(rows[1]["winner"], ShouldBeTrue)
		})

		Convey("Listing bids of a missing auction is not found", func() {
			f.auctions.err = opErr(protocol.ErrRecordNotFound)
			So(f.do("GET", "/auctions/1/bids", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("SendBack needs a recipient", func() {
			So(f.do("POST", "/auctions/1/send-back", `{}`).Code, ShouldEqual, http.StatusBadRequest)

			f.auctions.snap = service.AuctionSnapshot{State: service.StateAbsent}
			w := f.do("POST", "/auctions/1/send-back", `{"recipient": "addr_test1xyz"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(f.auctions.to, ShouldEqual, "addr_test1xyz")
			So(decode(w)["state"], ShouldEqual, "absent")
		})

		Convey("SendBack of an open auction is a conflict", func() {
			f.auctions.err = opErr(protocol.ErrNotClosed)
			w := f.do("POST", "/auctions/1/send-back", `{"recipient": "addr_test1xyz"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode(w)["code"], ShouldEqual, "not_closed")
		})
	})
}

func TestEvaluationRoutes(t *testing.T) {
	Convey("Given the evaluation routes", t, func() {
		f := newFixture()

		Convey("POST /evaluations passes the qualities through", func() {
			w := f.do("POST", "/evaluations", `{"judge_id": 4, "qualities": ["Clarity", "Depth"]}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(f.evaluations.created, ShouldResemble, []string{"Clarity", "Depth"})
			record := decode(w)["record"].(map[string]any)
			So(len(record["qualities"].([]any)), ShouldEqual, 2)
			So(record["deposit_ada"], ShouldEqual, "2.500000")
		})

		Convey("A vote without a quality uses the default", func() {
			So(f.do("POST", "/evaluations/4/votes", `{"voter": "bob"}`).Code, ShouldEqual, http.StatusOK)
			So(f.evaluations.quality, ShouldEqual, service.DefaultQuality)
		})

		Convey("An unknown quality is unprocessable", func() {
			f.evaluations.err = opErr(protocol.ErrUnknownQuality)
			w := f.do("POST", "/evaluations/4/votes", `{"voter": "bob", "quality": "Humor"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode(w)["code"], ShouldEqual, "unknown_quality")
		})

		Convey("Results tally the voters", func() {
			w := f.do("GET", "/evaluations/4/results", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rows []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
			So(rows[1]["quality"], ShouldEqual, "Depth")
			So(rows[1]["votes"], ShouldEqual, 1.0)
			So(rows[1]["voters"], ShouldResemble, []any{"alice"})
		})

		Convey("GET /evaluations/{id} and end", func() {
			So(f.do("GET", "/evaluations/4", "").Code, ShouldEqual, http.StatusOK)
			So(f.do("POST", "/evaluations/4/end", "").Code, ShouldEqual, http.StatusOK)

			f.evaluations.snap = service.EvaluationSnapshot{State: service.StateAbsent}
			So(f.do("GET", "/evaluations/4", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestActivityRoutes(t *testing.T) {
	Convey("Given a journal with entries", t, func() {
		f := newFixture()
		ctx := context.Background()
		for i := range 3 {
			_, err := f.activity.Create(ctx, model.Activity{
				TxHash:    fmt.Sprintf("%064d", i),
				Machine:   model.MachineAuction,
				Action:    protocol.ActionPlaceBid,
				LogicalID: "1",
				Actor:     "addr_test1actor",
			})
			So(err, ShouldBeNil)
		}

		Convey("An entry is found by hash", func() {
			w := f.do("GET", "/activity/"+fmt.Sprintf("%064d", 1), "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["action"], ShouldEqual, protocol.ActionPlaceBid)
		})

		Convey("An unknown hash is not found", func() {
			So(f.do("GET", "/activity/deadbeef", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Entries are paged per actor", func() {
			w := f.do("GET", "/activity?actor=addr_test1actor&page=1&page_size=2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(len(body["items"].([]any)), ShouldEqual, 2)
			So(body["page_size"], ShouldEqual, 2.0)

			w = f.do("GET", "/activity?actor=addr_test1actor&page=2&page_size=2", "")
			So(len(decode(w)["items"].([]any)), ShouldEqual, 1)
		})

		Convey("Paging parameters are validated", func() {
			So(f.do("GET", "/activity", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/activity?actor=a&page=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/activity?actor=a&page_size=1000", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/activity?actor=a&page=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
