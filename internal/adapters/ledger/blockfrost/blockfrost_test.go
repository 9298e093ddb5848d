package blockfrost_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/adapters/ledger/blockfrost"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

func utxo(hash string, index int, lovelace string, datum any) map[string]any {
	return map[string]any{
		"tx_hash":      hash,
		"output_index": index,
		"amount": []map[string]string{
			{"unit": "lovelace", "quantity": lovelace},
			{"unit": "abcd0123", "quantity": "1"},
		},
		"inline_datum": datum,
	}
}

type fakeAPI struct {
	pages     map[string][][]map[string]any
	submitted []byte
	confirmed map[string]bool
	reject    bool
	params    string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /addresses/{addr}/utxos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("project_id") != "preprod-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		pages, ok := f.pages[r.PathValue("addr")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status_code":404,"message":"The requested component has not been found."}`)
			return
		}
		var page int
		_, _ = fmt.Sscan(r.URL.Query().Get("page"), &page)
		items := []map[string]any{}
		if page >= 1 && page <= len(pages) {
			items = pages[page-1]
		}
		_ = json.NewEncoder(w).Encode(items)
	})
	mux.HandleFunc("POST /tx/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/cbor" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		if f.reject {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"status_code":400,"message":"BadInputsUTxO"}`)
			return
		}
		f.submitted, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(strings.Repeat("cd", 32))
	})
	mux.HandleFunc("GET /txs/{hash}", func(w http.ResponseWriter, r *http.Request) {
		if !f.confirmed[r.PathValue("hash")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"hash":"`+r.PathValue("hash")+`","block_height":1}`)
	})
	mux.HandleFunc("GET /epochs/latest/parameters", func(w http.ResponseWriter, r *http.Request) {
		if f.params == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, f.params)
	})
	return mux
}

func TestClient(t *testing.T) {
	Convey("Given a Blockfrost endpoint", t, func() {
		ctx := context.Background()
		api := &fakeAPI{pages: map[string][][]map[string]any{}, confirmed: map[string]bool{}}
		srv := httptest.NewServer(api.handler())
		defer srv.Close()
		c := blockfrost.New(srv.URL, "preprod-key", blockfrost.WithLogger(logger.Nop()))

		Convey("Outputs are parsed with lovelace and inline datum", func() {
			api.pages["addr_test1"] = [][]map[string]any{{
				utxo(strings.Repeat("aa", 32), 1, "2000000", "d87980"),
				utxo(strings.Repeat("bb", 32), 0, "5000000", nil),
			}}
			outs, err := c.QueryOutputs(ctx, "addr_test1")
			So(err, ShouldBeNil)
			So(len(outs), ShouldEqual, 2)
			So(outs[0].Ref.Index, ShouldEqual, uint32(1))
			So(outs[0].Lovelace, ShouldEqual, uint64(2_000_000))
			So(outs[0].Datum, ShouldResemble, []byte{0xd8, 0x79, 0x80})
			So(outs[0].Address, ShouldEqual, "addr_test1")
			So(outs[1].HasDatum(), ShouldBeFalse)
		})

		Convey("Full pages are followed", func() {
			first := make([]map[string]any, 100)
			for i := range first {
				first[i] = utxo(strings.Repeat("aa", 32), i, "1000000", nil)
			}
			api.pages["addr_test1"] = [][]map[string]any{first, {utxo(strings.Repeat("bb", 32), 0, "7", nil)}}
			outs, err := c.QueryOutputs(ctx, "addr_test1")
			So(err, ShouldBeNil)
			So(len(outs), ShouldEqual, 101)
			So(outs[100].Lovelace, ShouldEqual, uint64(7))
		})

		Convey("An unknown address has no outputs", func() {
			outs, err := c.QueryOutputs(ctx, "addr_test_empty")
			So(err, ShouldBeNil)
			So(outs, ShouldBeEmpty)
		})

		Convey("Submit posts the signed CBOR", func() {
			hash, err := c.Submit(ctx, ledger.SignedTx{CBOR: []byte{0x84, 0xa0}})
			So(err, ShouldBeNil)
			So(hash, ShouldEqual, strings.Repeat("cd", 32))
			So(api.submitted, ShouldResemble, []byte{0x84, 0xa0})
		})

		Convey("Validation failures are rejections", func() {
			api.reject = true
			_, err := c.Submit(ctx, ledger.SignedTx{CBOR: []byte{0x84}})
			So(errors.Is(err, ledger.ErrRejected), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "BadInputsUTxO")
		})

		Convey("Unsigned transactions are not sent", func() {
			_, err := c.Submit(ctx, ledger.SignedTx{})
			So(err, ShouldNotBeNil)
			So(api.submitted, ShouldBeNil)
		})

		Convey("Confirmation follows the transaction endpoint", func() {
			api.confirmed["ok"] = true
			ok, err := c.IsConfirmed(ctx, "ok")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = c.IsConfirmed(ctx, "missing")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Protocol parameters carry fees, execution prices and the cost model", func() {
			api.params = `{"epoch":120,"min_fee_a":44,"min_fee_b":155381,` +
				`"price_mem":0.0577,"price_step":"0.0000721","collateral_percent":150,` +
				`"cost_models_raw":{"PlutusV1":[1,2],"PlutusV2":[205665,812,1,1,1000]}}`
			p, err := c.ProtocolParams(ctx)
			So(err, ShouldBeNil)
			So(p.MinFeeA, ShouldEqual, uint64(44))
			So(p.MinFeeB, ShouldEqual, uint64(155_381))
			So(p.CollateralPercent, ShouldEqual, uint64(150))
			So(p.PriceMem.Equal(decimal.RequireFromString("0.0577")), ShouldBeTrue)
			So(p.PriceSteps.Equal(decimal.RequireFromString("0.0000721")), ShouldBeTrue)
			So(p.CostModelV2, ShouldResemble, []int64{205665, 812, 1, 1, 1000})
		})

		Convey("A named cost model is ordered by parameter name", func() {
			api.params = `{"min_fee_a":44,"min_fee_b":155381,"price_mem":0.0577,"price_step":0.0000721,` +
				`"cost_models":{"PlutusV2":{"b-arg":2,"a-arg":1,"c-arg":3}}}`
			p, err := c.ProtocolParams(ctx)
			So(err, ShouldBeNil)
			So(p.CostModelV2, ShouldResemble, []int64{1, 2, 3})
		})

		Convey("Parameters without a PlutusV2 cost model are an error", func() {
			api.params = `{"min_fee_a":44,"min_fee_b":155381,"price_mem":0.0577,"price_step":0.0000721}`
			_, err := c.ProtocolParams(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "PlutusV2")
		})

		Convey("Missing execution prices are an error", func() {
			api.params = `{"min_fee_a":44,"cost_models_raw":{"PlutusV2":[1]}}`
			_, err := c.ProtocolParams(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "price_mem")
		})
	})

	Convey("Wrong credentials surface as errors", t, func() {
		api := &fakeAPI{pages: map[string][][]map[string]any{"a": {{}}}}
		srv := httptest.NewServer(api.handler())
		defer srv.Close()
		c := blockfrost.New(srv.URL, "wrong", blockfrost.WithLogger(logger.Nop()))
		_, err := c.QueryOutputs(context.Background(), "a")
		So(err, ShouldNotBeNil)
	})
}
