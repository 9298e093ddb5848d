package protocol_test

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/domain/plutus"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
)

func TestAuctionLayout(t *testing.T) {
	Convey("Auction records encode to the validator layout", t, func() {
		rec := protocol.NewAuction(protocol.Identity("admin"), big.NewInt(7), big.NewInt(10))

		raw, err := protocol.EncodeAuction(rec)
		So(err, ShouldBeNil)
		So(hex.EncodeToString(raw), ShouldEqual, "d8799f4561646d696e07d87980800aff")

		withBid := rec.WithBid(protocol.Bid{Bidder: protocol.Identity("alice"), Amount: big.NewInt(100)})
		raw, err = protocol.EncodeAuction(withBid)
		So(err, ShouldBeNil)
		So(hex.EncodeToString(raw), ShouldEqual, "d8799f4561646d696e07d879809fd8799f45616c6963651864ffff0aff")

		// The original record is untouched.
		So(len(rec.Bids), ShouldEqual, 0)
	})
}

func TestAuctionRoundTrip(t *testing.T) {
	Convey("A closed auction with bids round-trips", t, func() {
		rec := protocol.NewAuction(protocol.Identity("admin"), big.NewInt(42), big.NewInt(3)).
			WithBid(protocol.Bid{Bidder: protocol.Identity("alice"), Amount: big.NewInt(5)}).
			WithBid(protocol.Bid{Bidder: protocol.Identity("bob"), Amount: big.NewInt(9)}).
			Closing()

		raw, err := protocol.EncodeAuction(rec)
		So(err, ShouldBeNil)

		got, err := protocol.DecodeAuction(raw)
		So(err, ShouldBeNil)
		So(rec.Equal(got), ShouldBeTrue)
		So(got.IsClosed(), ShouldBeTrue)
		So(got.LogicalID().Int64(), ShouldEqual, int64(42))
	})
}

func TestEvaluationLayout(t *testing.T) {
	Convey("Evaluation records encode to the validator layout", t, func() {
		rec := protocol.NewEvaluation(protocol.Identity("admin"), big.NewInt(3), "Quality")

		raw, err := protocol.EncodeEvaluation(rec)
		So(err, ShouldBeNil)
		So(hex.EncodeToString(raw), ShouldEqual, "d8799f4561646d696e03d879809fd8799f475175616c69747980ffffff")
	})
}

func TestEvaluationVotes(t *testing.T) {
	Convey("Votes land on the named quality", t, func() {
		rec := protocol.NewEvaluation(protocol.Identity("admin"), big.NewInt(1), "Clarity", "Rigor")

		voted, err := rec.WithVote(protocol.Identity("carol"), []byte("Rigor"))
		So(err, ShouldBeNil)
		So(len(voted.Qualities[0].Voters), ShouldEqual, 0)
		So(len(voted.Qualities[1].Voters), ShouldEqual, 1)
		So(voted.Qualities[1].Voters[0].String(), ShouldEqual, "carol")

		_, err = rec.WithVote(protocol.Identity("carol"), []byte("Speed"))
		So(errors.Is(err, protocol.ErrUnknownQuality), ShouldBeTrue)

		raw, err := protocol.EncodeEvaluation(voted.Closing())
		So(err, ShouldBeNil)
		got, err := protocol.DecodeEvaluation(raw)
		So(err, ShouldBeNil)
		So(voted.Closing().Equal(got), ShouldBeTrue)
		So(voted.Equal(got), ShouldBeFalse)
	})
}

func TestMalformedDatum(t *testing.T) {
	Convey("Datums of the wrong shape are malformed", t, func() {
		cases := []struct {
			name string
			data plutus.Data
		}{
			{"not a constructor", plutus.NewInt(1)},
			{"too few fields", plutus.NewConstr(0, plutus.Bytes("a"), plutus.NewInt(1), plutus.Bool(false), plutus.List{})},
			{"wrong constructor", plutus.NewConstr(1, plutus.Bytes("a"), plutus.NewInt(1), plutus.Bool(false), plutus.List{}, plutus.NewInt(1))},
			{"id is bytes", plutus.NewConstr(0, plutus.Bytes("a"), plutus.Bytes("1"), plutus.Bool(false), plutus.List{}, plutus.NewInt(1))},
			{"closed is int", plutus.NewConstr(0, plutus.Bytes("a"), plutus.NewInt(1), plutus.NewInt(0), plutus.List{}, plutus.NewInt(1))},
			{"bid missing amount", plutus.NewConstr(0, plutus.Bytes("a"), plutus.NewInt(1), plutus.Bool(false),
				plutus.List{plutus.NewConstr(0, plutus.Bytes("b"))}, plutus.NewInt(1))},
		}
		for _, tc := range cases {
			Convey(tc.name, func() {
				_, err := protocol.AuctionFromData(tc.data)
				So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
			})
		}

		_, err := protocol.DecodeAuction([]byte{0xff})
		So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
		So(errors.Is(err, plutus.ErrDecode), ShouldBeTrue)

		// An auction datum is not a valid evaluation datum once the quality list
		// is checked.
		auction, err := protocol.EncodeAuction(protocol.NewAuction(protocol.Identity("a"), big.NewInt(1), big.NewInt(1)).
			WithBid(protocol.Bid{Bidder: protocol.Identity("b"), Amount: big.NewInt(1)}))
		So(err, ShouldBeNil)
		_, err = protocol.DecodeEvaluation(auction)
		So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
	})
}

func TestAuctionActions(t *testing.T) {
	Convey("Auction redeemers encode and decode", t, func() {
		actions := []struct {
			action protocol.AuctionAction
			want   string
		}{
			{protocol.CreateAuction{AuctionID: big.NewInt(1), StudentsMax: big.NewInt(10)}, "d8799f010aff"},
			{protocol.PlaceBid{Amount: big.NewInt(100)}, "d87a9f1864ff"},
			{protocol.EndAuction{AuctionID: big.NewInt(1)}, "d87b9f01ff"},
			{protocol.SendBack{Recipient: []byte("bob")}, "d87c9f43626f62ff"},
		}
		for _, tc := range actions {
			Convey(tc.action.Name(), func() {
				raw, err := protocol.EncodeRedeemer(tc.action)
				So(err, ShouldBeNil)
				So(hex.EncodeToString(raw), ShouldEqual, tc.want)

				d, err := plutus.Decode(raw)
				So(err, ShouldBeNil)
				back, err := protocol.AuctionActionFromData(d)
				So(err, ShouldBeNil)
				So(back.Name(), ShouldEqual, tc.action.Name())
				So(plutus.Equal(tc.action.ToData(), back.ToData()), ShouldBeTrue)
			})
		}

		_, err := protocol.AuctionActionFromData(plutus.NewConstr(4, plutus.NewInt(1)))
		So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
		_, err = protocol.AuctionActionFromData(plutus.NewConstr(1))
		So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
	})
}

func TestEvaluationActions(t *testing.T) {
	Convey("Evaluation redeemers encode and decode", t, func() {
		actions := []struct {
			action protocol.EvaluationAction
			want   string
		}{
			{protocol.CreateEvaluation{JudgeID: big.NewInt(2)}, "d8799f02ff"},
			{protocol.PlaceVote{Quality: []byte("Q")}, "d87a9f4151ff"},
			{protocol.EndEvaluation{JudgeID: big.NewInt(2)}, "d87b9f02ff"},
		}
		for _, tc := range actions {
			Convey(tc.action.Name(), func() {
				raw, err := protocol.EncodeRedeemer(tc.action)
				So(err, ShouldBeNil)
				So(hex.EncodeToString(raw), ShouldEqual, tc.want)

				d, err := plutus.Decode(raw)
				So(err, ShouldBeNil)
				back, err := protocol.EvaluationActionFromData(d)
				So(err, ShouldBeNil)
				So(plutus.Equal(tc.action.ToData(), back.ToData()), ShouldBeTrue)
			})
		}

		_, err := protocol.EvaluationActionFromData(plutus.Bytes("x"))
		So(errors.Is(err, protocol.ErrMalformedDatum), ShouldBeTrue)
	})
}

func TestOpErrorClassification(t *testing.T) {
	Convey("Operation errors classify by kind", t, func() {
		err := protocol.NewOpError("auction.place_bid", big.NewInt(7),
			fmt.Errorf("locate: %w", protocol.ErrAlreadyClosed))

		So(err.Error(), ShouldEqual, "auction.place_bid[id=7]: locate: record already closed")
		So(errors.Is(err, protocol.ErrAlreadyClosed), ShouldBeTrue)
		So(protocol.KindOf(err) == protocol.ErrAlreadyClosed, ShouldBeTrue)
		So(protocol.NotApplicable(err), ShouldBeTrue)
		So(protocol.Retryable(err), ShouldBeFalse)
		So(protocol.FixInputs(err), ShouldBeFalse)

		timeout := protocol.NewOpError("auction.end", big.NewInt(1), protocol.ErrConfirmationTimeout).WithTxHash("ab")
		So(timeout.Error(), ShouldEqual, "auction.end[id=1][tx=ab]: confirmation timeout")
		So(protocol.Retryable(timeout), ShouldBeTrue)

		var op *protocol.OpError
		So(errors.As(fmt.Errorf("wrapped: %w", timeout), &op), ShouldBeTrue)
		So(op.TxHash, ShouldEqual, "ab")

		So(protocol.FixInputs(protocol.NewOpError("x", nil, protocol.ErrSignFailed)), ShouldBeTrue)
		So(protocol.KindOf(errors.New("other")) == nil, ShouldBeTrue)
	})
}

func TestIdentityString(t *testing.T) {
	Convey("Identities print as text or hex", t, func() {
		So(protocol.Identity("alice").String(), ShouldEqual, "alice")
		So(protocol.Identity{0x00, 0xff}.String(), ShouldEqual, "00ff")
	})
}
