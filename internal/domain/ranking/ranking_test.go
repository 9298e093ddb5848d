package ranking_test

import (
	"math/big"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/ranking"
)

func bid(who string, amount int64) protocol.Bid {
	return protocol.Bid{Bidder: protocol.Identity(who), Amount: big.NewInt(amount)}
}

func TestStandings(t *testing.T) {
	Convey("Given an auction with repeated and tied bids", t, func() {
		rec := protocol.NewAuction(protocol.Identity("admin"), big.NewInt(1), big.NewInt(2)).
			WithBid(bid("alice", 10)).
			WithBid(bid("bob", 30)).
			WithBid(bid("carol", 20)).
			WithBid(bid("alice", 30)).
			WithBid(bid("dave", 5))

		standings := ranking.Standings(rec)

		Convey("Each bidder appears once with their best bid", func() {
			So(len(standings), ShouldEqual, 4)
			So(standings[0].Bidder.String(), ShouldEqual, "alice")
			So(standings[0].Amount.Int64(), ShouldEqual, int64(30))
			So(standings[0].Bids, ShouldEqual, 2)
		})

		Convey("Ties keep first appearance order", func() {
			So(standings[1].Bidder.String(), ShouldEqual, "bob")
			So(standings[2].Bidder.String(), ShouldEqual, "carol")
			So(standings[3].Rank, ShouldEqual, 4)
		})

		Convey("The first studentsMax bidders win", func() {
			So(standings[0].Winner, ShouldBeTrue)
			So(standings[1].Winner, ShouldBeTrue)
			So(standings[2].Winner, ShouldBeFalse)

			winners := ranking.Winners(rec)
			So(len(winners), ShouldEqual, 2)
			So(winners[1].String(), ShouldEqual, "bob")
		})
	})

	Convey("An auction without bids has no standings", t, func() {
		rec := protocol.NewAuction(protocol.Identity("admin"), big.NewInt(1), big.NewInt(3))
		So(ranking.Standings(rec), ShouldBeEmpty)
		So(ranking.Winners(rec), ShouldBeEmpty)
	})
}

func TestTallies(t *testing.T) {
	Convey("Given an evaluation with votes", t, func() {
		rec := protocol.NewEvaluation(protocol.Identity("admin"), big.NewInt(1), "Clarity", "Rigor", "Style")
		for _, v := range []struct{ voter, quality string }{
			{"a", "Rigor"}, {"b", "Clarity"}, {"c", "Rigor"}, {"d", "Clarity"},
		} {
			var err error
			rec, err = rec.WithVote(protocol.Identity(v.voter), []byte(v.quality))
			So(err, ShouldBeNil)
		}

		tallies := ranking.Tallies(rec)
		So(len(tallies), ShouldEqual, 3)
		So(tallies[0].Votes, ShouldEqual, 2)
		So(tallies[1].Votes, ShouldEqual, 2)
		So(tallies[2].Votes, ShouldEqual, 0)
		So(ranking.Leading(rec), ShouldResemble, []string{"Clarity", "Rigor"})
	})

	Convey("Nobody leads an evaluation without votes", t, func() {
		rec := protocol.NewEvaluation(protocol.Identity("admin"), big.NewInt(1), "Quality")
		So(ranking.Leading(rec), ShouldBeNil)
	})
}
