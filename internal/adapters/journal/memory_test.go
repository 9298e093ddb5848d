package journal_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
)

func activity(hash, actor string) model.Activity {
	return model.Activity{TxHash: hash, Machine: model.MachineAuction, Action: "place_bid", LogicalID: "7", Actor: actor}
}

func TestMemoryJournal(t *testing.T) {
	Convey("Given an empty memory journal", t, func() {
		ctx := context.Background()
		j := journal.NewMemory()

		Convey("Create assigns an id and timestamps", func() {
			a, err := j.Create(ctx, activity("tx1", "alice"))
			So(err, ShouldBeNil)
			So(a.ID, ShouldNotBeEmpty)
			So(a.Status, ShouldEqual, model.StatusConfirmed)
			So(a.CreatedAt.IsZero(), ShouldBeFalse)

			got, err := j.GetByTxHash(ctx, "tx1")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, a)
		})

		Convey("The tx hash is unique", func() {
			_, err := j.Create(ctx, activity("tx1", "alice"))
			So(err, ShouldBeNil)
			_, err = j.Create(ctx, activity("tx1", "bob"))
			So(errors.Is(err, journal.ErrDuplicate), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "already exists")
		})

		Convey("Unknown hashes are not found", func() {
			_, err := j.GetByTxHash(ctx, "nope")
			So(errors.Is(err, journal.ErrNotFound), ShouldBeTrue)
			So(errors.Is(j.UpdateStatus(ctx, "nope", model.StatusAbandoned), journal.ErrNotFound), ShouldBeTrue)
		})

		Convey("UpdateStatus changes the stored status", func() {
			a := activity("tx1", "alice")
			a.Status = model.StatusPending
			_, err := j.Create(ctx, a)
			So(err, ShouldBeNil)
			So(j.UpdateStatus(ctx, "tx1", model.StatusConfirmed), ShouldBeNil)
			got, _ := j.GetByTxHash(ctx, "tx1")
			So(got.Status, ShouldEqual, model.StatusConfirmed)
		})

		Convey("ListByActor pages newest first", func() {
			for i := range 5 {
				_, err := j.Create(ctx, activity(fmt.Sprintf("a%d", i), "alice"))
				So(err, ShouldBeNil)
			}
			_, _ = j.Create(ctx, activity("b0", "bob"))

			first, err := j.ListByActor(ctx, "alice", 1, 2)
			So(err, ShouldBeNil)
			So(len(first), ShouldEqual, 2)
			So(first[0].TxHash, ShouldEqual, "a4")
			So(first[1].TxHash, ShouldEqual, "a3")

			last, err := j.ListByActor(ctx, "alice", 3, 2)
			So(err, ShouldBeNil)
			So(len(last), ShouldEqual, 1)
			So(last[0].TxHash, ShouldEqual, "a0")

			beyond, err := j.ListByActor(ctx, "alice", 9, 2)
			So(err, ShouldBeNil)
			So(beyond, ShouldBeEmpty)
		})
	})
}

func TestWindow(t *testing.T) {
	Convey("Window normalises paging", t, func() {
		limit, offset := journal.Window(0, 0)
		So(limit, ShouldEqual, journal.DefaultPageSize)
		So(offset, ShouldEqual, 0)

		limit, offset = journal.Window(3, 1000)
		So(limit, ShouldEqual, journal.MaxPageSize)
		So(offset, ShouldEqual, 2*journal.MaxPageSize)
	})
}
