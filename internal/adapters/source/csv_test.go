package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arenalab/churnsight/internal/adapters/source"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const header = "battleTime,winner.tag,winner.startingTrophies,winner.trophyChange,winner.crowns," +
	"loser.tag,loser.startingTrophies,loser.trophyChange,loser.crowns,gameMode.id,arena.id\n"

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "battles.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(ctx context.Context, s *source.CSVScanner) ([]model.Battle, error) {
	var out []model.Battle
	err := s.Scan(ctx, func(_ context.Context, batch []model.Battle) error {
		out = append(out, batch...)
		return nil
	})
	return out, err
}

func TestCSVScanner_Scan(t *testing.T) {
	ctx := context.Background()

	Convey("Given a well-formed battle log", t, func() {
		path := writeLog(t, header+
			"2024-03-01T10:00:00Z,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n"+
			"2024-03-01T11:30:00Z,#bbb,2970,28,3,#ccc,3200,-28,0,ladder,arena-8\n")
		battles, err := collect(ctx, source.NewCSVScanner(path))

		Convey("Then rows decode with the projected columns", func() {
			So(err, ShouldBeNil)
			So(battles, ShouldHaveLength, 2)
			b := battles[0]
			So(b.WinnerTag, ShouldEqual, "#aaa")
			So(b.LoserTag, ShouldEqual, "#bbb")
			So(b.Time.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(b.WinnerTrophies, ShouldEqual, 3100)
			So(b.WinnerChange, ShouldEqual, 30)
			So(b.LoserChange, ShouldEqual, -30)
			So(b.GameMode, ShouldEqual, "ladder")
			So(b.Arena, ShouldEqual, "arena-7")
		})
	})

	Convey("Given extra columns the pipeline never reads", t, func() {
		wide := "winner.clan.tag," + header[:len(header)-1] + ",loser.cards\n" +
			"#clan,2024-03-01T10:00:00Z,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7,knight\n"
		battles, err := collect(ctx, source.NewCSVScanner(writeLog(t, wide)))

		Convey("Then projection ignores them", func() {
			So(err, ShouldBeNil)
			So(battles, ShouldHaveLength, 1)
			So(battles[0].WinnerTag, ShouldEqual, "#aaa")
			So(battles[0].Arena, ShouldEqual, "arena-7")
		})
	})

	Convey("Given the compact timestamp layout", t, func() {
		path := writeLog(t, header+
			"20240301T100000.000Z,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n")
		battles, err := collect(ctx, source.NewCSVScanner(path))

		Convey("Then it parses like RFC3339", func() {
			So(err, ShouldBeNil)
			So(battles, ShouldHaveLength, 1)
			So(battles[0].Time.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})
	})

	Convey("Given an unparseable timestamp", t, func() {
		path := writeLog(t, header+
			"not-a-time,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n")
		battles, err := collect(ctx, source.NewCSVScanner(path))

		Convey("Then the row decodes with a zero time for the builder to drop", func() {
			So(err, ShouldBeNil)
			So(battles, ShouldHaveLength, 1)
			So(battles[0].Time.IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given a mangled line between valid rows", t, func() {
		path := writeLog(t, header+
			"2024-03-01T10:00:00Z,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n"+
			"2024-03-01T10:05:00Z,#aa\"a,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n"+
			"2024-03-01T11:00:00Z,#ccc,3100,30,2,#ddd,3000,-30,1,ladder,arena-7\n")
		battles, err := collect(ctx, source.NewCSVScanner(path))

		Convey("Then the scan survives and the neighbors are delivered", func() {
			So(err, ShouldBeNil)
			So(battles, ShouldHaveLength, 2)
			So(battles[0].WinnerTag, ShouldEqual, "#aaa")
			So(battles[1].WinnerTag, ShouldEqual, "#ccc")
		})
	})

	Convey("Given a log missing a required column", t, func() {
		noLoser := "battleTime,winner.tag,winner.startingTrophies,winner.trophyChange,winner.crowns," +
			"loser.startingTrophies,loser.trophyChange,loser.crowns,gameMode.id,arena.id\n"
		_, err := collect(ctx, source.NewCSVScanner(writeLog(t, noLoser)))

		Convey("Then the scan fails up front and names the column", func() {
			So(errors.Is(err, source.ErrMissingColumns), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "loser.tag")
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := collect(ctx, source.NewCSVScanner(filepath.Join(t.TempDir(), "absent.csv")))
		So(errors.Is(err, source.ErrOpenLog), ShouldBeTrue)
	})

	Convey("Given a small batch size", t, func() {
		var body string
		for i := 0; i < 10; i++ {
			body += "2024-03-01T10:00:00Z,#aaa,3100,30,2,#bbb,3000,-30,1,ladder,arena-7\n"
		}
		path := writeLog(t, header+body)

		batches := 0
		total := 0
		err := source.NewCSVScanner(path, source.WithBatchSize(3)).Scan(ctx, func(_ context.Context, batch []model.Battle) error {
			batches++
			total += len(batch)
			So(len(batch), ShouldBeLessThanOrEqualTo, 3)
			return nil
		})

		Convey("Then rows arrive in bounded batches with a final partial", func() {
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 10)
			So(batches, ShouldEqual, 4)
		})
	})
}

func TestCSVScanner_Sampling(t *testing.T) {
	ctx := context.Background()

	Convey("Given a log scanned at a fractional sample rate", t, func() {
		var body string
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 200; i++ {
			body += base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339) +
				",#w" + string(rune('a'+i%26)) + ",3100,30,2,#l" + string(rune('a'+(i+7)%26)) +
				",3000,-30,1,ladder,arena-7\n"
		}
		path := writeLog(t, header+body)

		full, err := collect(ctx, source.NewCSVScanner(path))
		So(err, ShouldBeNil)
		sampled, err := collect(ctx, source.NewCSVScanner(path, source.WithSampleRate(0.5)))
		So(err, ShouldBeNil)

		Convey("Then the sample is a strict subset of the full scan", func() {
			So(len(sampled), ShouldBeGreaterThan, 0)
			So(len(sampled), ShouldBeLessThan, len(full))
		})

		Convey("And the same rate selects the same rows every time", func() {
			again, err := collect(ctx, source.NewCSVScanner(path, source.WithSampleRate(0.5)))
			So(err, ShouldBeNil)
			So(again, ShouldResemble, sampled)
		})
	})
}
