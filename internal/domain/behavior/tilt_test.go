package behavior_test

import (
	"context"
	"testing"
	"time"

	"github.com/arenalab/churnsight/internal/domain/behavior"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/internal/domain/temporal"
	"github.com/arenalab/churnsight/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func timelineOf(tag string, t0 time.Time, hours []float64, outcomes []int) []model.EnrichedEntry {
	entries := make([]model.TimelineEntry, len(hours))
	for i := range hours {
		entries[i] = model.TimelineEntry{
			PlayerTag: tag,
			Time:      t0.Add(time.Duration(hours[i] * float64(time.Hour))),
			Outcome:   outcomes[i],
		}
	}
	return temporal.New().Enrich(entries)
}

func TestScorer(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given loss, loss, win, loss at 0h, 0.5h, 5h, 6h", t, func() {
		// Two scorable losses: one followed within the hour, one not.
		// The trailing loss has no next battle and is excluded.
		enriched := timelineOf("#p", t0, []float64{0, 0.5, 5, 6}, []int{model.Loss, model.Loss, model.Win, model.Loss})
		scorer := behavior.New()

		Convey("Then the tilt score is 0.5", func() {
			So(scorer.ScorePlayer(enriched), ShouldAlmostEqual, 0.5)
		})
	})

	Convey("Given a player with no scorable losses", t, func() {
		scorer := behavior.New()

		Convey("An all-win timeline scores zero", func() {
			enriched := timelineOf("#p", t0, []float64{0, 1, 2}, []int{model.Win, model.Win, model.Win})
			So(scorer.ScorePlayer(enriched), ShouldEqual, 0)
		})

		Convey("A lone trailing loss scores zero", func() {
			enriched := timelineOf("#p", t0, []float64{0, 1}, []int{model.Win, model.Loss})
			So(scorer.ScorePlayer(enriched), ShouldEqual, 0)
		})
	})

	Convey("Given any timeline, the score stays within [0,1]", t, func() {
		scorer := behavior.New()
		enriched := timelineOf("#p", t0,
			[]float64{0, 0.1, 0.2, 0.3, 9, 20, 20.2},
			[]int{model.Loss, model.Loss, model.Loss, model.Loss, model.Win, model.Loss, model.Win})
		score := scorer.ScorePlayer(enriched)
		So(score, ShouldBeGreaterThanOrEqualTo, 0)
		So(score, ShouldBeLessThanOrEqualTo, 1)
	})

	Convey("Given profiles and their timelines", t, func() {
		enriched := map[string][]model.EnrichedEntry{
			"#tilted": timelineOf("#tilted", t0, []float64{0, 0.2, 0.4, 0.6}, []int{model.Loss, model.Loss, model.Loss, model.Win}),
			"#calm":   timelineOf("#calm", t0, []float64{0, 8, 16, 24}, []int{model.Loss, model.Loss, model.Win, model.Win}),
		}
		profiles := []model.PlayerProfile{
			{PlayerTag: "#calm"},
			{PlayerTag: "#tilted"},
			{PlayerTag: "#missing"},
		}

		behavior.New().Apply(ctx, profiles, enriched)

		Convey("Then scores land on the matching profiles", func() {
			So(profiles[0].TiltScore, ShouldEqual, 0)
			So(profiles[1].TiltScore, ShouldAlmostEqual, 1.0)
			So(profiles[2].TiltScore, ShouldEqual, 0)
		})
	})
}

func TestScorer_ByBucket(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a mixed population", t, func() {
		enriched := map[string][]model.EnrichedEntry{
			"#a": timelineOf("#a", t0, []float64{0, 0.5, 1, 6}, []int{model.Loss, model.Loss, model.Win, model.Win}),
			"#b": timelineOf("#b", t0, []float64{0, 4, 8}, []int{model.Win, model.Win, model.Loss}),
		}
		rows := behavior.New().ByBucket(ctx, enriched)

		Convey("Then there is exactly one row per bucket, in order", func() {
			So(rows, ShouldHaveLength, len(model.Buckets()))
			for i, b := range model.Buckets() {
				So(rows[i].Bucket, ShouldEqual, b)
			}
		})

		Convey("And only scorable losses populate a bucket", func() {
			// Both of #a's losses sit on a 1-2 streak and return fast;
			// #b's only loss is its final entry and cannot be scored.
			short := rows[1]
			So(short.Bucket, ShouldEqual, model.BucketShort)
			So(short.SampleCount, ShouldEqual, 2)
			So(short.FastReturnRate, ShouldNotBeNil)
			So(*short.FastReturnRate, ShouldAlmostEqual, 1.0)
			So(short.MedianGapHours, ShouldNotBeNil)
			So(*short.MedianGapHours, ShouldAlmostEqual, 0.5)
		})

		Convey("And empty buckets report nil rates, not zero", func() {
			for _, row := range rows {
				if row.Bucket != model.BucketShort {
					So(row.SampleCount, ShouldEqual, 0)
					So(row.FastReturnRate, ShouldBeNil)
					So(row.MedianGapHours, ShouldBeNil)
				}
			}
		})
	})

	Convey("Given an all-win population", t, func() {
		enriched := map[string][]model.EnrichedEntry{
			"#w": timelineOf("#w", t0, []float64{0, 1, 2, 3}, []int{model.Win, model.Win, model.Win, model.Win}),
		}
		rows := behavior.New().ByBucket(ctx, enriched)

		Convey("Then every bucket, the zero bucket included, is undefined", func() {
			for _, row := range rows {
				So(row.SampleCount, ShouldEqual, 0)
				So(row.FastReturnRate, ShouldBeNil)
			}
		})
	})
}
