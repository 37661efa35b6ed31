package churn_test

import (
	"context"
	"testing"
	"time"

	"github.com/arenalab/churnsight/internal/domain/churn"
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

func TestLabeler(t *testing.T) {
	ctx := context.Background()
	horizon := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	Convey("Given players at 0, 5, 7 and 12 days before the horizon", t, func() {
		profiles := []model.PlayerProfile{
			{PlayerTag: "#fresh", LastBattle: horizon},
			{PlayerTag: "#recent", LastBattle: horizon.Add(-5 * 24 * time.Hour)},
			{PlayerTag: "#edge", LastBattle: horizon.Add(-7 * 24 * time.Hour)},
			{PlayerTag: "#gone", LastBattle: horizon.Add(-12 * 24 * time.Hour)},
		}
		labeler := churn.New(churn.WithThresholdDays(7))

		Convey("When labels are applied", func() {
			got := labeler.Apply(ctx, profiles)

			Convey("Then the horizon is the latest last battle", func() {
				So(got.Equal(horizon), ShouldBeTrue)
			})

			Convey("And only players strictly past the threshold churn", func() {
				So(profiles[0].Churned, ShouldEqual, 0)
				So(profiles[1].Churned, ShouldEqual, 0)
				// Exactly at the threshold is still retained.
				So(profiles[2].Churned, ShouldEqual, 0)
				So(profiles[3].Churned, ShouldEqual, 1)
			})

			Convey("And days since last is measured from the horizon", func() {
				So(profiles[0].DaysSinceLast, ShouldAlmostEqual, 0)
				So(profiles[1].DaysSinceLast, ShouldAlmostEqual, 5)
				So(profiles[3].DaysSinceLast, ShouldAlmostEqual, 12)
			})
		})
	})

	Convey("Given the player that defines the horizon", t, func() {
		profiles := []model.PlayerProfile{
			{PlayerTag: "#anchor", LastBattle: horizon},
			{PlayerTag: "#other", LastBattle: horizon.Add(-30 * 24 * time.Hour)},
		}
		churn.New().Apply(ctx, profiles)

		Convey("Then the anchor can never be labeled churned", func() {
			So(profiles[0].DaysSinceLast, ShouldEqual, 0)
			So(profiles[0].Churned, ShouldEqual, 0)
			So(profiles[1].Churned, ShouldEqual, 1)
		})
	})

	Convey("Given an empty population", t, func() {
		got := churn.New().Apply(ctx, nil)

		Convey("Then the horizon is the zero time", func() {
			So(got.IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given relabeling with a looser threshold", t, func() {
		profiles := []model.PlayerProfile{
			{PlayerTag: "#a", LastBattle: horizon},
			{PlayerTag: "#b", LastBattle: horizon.Add(-10 * 24 * time.Hour)},
		}
		churn.New(churn.WithThresholdDays(7)).Apply(ctx, profiles)
		So(profiles[1].Churned, ShouldEqual, 1)

		churn.New(churn.WithThresholdDays(14)).Apply(ctx, profiles)

		Convey("Then earlier labels are overwritten, not sticky", func() {
			So(profiles[1].Churned, ShouldEqual, 0)
		})
	})
}
