package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arenalab/churnsight/internal/app"
	"github.com/arenalab/churnsight/internal/config"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/internal/genbattles"
	"github.com/arenalab/churnsight/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// generateLog writes a synthetic battle log with enough churners and
// tilters for every downstream stage to have signal.
func generateLog(t *testing.T, dir string) string {
	t.Helper()
	gen := genbattles.NewConfig()
	gen.Players = 120
	gen.Battles = 6000
	gen.WindowDays = 30
	gen.Seed = 1
	gen.OutPath = filepath.Join(dir, "battles.csv")
	if err := genbattles.Generate(context.Background(), gen); err != nil {
		t.Fatal(err)
	}
	return gen.OutPath
}

func testConfig(battlesPath, artifactsDir string) *config.Config {
	cfg := config.New(config.WithBattlesPath(battlesPath))
	cfg.ArtifactsDir = artifactsDir
	cfg.WorkerCount = 4
	cfg.NumTrees = 25
	cfg.MaxDepth = 8
	cfg.MinLeafSize = 3
	return cfg
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	battlesPath := generateLog(t, dir)

	Convey("Given a synthetic battle log", t, func() {
		cfg := testConfig(battlesPath, filepath.Join(dir, "artifacts"))

		Convey("When the pipeline runs without persistence", func() {
			summary, err := app.New(cfg, app.WithoutArtifacts()).Run(ctx)
			So(err, ShouldBeNil)

			Convey("Then the run is identified and populated", func() {
				So(summary.RunID, ShouldNotBeEmpty)
				So(summary.Players, ShouldBeGreaterThan, 0)
				So(summary.QualifiedPlayers, ShouldBeGreaterThan, 0)
				So(summary.QualifiedPlayers, ShouldBeLessThanOrEqualTo, summary.Players)
				So(summary.DroppedBattles, ShouldEqual, 0)
				So(summary.Horizon.IsZero(), ShouldBeFalse)
			})

			Convey("And the tilt table has one row per bucket in order", func() {
				So(summary.Buckets, ShouldHaveLength, len(model.Buckets()))
				for i, b := range model.Buckets() {
					So(summary.Buckets[i].Bucket, ShouldEqual, b)
				}
			})

			Convey("And the model is trained and evaluated", func() {
				So(summary.Model, ShouldNotBeNil)
				ev := summary.Model.Evaluation
				So(ev.TrainSize+ev.TestSize, ShouldEqual, summary.QualifiedPlayers)
				So(ev.Accuracy, ShouldBeGreaterThan, 0.5)
				So(ev.ROCAUC, ShouldBeGreaterThan, 0.5)
				So(ev.Importances, ShouldHaveLength, summary.Model.Forest.NumFeatures)
			})

			Convey("And a second run reproduces the same evaluation", func() {
				again, err := app.New(cfg, app.WithoutArtifacts()).Run(ctx)
				So(err, ShouldBeNil)
				So(again.QualifiedPlayers, ShouldEqual, summary.QualifiedPlayers)
				So(again.Model.Evaluation.Accuracy, ShouldEqual, summary.Model.Evaluation.Accuracy)
				So(again.Model.Evaluation.ROCAUC, ShouldEqual, summary.Model.Evaluation.ROCAUC)
				So(again.Model.Evaluation.Confusion, ShouldResemble, summary.Model.Evaluation.Confusion)
			})
		})

		Convey("When the pipeline runs with artifact persistence", func() {
			artifactsDir := filepath.Join(dir, "persisted")
			_, err := app.New(testConfig(battlesPath, artifactsDir)).Run(ctx)
			So(err, ShouldBeNil)

			Convey("Then all five artifacts exist and are non-empty", func() {
				for _, name := range []string{
					"timeline.csv",
					"timeline_enriched.csv",
					"player_profiles.csv",
					"tilt_by_streak.csv",
					"churn_model.json",
				} {
					info, err := os.Stat(filepath.Join(artifactsDir, name))
					So(err, ShouldBeNil)
					So(info.Size(), ShouldBeGreaterThan, 0)
				}
			})
		})
	})

	Convey("Given a battle log path that does not exist", t, func() {
		cfg := testConfig(filepath.Join(dir, "absent.csv"), filepath.Join(dir, "x"))
		_, err := app.New(cfg, app.WithoutArtifacts()).Run(ctx)

		Convey("Then the run fails in the timeline stage", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "timeline stage")
		})
	})

	Convey("Given a sampled run", t, func() {
		cfg := testConfig(battlesPath, filepath.Join(dir, "y"))
		cfg.SampleRate = 0.5
		full := testConfig(battlesPath, filepath.Join(dir, "z"))

		sampled, err := app.New(cfg, app.WithoutArtifacts()).Run(ctx)
		So(err, ShouldBeNil)
		complete, err := app.New(full, app.WithoutArtifacts()).Run(ctx)
		So(err, ShouldBeNil)

		Convey("Then sampling can only shrink the qualified population", func() {
			So(sampled.QualifiedPlayers, ShouldBeLessThanOrEqualTo, complete.QualifiedPlayers)
		})
	})
}
