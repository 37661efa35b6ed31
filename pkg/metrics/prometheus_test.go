package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(WithRegistry(registry))

			Convey("Then the manager and its registry are usable", func() {
				So(m, ShouldNotBeNil)
				So(m.Registry(), ShouldEqual, registry)
			})
		})

		Convey("When creating with a custom namespace", func() {
			m := NewManager(WithNamespace("test"), WithRegistry(prometheus.NewRegistry()))

			Convey("Then collectors register under it", func() {
				So(m, ShouldNotBeNil)
				families, err := m.Registry().Gather()
				So(err, ShouldBeNil)
				for _, f := range families {
					So(f.GetName(), ShouldStartWith, "test_")
				}
			})
		})

		Convey("When creating with an empty namespace", func() {
			m := NewManager(WithNamespace(""), WithRegistry(prometheus.NewRegistry()))

			Convey("Then the default namespace stands", func() {
				So(m, ShouldNotBeNil)
				So(m.namespace, ShouldEqual, "churnsight")
			})
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the package-level recording helpers", t, func() {
		Convey("When recording ingest metrics", func() {
			So(func() {
				RecordBattlesScanned(1000)
				RecordBattlesSampled(500)
				RecordMalformedRow()
				RecordTimelineEntries(2000)
			}, ShouldNotPanic)
		})

		Convey("When recording stage durations", func() {
			So(func() {
				RecordStageDuration("timeline", 0.5)
				RecordStageDuration("fold", 1.2)
				RecordStageDuration("train", 30.0)
			}, ShouldNotPanic)
		})

		Convey("When updating population gauges", func() {
			So(func() {
				UpdatePlayersTracked(5000)
				RecordPlayersFiltered(120)
				UpdatePlayersQualified(4880)
				UpdatePlayersChurned(900)
			}, ShouldNotPanic)
		})

		Convey("When recording fold pool metrics", func() {
			So(func() {
				UpdateFoldWorkers(8)
				RecordFoldCompleted()
				RecordDuplicateTimestamp()
			}, ShouldNotPanic)
		})

		Convey("When using edge values", func() {
			So(func() {
				RecordBattlesScanned(0)
				UpdatePlayersTracked(0)
				RecordStageDuration("", 0)
				RecordStageDuration("persist", 100000)
			}, ShouldNotPanic)
		})
	})
}

func TestRecordingConcurrency(t *testing.T) {
	Convey("Given concurrent recording", t, func() {
		done := make(chan bool, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordBattlesScanned(1)
					RecordFoldCompleted()
					RecordStageDuration("fold", float64(j))
					UpdatePlayersQualified(j)
				}
				done <- true
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then no panics occur", func() {
			So(true, ShouldBeTrue)
		})
	})
}
