package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.transitions.WithLabelValues("review", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_transitions_total")
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording transitions", func() {
			before := testutil.ToFloat64(globalManager.transitions.WithLabelValues("cancel", "forbidden"))
			RecordTransition("cancel", "forbidden")
			RecordTransitionLatency("cancel", 0.3)

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.transitions.WithLabelValues("cancel", "forbidden"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording skipped analytics records", func() {
			before := testutil.ToFloat64(globalManager.analyticsSkipped.WithLabelValues("distribution"))
			RecordAnalyticsSkipped("distribution", 2)
			RecordAnalyticsSkipped("distribution", 0)

			Convey("Then only positive counts are added", func() {
				after := testutil.ToFloat64(globalManager.analyticsSkipped.WithLabelValues("distribution"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When setting gauges", func() {
			UpdateRecordsTracked(7)

			Convey("Then the gauge holds the value", func() {
				So(testutil.ToFloat64(globalManager.recordsTracked), ShouldEqual, 7)
			})
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
