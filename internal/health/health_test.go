package health_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/health"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

var _ = Describe("Aggregator", func() {
	var (
		clk      *clock.Fake
		buffer   *telemetry.Buffer
		registry *circuitbreaker.Registry
		settings health.Settings
		agg      *health.Aggregator
		seq      int
	)

	record := func(successes, failures int) {
		for i := 0; i < successes+failures; i++ {
			seq++
			t := telemetry.Trace{
				ID:           fmt.Sprintf("t-%d", seq),
				Engine:       engine.Quote,
				Provider:     "alpha",
				StartedAt:    clk.Now(),
				DecisionPath: []string{"alpha"},
			}
			if i < successes {
				t.Success = true
			} else {
				t.Category = failure.ServerError
			}
			Expect(buffer.Record(t)).To(Succeed())
		}
	}

	open := func(providers ...string) {
		for _, p := range providers {
			cb := registry.Breaker(p, engine.Quote)
			for i := 0; i < 5; i++ {
				cb.RecordFailure()
			}
		}
	}

	known := func(providers ...string) {
		for _, p := range providers {
			registry.Breaker(p, engine.Quote)
		}
	}

	BeforeEach(func() {
		seq = 0
		clk = clock.NewFake(time.Date(2026, 4, 6, 16, 0, 0, 0, time.UTC))
		buffer = telemetry.NewBuffer(500)
		registry = circuitbreaker.NewRegistry(circuitbreaker.DefaultSettings(), clk)
		settings = health.DefaultSettings()
	})

	JustBeforeEach(func() {
		agg = health.NewAggregator(buffer, registry, settings, clk)
	})

	It("should be operational with no data", func() {
		r := agg.Report()
		Expect(r.Status).To(Equal(health.Operational))
		Expect(r.SuccessRatio).To(Equal(1.0))
		Expect(r.Samples).To(BeZero())
		Expect(r.GeneratedAt).To(Equal(clk.Now()))
	})

	DescribeTable("success ratio thresholds",
		func(successes, failures int, expected health.Status) {
			known("alpha")
			record(successes, failures)
			Expect(agg.CurrentStatus()).To(Equal(expected))
		},
		Entry("all successful", 100, 0, health.Operational),
		Entry("95%", 95, 5, health.Operational),
		Entry("exactly 90%", 90, 10, health.Operational),
		Entry("85%", 85, 15, health.Degraded),
		Entry("exactly 70%", 70, 30, health.Degraded),
		Entry("65%", 65, 35, health.Critical),
		Entry("all failing", 0, 20, health.Critical),
	)

	DescribeTable("open breaker fractions",
		func(openCount int, expected health.Status) {
			all := []string{"alpha", "beta", "gamma", "delta"}
			known(all...)
			open(all[:openCount]...)
			record(100, 0)
			Expect(agg.CurrentStatus()).To(Equal(expected))
		},
		Entry("none open", 0, health.Operational),
		Entry("one of four", 1, health.Degraded),
		Entry("half open is not a majority", 2, health.Degraded),
		Entry("three of four", 3, health.Critical),
	)

	It("should not count a probing half-open breaker as open", func() {
		known("alpha", "beta", "gamma")
		open("alpha", "beta")
		clk.Advance(30 * time.Second)
		Expect(registry.Breaker("alpha", engine.Quote).Allow()).To(BeTrue())
		Expect(registry.Breaker("alpha", engine.Quote).State()).To(Equal(circuitbreaker.StateHalfOpen))

		r := agg.Report()
		Expect(r.OpenBreakers).To(Equal(1))
		Expect(r.TotalBreakers).To(Equal(3))
		Expect(r.Status).To(Equal(health.Degraded))
	})

	It("should be operational when the only tripped breaker is half-open", func() {
		known("alpha", "beta")
		open("alpha")
		clk.Advance(30 * time.Second)
		Expect(registry.Breaker("alpha", engine.Quote).Allow()).To(BeTrue())

		r := agg.Report()
		Expect(r.OpenBreakers).To(Equal(0))
		Expect(r.Status).To(Equal(health.Operational))
	})

	It("should ignore circuit-open short-circuits in the ratio", func() {
		record(95, 0)
		for i := 0; i < 50; i++ {
			Expect(buffer.Record(telemetry.Trace{
				ID:           fmt.Sprintf("short-%d", i),
				Provider:     "beta",
				Category:     failure.CircuitOpen,
				DecisionPath: []string{"beta"},
			})).To(Succeed())
		}
		record(100, 0)

		r := agg.Report()
		Expect(r.SuccessRatio).To(Equal(1.0))
	})

	Context("with a window size", func() {
		BeforeEach(func() {
			settings.WindowSize = 10
		})

		It("should only consider the most recent traces", func() {
			record(0, 50)
			record(10, 0)
			r := agg.Report()
			Expect(r.Samples).To(Equal(10))
			Expect(r.Status).To(Equal(health.Operational))
		})
	})

	Context("with a window duration", func() {
		BeforeEach(func() {
			settings.WindowDuration = time.Minute
		})

		It("should drop traces older than the window", func() {
			record(0, 20)
			clk.Advance(2 * time.Minute)
			record(5, 0)

			r := agg.Report()
			Expect(r.Samples).To(Equal(5))
			Expect(r.Status).To(Equal(health.Operational))
		})
	})

	It("should order status levels", func() {
		Expect(health.Operational.Level()).To(BeNumerically("<", health.Degraded.Level()))
		Expect(health.Degraded.Level()).To(BeNumerically("<", health.Critical.Level()))
	})
})
