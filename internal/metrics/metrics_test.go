package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	attempt := func(provider string, d time.Duration) metrics.MetricEvent {
		return metrics.MetricEvent{
			Type:       metrics.EventAttemptCompleted,
			Provider:   provider,
			Engine:     engine.Quote,
			Duration:   d,
			StatusCode: 200,
			Success:    true,
		}
	}

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordAttempt", func() {
		It("should track multiple providers separately", func() {
			m.RecordAttempt(attempt("alpha", time.Millisecond))
			m.RecordAttempt(attempt("beta", time.Millisecond))
			m.RecordAttempt(attempt("alpha", time.Millisecond))

			snap := m.Snapshot("priority")
			Expect(snap.TotalAttempts).To(Equal(int64(3)))
			Expect(snap.Providers["alpha"].Attempts).To(Equal(int64(2)))
			Expect(snap.Providers["beta"].Attempts).To(Equal(int64(1)))
		})

		It("should not count a zero status code", func() {
			ev := attempt("alpha", time.Millisecond)
			ev.StatusCode = 0
			ev.Success = false
			ev.Category = failure.NetworkError
			m.RecordAttempt(ev)

			Expect(m.Snapshot("priority").Providers["alpha"].StatusCodes).To(BeEmpty())
		})

		It("should keep a bounded window of samples", func() {
			for i := 0; i < 1500; i++ {
				m.RecordAttempt(attempt("alpha", time.Duration(i)*time.Microsecond))
			}
			p := m.Snapshot("priority").Providers["alpha"]
			Expect(p.Attempts).To(Equal(int64(1500)))
			Expect(p.P50Response).To(BeNumerically(">=", 500*time.Microsecond))
		})
	})

	Describe("percentiles", func() {
		It("should compute average and percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordAttempt(attempt("alpha", time.Duration(i)*time.Millisecond))
			}

			p := m.Snapshot("priority").Providers["alpha"]
			Expect(p.AvgResponse).To(Equal(50500 * time.Microsecond))
			Expect(p.P50Response).To(Equal(51 * time.Millisecond))
			Expect(p.P95Response).To(Equal(96 * time.Millisecond))
			Expect(p.P99Response).To(Equal(100 * time.Millisecond))
		})

		It("should handle a single sample", func() {
			m.RecordAttempt(attempt("alpha", 42*time.Millisecond))

			p := m.Snapshot("priority").Providers["alpha"]
			Expect(p.P50Response).To(Equal(42 * time.Millisecond))
			Expect(p.P99Response).To(Equal(42 * time.Millisecond))
		})
	})

	Describe("RecordFetch", func() {
		It("should aggregate per engine", func() {
			m.RecordFetch(engine.Quote, true, false)
			m.RecordFetch(engine.Chart, false, true)

			snap := m.Snapshot("priority")
			Expect(snap.TotalFetches).To(Equal(int64(2)))
			Expect(snap.Engines[engine.Chart]).To(Equal(metrics.EngineMetrics{Fetches: 1, Failures: 1, Fallbacks: 1}))
		})
	})

	Describe("UpdateBreaker", func() {
		It("should keep the latest state per key", func() {
			key := circuitbreaker.Key{Provider: "alpha", Engine: engine.Quote}
			m.UpdateBreaker(key, circuitbreaker.StateOpen)
			m.UpdateBreaker(key, circuitbreaker.StateHalfOpen)

			Expect(m.Snapshot("priority").Breakers).To(HaveKeyWithValue("alpha/quote", circuitbreaker.StateHalfOpen))
		})
	})

	Describe("Snapshot", func() {
		It("should return copies", func() {
			ev := attempt("alpha", time.Millisecond)
			m.RecordAttempt(ev)
			snap := m.Snapshot("priority")
			snap.Providers["alpha"].StatusCodes[200] = 99

			Expect(m.Snapshot("priority").Providers["alpha"].StatusCodes[200]).To(Equal(int64(1)))
		})

		It("should report uptime and strategy", func() {
			snap := m.Snapshot("random")
			Expect(snap.Strategy).To(Equal("random"))
			Expect(snap.Uptime).To(BeNumerically(">=", 0))
		})
	})
})
