package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

var _ = Describe("Registry", func() {
	var (
		registry *circuitbreaker.Registry
		clk      *clock.Fake
	)

	BeforeEach(func() {
		clk = clock.NewFake(time.Unix(1_700_000_000, 0))
		registry = circuitbreaker.NewRegistry(circuitbreaker.Settings{
			FailureThreshold: 2,
			InitialBackoff:   10 * time.Second,
			MaxBackoff:       time.Minute,
		}, clk)
	})

	Describe("Breaker", func() {
		It("should create a closed breaker on first use", func() {
			cb := registry.Breaker("alpha", engine.Quote)
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same key", func() {
			Expect(registry.Breaker("alpha", engine.Quote)).To(BeIdenticalTo(registry.Breaker("alpha", engine.Quote)))
		})

		It("should isolate engines of the same provider", func() {
			quote := registry.Breaker("alpha", engine.Quote)
			chart := registry.Breaker("alpha", engine.Chart)
			Expect(quote).NotTo(BeIdenticalTo(chart))

			quote.RecordFailure()
			quote.RecordFailure()
			Expect(quote.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(chart.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should use registry settings for new breakers", func() {
			cb := registry.Breaker("alpha", engine.Quote)
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.Snapshot().NextProbeAt).To(Equal(clk.Now().Add(10 * time.Second)))
		})
	})

	Describe("Concurrent access", func() {
		It("should create one breaker per key under contention", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					Expect(registry.Breaker("alpha", engine.Quote)).NotTo(BeNil())
				}()
			}
			wg.Wait()
			Expect(registry.Stats()).To(HaveLen(1))
		})

		It("should handle concurrent operations on the same breaker", func() {
			cb := registry.Breaker("alpha", engine.Quote)
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(2)
				go func() { defer wg.Done(); cb.RecordFailure() }()
				go func() { defer wg.Done(); cb.RecordSuccess() }()
			}
			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
		})
	})

	Describe("Snapshot and Stats", func() {
		It("should report every breaker sorted by key", func() {
			registry.Breaker("beta", engine.Quote)
			a := registry.Breaker("alpha", engine.Quote)
			registry.Breaker("alpha", engine.Chart)
			a.RecordFailure()
			a.RecordFailure()

			records := registry.Snapshot()
			Expect(records).To(HaveLen(3))
			Expect(records[0].Provider).To(Equal("alpha"))
			Expect(records[0].Engine).To(Equal(engine.Chart))
			Expect(records[1].State).To(Equal(circuitbreaker.StateOpen))
			Expect(records[2].Provider).To(Equal("beta"))

			stats := registry.Stats()
			Expect(stats[circuitbreaker.Key{Provider: "alpha", Engine: engine.Quote}]).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("OnTransition", func() {
		It("should report open, half-open and closed transitions", func() {
			var (
				mu  sync.Mutex
				got []circuitbreaker.State
			)
			registry.OnTransition(func(t circuitbreaker.Transition) {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, t.To)
			})

			cb := registry.Breaker("alpha", engine.News)
			cb.RecordFailure()
			cb.RecordFailure()
			clk.Advance(10 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordSuccess()

			mu.Lock()
			defer mu.Unlock()
			Expect(got).To(Equal([]circuitbreaker.State{
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
				circuitbreaker.StateClosed,
			}))
		})
	})
})
