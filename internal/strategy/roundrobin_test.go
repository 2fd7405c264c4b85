package strategy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/provider"
	"github.com/angeloszaimis/fetch-orchestrator/internal/strategy"
)

var _ = Describe("Roundrobin", func() {
	var (
		strat     strategy.Strategy
		providers []*provider.Tracked
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		providers = newProviders("alpha", "beta", "gamma")
	})

	Describe("Order", func() {
		It("should rotate the starting provider", func() {
			Expect(ids(strat.Order("AAPL", providers))).To(Equal([]string{"alpha", "beta", "gamma"}))
			Expect(ids(strat.Order("AAPL", providers))).To(Equal([]string{"beta", "gamma", "alpha"}))
			Expect(ids(strat.Order("AAPL", providers))).To(Equal([]string{"gamma", "alpha", "beta"}))
			Expect(ids(strat.Order("AAPL", providers))).To(Equal([]string{"alpha", "beta", "gamma"}))
		})

		It("should distribute the first choice evenly", func() {
			counts := make(map[string]int)
			for i := 0; i < 300; i++ {
				counts[strat.Order("AAPL", providers)[0].ID()]++
			}
			Expect(counts["alpha"]).To(Equal(100))
			Expect(counts["beta"]).To(Equal(100))
			Expect(counts["gamma"]).To(Equal(100))
		})

		It("should not modify the input slice", func() {
			strat.Order("AAPL", providers)
			strat.Order("AAPL", providers)
			Expect(ids(providers)).To(Equal([]string{"alpha", "beta", "gamma"}))
		})

		Context("with empty provider list", func() {
			It("should return nil", func() {
				Expect(strat.Order("AAPL", []*provider.Tracked{})).To(BeNil())
			})
		})
	})
})

var _ = Describe("LeastResponse", func() {
	var (
		strat     strategy.Strategy
		providers []*provider.Tracked
	)

	BeforeEach(func() {
		strat = strategy.NewLeastResponseStrategy()
		providers = newProviders("alpha", "beta", "gamma")
	})

	It("should order by lowest EWMA response time", func() {
		providers[0].RecordResponse(100 * time.Millisecond)
		providers[1].RecordResponse(50 * time.Millisecond)
		providers[2].RecordResponse(200 * time.Millisecond)

		Expect(ids(strat.Order("AAPL", providers))).To(Equal([]string{"beta", "alpha", "gamma"}))
	})

	It("should try providers without samples first", func() {
		providers[0].RecordResponse(100 * time.Millisecond)
		providers[1].RecordResponse(50 * time.Millisecond)

		Expect(strat.Order("AAPL", providers)[0].ID()).To(Equal("gamma"))
	})
})

var _ = Describe("Priority", func() {
	It("should return the configured order as a copy", func() {
		providers := newProviders("alpha", "beta")
		order := strategy.NewPriorityStrategy().Order("AAPL", providers)
		Expect(ids(order)).To(Equal([]string{"alpha", "beta"}))

		order[0] = nil
		Expect(providers[0]).NotTo(BeNil())
	})
})
