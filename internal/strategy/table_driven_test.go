package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/strategy"
)

var _ = Describe("Table-Driven Strategy Tests", func() {
	DescribeTable("New builds every named strategy",
		func(name string) {
			strat, err := strategy.New(name, 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(strat).NotTo(BeNil())
		},
		Entry("Priority", strategy.Priority),
		Entry("Default", ""),
		Entry("Round Robin", strategy.RoundRobin),
		Entry("Random", strategy.Random),
		Entry("Least Connections", strategy.LeastConn),
		Entry("Least Response Time", strategy.LeastResponse),
		Entry("Weighted", strategy.Weighted),
		Entry("Consistent Hash", strategy.ConsistentHash),
	)

	It("should reject unknown names", func() {
		_, err := strategy.New("fastest", 0)
		Expect(err).To(MatchError(strategy.ErrUnknownStrategy))
	})

	DescribeTable("Every strategy returns a permutation of its input",
		func(name string) {
			strat, err := strategy.New(name, 10)
			Expect(err).NotTo(HaveOccurred())

			providers := newProviders("alpha", "beta", "gamma", "delta")
			for _, symbol := range []string{"AAPL", "BTC-USD", "EURUSD=X"} {
				order := strat.Order(symbol, providers)
				Expect(order).To(HaveLen(len(providers)))
				Expect(order).To(ConsistOf(providers[0], providers[1], providers[2], providers[3]))
			}
			Expect(ids(providers)).To(Equal([]string{"alpha", "beta", "gamma", "delta"}))
		},
		func(name string) string { return "permutation: " + name },
		Entry(nil, strategy.Priority),
		Entry(nil, strategy.RoundRobin),
		Entry(nil, strategy.Random),
		Entry(nil, strategy.LeastConn),
		Entry(nil, strategy.LeastResponse),
		Entry(nil, strategy.Weighted),
		Entry(nil, strategy.ConsistentHash),
	)

	It("should list every strategy name", func() {
		Expect(strategy.Names()).To(HaveLen(7))
	})
})
