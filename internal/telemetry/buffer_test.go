package telemetry_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/failure"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

func okTrace(id string, e engine.Engine) telemetry.Trace {
	return telemetry.Trace{
		ID:           id,
		Engine:       e,
		Provider:     "alpha",
		Symbol:       "AAPL",
		Success:      true,
		StartedAt:    time.Now(),
		DecisionPath: []string{"alpha"},
	}
}

func ids(traces []telemetry.Trace) []string {
	out := make([]string, len(traces))
	for i, t := range traces {
		out[i] = t.ID
	}
	return out
}

var _ = Describe("Buffer", func() {
	var buf *telemetry.Buffer

	BeforeEach(func() {
		buf = telemetry.NewBuffer(3)
	})

	Describe("NewBuffer", func() {
		It("should fall back to the default capacity", func() {
			Expect(telemetry.NewBuffer(0).Cap()).To(Equal(telemetry.DefaultCapacity))
		})
	})

	Describe("Record", func() {
		It("should reject traces that break the category invariant", func() {
			bad := okTrace("1", engine.Quote)
			bad.Category = failure.Timeout
			Expect(buf.Record(bad)).To(MatchError(telemetry.ErrInvalidTrace))
			Expect(buf.Len()).To(Equal(0))
		})

		It("should never exceed capacity and evict oldest first", func() {
			for i := 1; i <= 7; i++ {
				Expect(buf.Record(okTrace(fmt.Sprint(i), engine.Quote))).To(Succeed())
				Expect(buf.Len()).To(BeNumerically("<=", 3))
			}
			Expect(ids(buf.Recent(10))).To(Equal([]string{"5", "6", "7"}))
		})

		It("should not be affected by later mutation of the caller's trace", func() {
			t := okTrace("1", engine.Quote)
			Expect(buf.Record(t)).To(Succeed())
			t.DecisionPath[0] = "mutated"

			Expect(buf.Recent(1)[0].DecisionPath).To(Equal([]string{"alpha"}))
		})

		It("should not lose updates under concurrent writers", func() {
			big := telemetry.NewBuffer(10000)
			var wg sync.WaitGroup
			for w := 0; w < 20; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						_ = big.Record(okTrace(fmt.Sprintf("%d-%d", w, i), engine.Quote))
					}
				}(w)
			}
			wg.Wait()
			Expect(big.Len()).To(Equal(2000))
		})
	})

	Describe("Recent", func() {
		BeforeEach(func() {
			for i := 1; i <= 3; i++ {
				Expect(buf.Record(okTrace(fmt.Sprint(i), engine.Quote))).To(Succeed())
			}
		})

		It("should return the newest n, most recent last", func() {
			Expect(ids(buf.Recent(2))).To(Equal([]string{"2", "3"}))
		})

		It("should return an empty slice for non-positive limits", func() {
			Expect(buf.Recent(0)).To(BeEmpty())
			Expect(buf.Recent(-4)).To(BeEmpty())
		})

		It("should return copies", func() {
			out := buf.Recent(1)
			out[0].DecisionPath[0] = "mutated"
			Expect(buf.Recent(1)[0].DecisionPath).To(Equal([]string{"alpha"}))
		})
	})

	Describe("Filter and Last", func() {
		BeforeEach(func() {
			Expect(buf.Record(okTrace("1", engine.Quote))).To(Succeed())
			Expect(buf.Record(okTrace("2", engine.Chart))).To(Succeed())
			Expect(buf.Record(okTrace("3", engine.Quote))).To(Succeed())
		})

		It("should filter in insertion order", func() {
			got := buf.Filter(func(t telemetry.Trace) bool { return t.Engine == engine.Quote })
			Expect(ids(got)).To(Equal([]string{"1", "3"}))
		})

		It("should find the last trace for an engine", func() {
			t, ok := buf.LastForEngine(engine.Chart)
			Expect(ok).To(BeTrue())
			Expect(t.ID).To(Equal("2"))

			_, ok = buf.LastForEngine(engine.News)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Subscribe", func() {
		It("should deliver new traces until cancelled", func() {
			ch, cancel := buf.Subscribe(4)
			Expect(buf.Record(okTrace("1", engine.Quote))).To(Succeed())

			var got telemetry.Trace
			Eventually(ch).Should(Receive(&got))
			Expect(got.ID).To(Equal("1"))

			cancel()
			cancel()
			Expect(buf.Record(okTrace("2", engine.Quote))).To(Succeed())
			Eventually(ch).Should(BeClosed())
		})

		It("should drop traces for a full subscriber instead of blocking", func() {
			_, cancel := buf.Subscribe(1)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					_ = buf.Record(okTrace(fmt.Sprint(i), engine.Quote))
				}
			}()
			Eventually(done).Should(BeClosed())
		})
	})
})
