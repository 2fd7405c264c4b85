package clock_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/pkg/clock"
)

var _ = Describe("Clock", func() {
	It("should report wall time for the real clock", func() {
		before := time.Now()
		Expect(clock.Real{}.Now()).To(BeTemporally(">=", before))
	})

	It("should only move the fake clock when told to", func() {
		start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		fake := clock.NewFake(start)
		Expect(fake.Now()).To(Equal(start))

		fake.Advance(30 * time.Second)
		Expect(fake.Now()).To(Equal(start.Add(30 * time.Second)))

		fake.Set(start)
		Expect(fake.Now()).To(Equal(start))
	})
})
