package health

import (
	"context"
	"log/slog"
	"time"
)

// Monitor recomputes the report every interval until ctx ends. observe, when
// set, receives every report; status changes are logged.
func Monitor(
	ctx context.Context,
	agg *Aggregator,
	interval time.Duration,
	logger *slog.Logger,
	observe func(Report),
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := Operational
	check := func() {
		r := agg.Report()
		if observe != nil {
			observe(r)
		}

		if r.Status == last {
			return
		}

		attrs := []any{
			slog.String("from", last.String()),
			slog.String("to", r.Status.String()),
			slog.Float64("success_ratio", r.SuccessRatio),
			slog.Int("open_breakers", r.OpenBreakers),
			slog.Int("total_breakers", r.TotalBreakers),
		}
		if r.Status.Level() > last.Level() {
			logger.Warn("System health degraded", attrs...)
		} else {
			logger.Info("System health recovered", attrs...)
		}
		last = r.Status
	}

	check()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Health monitor stopped")
			return

		case <-ticker.C:
			check()
		}
	}
}
