package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

const finalDumpTimeout = 5 * time.Second

type Source interface {
	Recent(n int) []telemetry.Trace
}

type Sink interface {
	Name() string
	Write(ctx context.Context, traces []telemetry.Trace) error
}

// EncodeNDJSON writes one JSON object per line, oldest first.
func EncodeNDJSON(w io.Writer, traces []telemetry.Trace) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range traces {
		if err := enc.Encode(traces[i]); err != nil {
			return fmt.Errorf("encode trace %s: %w", traces[i].ID, err)
		}
	}
	return bw.Flush()
}

type Snapshotter struct {
	source   Source
	sinks    []Sink
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

func New(source Source, interval time.Duration, limit int, logger *slog.Logger, sinks ...Sink) *Snapshotter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Snapshotter{
		source:   source,
		sinks:    sinks,
		interval: interval,
		limit:    limit,
		logger:   logger,
	}
}

// Run dumps on every interval until ctx ends, then writes a final dump.
func (s *Snapshotter) Run(ctx context.Context) error {
	if len(s.sinks) == 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalDumpTimeout)
			defer cancel()
			if err := s.Dump(final); err != nil {
				return fmt.Errorf("final snapshot: %w", err)
			}
			s.logger.Info("Snapshotter stopped")
			return nil

		case <-ticker.C:
			_ = s.Dump(ctx)
		}
	}
}

// Dump writes the current traces to every sink. A failing sink does not
// stop the others.
func (s *Snapshotter) Dump(ctx context.Context) error {
	traces := s.source.Recent(s.limit)

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, traces); err != nil {
			s.logger.Error("Snapshot write failed",
				slog.String("sink", sink.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		s.logger.Debug("Snapshot written",
			slog.String("sink", sink.Name()),
			slog.Int("traces", len(traces)),
		)
	}
	return errors.Join(errs...)
}
