// Package telemetry holds the trace records produced by the dispatcher and the
// bounded buffer that stores the most recent ones.
//
// The buffer is a fixed-capacity ring: once full, every insert evicts the
// oldest record. Readers always receive copies, so a record never changes
// after it has been recorded.
//
//	buf := telemetry.NewBuffer(500)
//	_ = buf.Record(trace)
//	last := buf.Recent(20)              // oldest first, most recent last
//	t, ok := buf.LastForEngine(engine.Quote)
package telemetry
