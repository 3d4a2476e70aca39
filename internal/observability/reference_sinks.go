package observability

import "context"

// MultiSink fans Emit out to several sinks without going through a full
// SinkManager (no redaction, no panic recovery) — useful when composing a
// LoggerSink with a PrometheusSink under a single SinkManager.Register call.
type MultiSink []Sink

// Emit forwards event to every member sink in order.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
