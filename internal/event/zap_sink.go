package event

import (
	"sync"

	"go.uber.org/zap"
)

// ZapSink writes events through a structured zap logger, one field set per
// event, the same way the teacher's controllers route everything through
// logr.Logger (itself zapr-backed) rather than printing to stdout directly.
type ZapSink struct {
	Logger *zap.Logger
}

// NewZapSink wraps an existing *zap.Logger.
func NewZapSink(l *zap.Logger) *ZapSink {
	return &ZapSink{Logger: l}
}

func (s *ZapSink) Send(e Event) {
	if s.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("organization_id", e.Details.OrganizationID),
		zap.String("cluster_id", e.Details.ClusterID),
		zap.String("execution_id", e.Details.ExecutionID),
		zap.String("region", e.Details.Region),
		zap.String("stage", string(e.Details.Stage)),
		zap.String("transmitter_kind", string(e.Details.Transmitter.Kind)),
		zap.String("transmitter_id", e.Details.Transmitter.ID),
		zap.String("transmitter_name", e.Details.Transmitter.Name),
	}
	if e.DetailedMessage != "" {
		fields = append(fields, zap.String("detail", e.DetailedMessage))
	}

	switch e.Severity {
	case SeverityError:
		s.Logger.Error(e.SafeMessage, fields...)
	case SeverityWarning:
		s.Logger.Warn(e.SafeMessage, fields...)
	default:
		s.Logger.Info(e.SafeMessage, fields...)
	}
}

// MemorySink records every event in order, for tests that assert on exact
// event sequences (e.g. scenario S1's Build → Built → Deploy → Deployed).
type MemorySink struct {
	mu     sync.Mutex
	Events []Event
}

func (s *MemorySink) Send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
}

// Stages returns just the Stage of each recorded event, in order — the
// shape scenario assertions usually want.
func (s *MemorySink) Stages() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stage, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.Details.Stage
	}
	return out
}
