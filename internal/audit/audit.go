package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the token lifecycle engine.
const (
	EventIssueSuccess        = "issue_success"
	EventIssueBlocked        = "issue_blocked"
	EventIssueFailure        = "issue_failure"
	EventRotateSuccess       = "rotate_success"
	EventRotateNotFound      = "rotate_not_found"
	EventReuseDetected       = "reuse_detected"
	EventRotateFamilyRevoked = "rotate_family_revoked"
	EventRotateFailure       = "rotate_failure"
	EventRevokeToken         = "revoke_token"
	EventRevokeFamily        = "revoke_family"
	EventRevokeMember        = "revoke_member"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	MemberID  int64             `json:"member_id,omitempty"`
	FamilyID  string            `json:"family_id,omitempty"`
	JTI       string            `json:"jti,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Critical reports whether the event is security evidence that must reach
// the sink even under backpressure: a detected reuse and the revocation
// sweeps it triggers are exactly what an operator reconstructs an incident
// from, so the dispatcher never drops them.
func (e Event) Critical() bool {
	switch e.EventType {
	case EventReuseDetected, EventRevokeFamily, EventRevokeMember:
		return true
	}
	return false
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
