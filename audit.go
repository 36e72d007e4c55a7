package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the service. Persisting and querying the
// events is the sink's concern.
const (
	AuditLoginFailure     = "auth.login_failure"
	AuditLoginLocked      = "auth.login_locked"
	AuditOTPIssued        = "auth.otp_issued"
	AuditOTPVerified      = "auth.otp_verified"
	AuditOTPExhausted     = "auth.otp_exhausted"
	AuditRegister         = "auth.register"
	AuditPasswordChanged  = "auth.password_changed"
	AuditPasswordReset    = "auth.password_reset"
	AuditPHIAccess        = "phi.access"
	AuditAccountAnonymize = "account.anonymize"
	AuditAccountExport    = "account.export"
)

// AuditEvent is one structured security fact. AccountID is the subject;
// ActorID is the authenticated caller where the two differ, such as an
// admin reading a patient's profile.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Emit must not block
// for long; slow sinks should buffer internally.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for a consumer
// loop.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
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
