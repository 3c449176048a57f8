// Package queue carries audit events over RabbitMQ.
package queue

import "time"

// AuditQueueName is the durable queue every audit event is routed to.
const AuditQueueName = "filevault.audit"

// Event types.
const (
    UserRegistered = "user.registered"
    SessionOpened  = "session.opened"
    SessionRevoked = "session.revoked"
    FileStored     = "file.stored"
    FileUpdated    = "file.updated"
    FileDeleted    = "file.deleted"
)

// Event is published after a state change commits. It carries identifiers
// only; consumers look up anything else they need.
type Event struct {
    Type       string `json:"type"`
    UserID     string `json:"user_id"`
    DeviceID   string `json:"device_id,omitempty"`
    FileID     uint64 `json:"file_id,omitempty"`
    Count      int    `json:"count,omitempty"`
    OccurredAt string `json:"occurred_at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ, userID string) Event {
    return Event{Type: typ, UserID: userID, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}
