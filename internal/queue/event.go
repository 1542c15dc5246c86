// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Event types published to the portal.events queue.
const (
	EventRegistrationApproved = "registration.approved"
	EventRegistrationRejected = "registration.rejected"
	EventUserSuspended        = "user.suspended"
	EventUserDeleted          = "user.deleted"
	EventVPNEnabled           = "vpn.enabled"
	EventVPNDisabled          = "vpn.disabled"
)

// LifecycleEvent is published whenever an account or its network
// access changes state.  It carries enough for downstream consumers
// (audit, notifications, voice-server sync) to act without querying
// the portal database.
type LifecycleEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	Username   string `json:"username,omitempty"`
	Actor      uint64 `json:"actor,omitempty"` // admin who triggered it, 0 for self-service
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewLifecycleEvent stamps a fresh event with a unique id and the
// current UTC time.
func NewLifecycleEvent(typ string, userID uint64, email string) LifecycleEvent {
	return LifecycleEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
