package model

import "time"

// Resolution values stored in registrations.resolution.  A
// registration resolves at most once: PENDING transitions to either
// APPROVED or REJECTED and never back.
const (
	ResolutionPending  = "PENDING"
	ResolutionApproved = "APPROVED"
	ResolutionRejected = "REJECTED"
)

// Registration records a registration request from submission to
// admin resolution.  The row outlives the decision so rejected
// requests remain auditable.  Email and username are copied from
// the user at submission time so the audit trail survives even if
// the user row is later removed.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – the pending user created by the submission.
//  Email       – email as submitted.
//  Username    – username as submitted.
//  InviteToken – invite consumed by this registration.
//  Resolution  – PENDING, APPROVED or REJECTED.
//  Reason      – optional admin note recorded on rejection.
//  SubmittedAt – when the registration was submitted.
//  ResolvedAt  – when an admin resolved it (null while pending).
type Registration struct {
	ID          uint64     // registrations.id
	UserID      uint64     // registrations.user_id
	Email       string     // registrations.email
	Username    string     // registrations.username
	InviteToken string     // registrations.invite_token
	Resolution  string     // registrations.resolution
	Reason      *string    // registrations.reason (nullable)
	SubmittedAt time.Time  // registrations.submitted_at
	ResolvedAt  *time.Time // registrations.resolved_at (nullable)
}
