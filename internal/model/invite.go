package model

import "time"

// Invite is a single-use registration token as stored in the
// `invites` table.  The token itself is the primary key; it is a
// 32-character hex string produced from 16 bytes of crypto/rand
// output, so knowing the list endpoint is not enough to guess one.
//
// Fields:
//  Token        – unguessable random token, primary key.
//  Email        – optional binding; when set only this address may redeem.
//  ExpiresAt    – the token stops being redeemable at this instant.
//  Used         – set exactly once, atomically, on redemption.
//  UsedByUserID – user created from the redemption (nullable).
//  CreatedAt    – timestamp of creation.
type Invite struct {
	Token        string    // invites.token
	Email        *string   // invites.email (nullable)
	ExpiresAt    time.Time // invites.expires_at
	Used         bool      // invites.used
	UsedByUserID *uint64   // invites.used_by_user_id (nullable)
	CreatedAt    time.Time // invites.created_at
}

// Redeemable reports whether the invite can still back a
// registration at the given instant.
func (i Invite) Redeemable(now time.Time) bool {
	return !i.Used && now.Before(i.ExpiresAt)
}
