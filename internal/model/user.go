package model

import "time"

// Role values stored in users.role.  ADMIN may manage invites,
// registrations and other users; USER may only act on itself.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Status values stored in users.status.  A freshly registered
// account starts as PENDING and only becomes ACTIVE once an admin
// approves its registration.  SUSPENDED accounts keep their rows
// but are refused on every authenticated call.
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
)

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column.  The json
// tags are omitted here because these structs are used by the
// repository layer; handlers define separate response types with
// appropriate JSON tags.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address (stored lower-cased).
//  Username     – unique display/login name.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or USER.
//  Status       – PENDING, ACTIVE or SUSPENDED.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	Status       string    // users.status
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its SHA-256
// hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
