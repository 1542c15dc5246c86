package handler

import (
	"context"
	"time"

	"github.com/iliyamo/vpn-access-portal/internal/keymgr"
	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/queue"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
)

// The handlers depend on these narrow store interfaces rather than on
// the concrete repositories, so tests can drive them with in-memory
// fakes.  The repository types satisfy them as-is.

// UserStore is the credential store surface the handlers use.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, id uint64, username, passwordHash string) (model.User, error)
	UpdateStatus(ctx context.Context, id uint64, status string) (model.User, error)
	Delete(ctx context.Context, id uint64) error
}

// InviteStore is the invite ledger surface.
type InviteStore interface {
	Create(ctx context.Context, token string, email *string, expiresAt time.Time) (model.Invite, error)
	GetByToken(ctx context.Context, token string) (model.Invite, error)
	List(ctx context.Context, filter string) ([]model.Invite, error)
	Revoke(ctx context.Context, token string) error
}

// RegistrationStore runs the registration pipeline's two atomic
// transitions and its read side.
type RegistrationStore interface {
	Submit(ctx context.Context, p repository.SubmitParams) (model.Registration, error)
	Resolve(ctx context.Context, id uint64, resolution string, reason *string) (model.Registration, error)
	GetByID(ctx context.Context, id uint64) (model.Registration, error)
	List(ctx context.Context, filter string) ([]model.Registration, error)
}

// SessionStore persists refresh token hashes.  RevokeByHash succeeds
// at most once per token and returns ErrNotFound afterwards; it is the
// consuming step of a rotation.
type SessionStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// VPNStore is the provisioning gate's persistence surface.
type VPNStore interface {
	GetByUserID(ctx context.Context, userID uint64) (model.VPNConfig, error)
	Allocate(ctx context.Context, userID uint64, publicKey, privateKey string, pool []string) (model.VPNConfig, error)
	SetEnabled(ctx context.Context, userID uint64, enabled bool) (model.VPNConfig, error)
	Status(ctx context.Context, poolSize int) (model.VPNStatus, error)
}

// KeyIssuer is the key-management collaborator.
type KeyIssuer interface {
	IssueKeypair(ctx context.Context) (keymgr.Keypair, error)
	ServerInfo(ctx context.Context) (keymgr.ServerInfo, error)
	RestartGateway(ctx context.Context) error
}

// EventPublisher pushes a lifecycle event to the broker.  Publishing
// is best-effort: handlers log failures and carry on.
type EventPublisher func(ctx context.Context, event queue.LifecycleEvent) error
