package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/vpn-access-portal/internal/keymgr"
	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/queue"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
)

// memStore is an in-memory double for all store interfaces.  A single
// mutex makes every operation atomic, mirroring the transactional
// guarantees of the real repositories, so the concurrency tests
// exercise the handlers against the same semantics.
type memStore struct {
	mu sync.Mutex

	freeRejected bool

	nextUserID uint64
	nextRegID  uint64
	users      map[uint64]model.User
	invites    map[string]model.Invite
	regs       map[uint64]model.Registration
	refresh    map[string]refreshRow // keyed by hash
	vpn        map[uint64]model.VPNConfig
	nextVPNID  uint64
}

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

func newMemStore() *memStore {
	return &memStore{
		nextUserID: 1,
		nextRegID:  1,
		nextVPNID:  1,
		users:      map[uint64]model.User{},
		invites:    map[string]model.Invite{},
		regs:       map[uint64]model.Registration{},
		refresh:    map[string]refreshRow{},
		vpn:        map[uint64]model.VPNConfig{},
	}
}

func (s *memStore) addUser(email, username, hash, role, status string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := model.User{
		ID: s.nextUserID, Email: email, Username: username,
		PasswordHash: hash, Role: role, Status: status,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	s.nextUserID++
	s.users[u.ID] = u
	return u
}

func (s *memStore) addInvite(token string, email *string, expiresAt time.Time) model.Invite {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := model.Invite{Token: token, Email: email, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC()}
	s.invites[token] = inv
	return inv
}

// --- UserStore ---

func (s *memStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *memStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memStore) List(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.users))
	for id := uint64(1); id < s.nextUserID; id++ {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) UpdateProfile(ctx context.Context, id uint64, username, passwordHash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if username != "" {
		for _, other := range s.users {
			if other.ID != id && other.Username == username {
				return model.User{}, repository.ErrUsernameExists
			}
		}
		u.Username = username
	}
	if passwordHash != "" {
		u.PasswordHash = passwordHash
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id uint64, status string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, nil
}

func (s *memStore) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	delete(s.vpn, id)
	for h, row := range s.refresh {
		if row.userID == id {
			delete(s.refresh, h)
		}
	}
	return nil
}

// --- InviteStore ---

func (s *memStore) Create(ctx context.Context, token string, email *string, expiresAt time.Time) (model.Invite, error) {
	return s.addInvite(token, email, expiresAt), nil
}

func (s *memStore) GetByToken(ctx context.Context, token string) (model.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok {
		return model.Invite{}, repository.ErrNotFound
	}
	return inv, nil
}

func (s *memStore) ListInvites(ctx context.Context, filter string) ([]model.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []model.Invite
	for _, inv := range s.invites {
		switch filter {
		case "active":
			if inv.Used || now.After(inv.ExpiresAt) {
				continue
			}
		case "expired":
			if inv.Used || !now.After(inv.ExpiresAt) {
				continue
			}
		case "used":
			if !inv.Used {
				continue
			}
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *memStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok {
		return repository.ErrNotFound
	}
	if !inv.Used {
		delete(s.invites, token)
	}
	return nil
}

// --- RegistrationStore ---

func (s *memStore) Submit(ctx context.Context, p repository.SubmitParams) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[p.InviteToken]
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	if inv.Used {
		return model.Registration{}, repository.ErrInviteUsed
	}
	if time.Now().UTC().After(inv.ExpiresAt) {
		return model.Registration{}, repository.ErrInviteExpired
	}
	if inv.Email != nil && *inv.Email != p.Email {
		return model.Registration{}, repository.ErrEmailMismatch
	}

	if s.freeRejected {
		for id, u := range s.users {
			if u.Email != p.Email && u.Username != p.Username {
				continue
			}
			rejected := false
			for _, reg := range s.regs {
				if reg.UserID == id && reg.Resolution == model.ResolutionRejected {
					rejected = true
				}
			}
			if rejected {
				delete(s.users, id)
			}
		}
	}

	for _, u := range s.users {
		if u.Email == p.Email {
			return model.Registration{}, repository.ErrEmailExists
		}
		if u.Username == p.Username {
			return model.Registration{}, repository.ErrUsernameExists
		}
	}

	u := model.User{
		ID: s.nextUserID, Email: p.Email, Username: p.Username,
		PasswordHash: p.PasswordHash, Role: model.RoleUser, Status: model.StatusPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	s.nextUserID++
	s.users[u.ID] = u

	reg := model.Registration{
		ID: s.nextRegID, UserID: u.ID, Email: p.Email, Username: p.Username,
		InviteToken: p.InviteToken, Resolution: model.ResolutionPending,
		SubmittedAt: time.Now().UTC(),
	}
	s.nextRegID++
	s.regs[reg.ID] = reg

	inv.Used = true
	uid := u.ID
	inv.UsedByUserID = &uid
	s.invites[p.InviteToken] = inv
	return reg, nil
}

func (s *memStore) Resolve(ctx context.Context, id uint64, resolution string, reason *string) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	if reg.Resolution != model.ResolutionPending {
		return model.Registration{}, repository.ErrInvalidState
	}
	reg.Resolution = resolution
	reg.Reason = reason
	now := time.Now().UTC()
	reg.ResolvedAt = &now
	s.regs[id] = reg

	if resolution == model.ResolutionApproved {
		if u, ok := s.users[reg.UserID]; ok {
			u.Status = model.StatusActive
			s.users[reg.UserID] = u
		}
	}
	return reg, nil
}

func (s *memStore) GetRegByID(ctx context.Context, id uint64) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	return reg, nil
}

func (s *memStore) ListRegs(ctx context.Context, filter string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for id := uint64(1); id < s.nextRegID; id++ {
		reg, ok := s.regs[id]
		if !ok {
			continue
		}
		if filter == "pending" && reg.Resolution != model.ResolutionPending {
			continue
		}
		out = append(out, reg)
	}
	return out, nil
}

// --- SessionStore ---

func (s *memStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshRow{userID: userID, exp: exp}
	return nil
}

func (s *memStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[tokenHash]
	if !ok || row.revoked || time.Now().UTC().After(row.exp) {
		return 0, repository.ErrNotFound
	}
	return row.userID, nil
}

func (s *memStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[tokenHash]
	if !ok || row.revoked {
		return repository.ErrNotFound
	}
	row.revoked = true
	s.refresh[tokenHash] = row
	return nil
}

func (s *memStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, row := range s.refresh {
		if row.userID == userID {
			row.revoked = true
			s.refresh[h] = row
		}
	}
	return nil
}

// --- VPNStore ---

func (s *memStore) GetByUserID(ctx context.Context, userID uint64) (model.VPNConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.vpn[userID]
	if !ok {
		return model.VPNConfig{}, repository.ErrNotFound
	}
	return cfg, nil
}

func (s *memStore) Allocate(ctx context.Context, userID uint64, publicKey, privateKey string, pool []string) (model.VPNConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vpn[userID]; ok {
		return model.VPNConfig{}, repository.ErrConflict
	}
	taken := map[string]bool{}
	for _, cfg := range s.vpn {
		taken[cfg.Address] = true
	}
	address := ""
	for _, a := range pool {
		if !taken[a] {
			address = a
			break
		}
	}
	if address == "" {
		return model.VPNConfig{}, repository.ErrPoolExhausted
	}
	cfg := model.VPNConfig{
		ID: s.nextVPNID, UserID: userID, PublicKey: publicKey, PrivateKey: privateKey,
		Address: address, Enabled: true,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	s.nextVPNID++
	s.vpn[userID] = cfg
	return cfg, nil
}

func (s *memStore) SetEnabled(ctx context.Context, userID uint64, enabled bool) (model.VPNConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.vpn[userID]
	if !ok {
		return model.VPNConfig{}, repository.ErrNotFound
	}
	cfg.Enabled = enabled
	cfg.UpdatedAt = time.Now().UTC()
	s.vpn[userID] = cfg
	return cfg, nil
}

func (s *memStore) Status(ctx context.Context, poolSize int) (model.VPNStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled := 0
	for _, cfg := range s.vpn {
		if cfg.Enabled {
			enabled++
		}
	}
	return model.VPNStatus{
		Configs: len(s.vpn), Enabled: enabled,
		PoolSize: poolSize, PoolFree: poolSize - len(s.vpn),
	}, nil
}

// regStoreView adapts memStore's registration methods to the
// RegistrationStore interface without colliding with the invite
// methods of the same names.
type regStoreView struct{ s *memStore }

func (v regStoreView) Submit(ctx context.Context, p repository.SubmitParams) (model.Registration, error) {
	return v.s.Submit(ctx, p)
}
func (v regStoreView) Resolve(ctx context.Context, id uint64, resolution string, reason *string) (model.Registration, error) {
	return v.s.Resolve(ctx, id, resolution, reason)
}
func (v regStoreView) GetByID(ctx context.Context, id uint64) (model.Registration, error) {
	return v.s.GetRegByID(ctx, id)
}
func (v regStoreView) List(ctx context.Context, filter string) ([]model.Registration, error) {
	return v.s.ListRegs(ctx, filter)
}

// inviteStoreView adapts the invite methods the same way.
type inviteStoreView struct{ s *memStore }

func (v inviteStoreView) Create(ctx context.Context, token string, email *string, expiresAt time.Time) (model.Invite, error) {
	return v.s.Create(ctx, token, email, expiresAt)
}
func (v inviteStoreView) GetByToken(ctx context.Context, token string) (model.Invite, error) {
	return v.s.GetByToken(ctx, token)
}
func (v inviteStoreView) List(ctx context.Context, filter string) ([]model.Invite, error) {
	return v.s.ListInvites(ctx, filter)
}
func (v inviteStoreView) Revoke(ctx context.Context, token string) error {
	return v.s.Revoke(ctx, token)
}

// fakeKeys is a canned KeyIssuer.
type fakeKeys struct {
	mu     sync.Mutex
	issued int
	fail   bool
}

func (f *fakeKeys) IssueKeypair(ctx context.Context) (keymgr.Keypair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return keymgr.Keypair{}, fmt.Errorf("issue: connection refused")
	}
	f.issued++
	n := f.issued
	return keymgr.Keypair{
		PublicKey:  fmt.Sprintf("pub-%d", n),
		PrivateKey: fmt.Sprintf("priv-%d", n),
	}, nil
}

func (f *fakeKeys) ServerInfo(ctx context.Context) (keymgr.ServerInfo, error) {
	return keymgr.ServerInfo{PublicKey: "server-pub", Endpoint: "vpn.example.com:51820", DNS: "10.66.0.1"}, nil
}

func (f *fakeKeys) RestartGateway(ctx context.Context) error { return nil }

// eventRecorder captures published lifecycle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []queue.LifecycleEvent
}

func (r *eventRecorder) publish(ctx context.Context, ev queue.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
