package model

import "time"

// VPNConfig is the per-user network access record stored in the
// `vpn_configs` table.  A user owns at most one config; the row is
// created on the first Enable and never regenerated implicitly, so
// keys and the assigned address are stable for the account's
// lifetime.  Addresses are unique across all rows (enforced by a
// unique index and allocation inside a single transaction).
//
// Fields:
//  ID         – primary key identifier.
//  UserID     – owning user (unique, cascade-deleted with the user).
//  PublicKey  – WireGuard public key from the key-management service.
//  PrivateKey – WireGuard private key, returned only to the owner.
//  Address    – assigned address from the portal pool, e.g. "10.66.0.2".
//  Enabled    – whether network access is currently on.
//  CreatedAt  – timestamp of creation.
//  UpdatedAt  – timestamp of last update.
type VPNConfig struct {
	ID         uint64    // vpn_configs.id
	UserID     uint64    // vpn_configs.user_id
	PublicKey  string    // vpn_configs.public_key
	PrivateKey string    // vpn_configs.private_key
	Address    string    // vpn_configs.ip_address
	Enabled    bool      // vpn_configs.enabled
	CreatedAt  time.Time // vpn_configs.created_at
	UpdatedAt  time.Time // vpn_configs.updated_at
}

// VPNStatus is the aggregate view served to dashboards.
type VPNStatus struct {
	Configs  int `json:"configs"`
	Enabled  int `json:"enabled"`
	PoolSize int `json:"pool_size"`
	PoolFree int `json:"pool_free"`
}
