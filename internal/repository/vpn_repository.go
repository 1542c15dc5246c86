package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/vpn-access-portal/internal/model"
)

// VPNRepo stores per-user VPN configs and owns address allocation.
// Allocation locks the existing rows, picks the lowest free address
// from the pool and inserts the new config before releasing the lock,
// so two concurrent enables can never be handed the same address.
// The unique index on ip_address backs that up at the schema level.
type VPNRepo struct{ DB *sql.DB }

func NewVPNRepo(db *sql.DB) *VPNRepo { return &VPNRepo{DB: db} }

const vpnColumns = "id,user_id,public_key,private_key,ip_address,enabled,created_at,updated_at"

func scanVPN(scan func(dest ...any) error) (model.VPNConfig, error) {
	var cfg model.VPNConfig
	err := scan(&cfg.ID, &cfg.UserID, &cfg.PublicKey, &cfg.PrivateKey, &cfg.Address,
		&cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.VPNConfig{}, ErrNotFound
	}
	return cfg, err
}

// GetByUserID fetches the config owned by a user.
func (r *VPNRepo) GetByUserID(ctx context.Context, userID uint64) (model.VPNConfig, error) {
	return scanVPN(r.DB.QueryRowContext(ctx,
		"SELECT "+vpnColumns+" FROM vpn_configs WHERE user_id=? LIMIT 1", userID).Scan)
}

// Allocate creates a config for a user that has none: it assigns the
// lowest pool address not yet taken and persists the keypair, all in
// one transaction.  A concurrent allocation for the same user loses
// on the uq_vpn_user index and surfaces as ErrConflict.
func (r *VPNRepo) Allocate(ctx context.Context, userID uint64, publicKey, privateKey string, pool []string) (model.VPNConfig, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.VPNConfig{}, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT ip_address FROM vpn_configs FOR UPDATE")
	if err != nil {
		return model.VPNConfig{}, err
	}
	taken := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			rows.Close()
			return model.VPNConfig{}, err
		}
		taken[addr] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return model.VPNConfig{}, err
	}
	rows.Close()

	address := ""
	for _, a := range pool {
		if !taken[a] {
			address = a
			break
		}
	}
	if address == "" {
		return model.VPNConfig{}, ErrPoolExhausted
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO vpn_configs (user_id, public_key, private_key, ip_address, enabled) VALUES (?,?,?,?,1)",
		userID, publicKey, privateKey, address)
	if err != nil {
		if isDuplicate(err) {
			return model.VPNConfig{}, ErrConflict
		}
		return model.VPNConfig{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.VPNConfig{}, err
	}

	cfg, err := scanVPN(tx.QueryRowContext(ctx,
		"SELECT "+vpnColumns+" FROM vpn_configs WHERE id=?", id).Scan)
	if err != nil {
		return model.VPNConfig{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.VPNConfig{}, err
	}
	return cfg, nil
}

// SetEnabled flips the enabled flag.  Both directions are idempotent;
// flipping a missing config yields ErrNotFound.
func (r *VPNRepo) SetEnabled(ctx context.Context, userID uint64, enabled bool) (model.VPNConfig, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE vpn_configs SET enabled=? WHERE user_id=?", enabled, userID); err != nil {
		return model.VPNConfig{}, err
	}
	return r.GetByUserID(ctx, userID)
}

// Status returns the aggregate counts dashboards display.
func (r *VPNRepo) Status(ctx context.Context, poolSize int) (model.VPNStatus, error) {
	var (
		total   int
		enabled sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(enabled),0) FROM vpn_configs").Scan(&total, &enabled)
	if err != nil {
		return model.VPNStatus{}, err
	}
	return model.VPNStatus{
		Configs:  total,
		Enabled:  int(enabled.Int64),
		PoolSize: poolSize,
		PoolFree: poolSize - total,
	}, nil
}
