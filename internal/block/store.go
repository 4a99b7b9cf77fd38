package block

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"websentry/internal/types"
)

// ErrNotFound is returned when no blocklist or whitelist row matches
var ErrNotFound = errors.New("entry not found")

// Store persists the blocklist and whitelist. One row per IP in each
// table; blocks are deactivated rather than deleted so history survives.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	query := `
	CREATE TABLE IF NOT EXISTS blocked_ips (
		id TEXT PRIMARY KEY,
		ip TEXT NOT NULL UNIQUE,
		reason TEXT,
		auto_blocked INTEGER NOT NULL DEFAULT 0,
		attack_count INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS whitelist_ips (
		id TEXT PRIMARY KEY,
		ip TEXT NOT NULL UNIQUE,
		reason TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocked_active ON blocked_ips(active);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("init block schema: %w", err)
	}
	return &Store{db: db}, nil
}

// GetBlock returns the block row for an IP regardless of active state
func (s *Store) GetBlock(ip string) (*types.BlockEntry, error) {
	var e types.BlockEntry
	err := s.db.QueryRow(`
		SELECT id, ip, reason, auto_blocked, attack_count, active, created_at
		FROM blocked_ips WHERE ip = ?
	`, ip).Scan(&e.ID, &e.IP, &e.Reason, &e.AutoBlocked, &e.AttackCount, &e.Active, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block for %s: %w", ip, err)
	}
	return &e, nil
}

// IsBlocked reports whether the IP has an active block
func (s *Store) IsBlocked(ip string) (bool, error) {
	e, err := s.GetBlock(ip)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Active, nil
}

// Upsert inserts a block row or updates the existing row for the IP.
// Reactivating an inactive block goes through here.
func (s *Store) Upsert(e *types.BlockEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO blocked_ips (id, ip, reason, auto_blocked, attack_count, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET
			reason = excluded.reason,
			auto_blocked = excluded.auto_blocked,
			attack_count = excluded.attack_count,
			active = excluded.active
	`, e.ID, e.IP, e.Reason, e.AutoBlocked, e.AttackCount, e.Active, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert block for %s: %w", e.IP, err)
	}
	return nil
}

// Deactivate unblocks an IP while keeping the row
func (s *Store) Deactivate(ip string) error {
	res, err := s.db.Exec("UPDATE blocked_ips SET active = 0 WHERE ip = ?", ip)
	if err != nil {
		return fmt.Errorf("deactivate block for %s: %w", ip, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlocks returns block rows, optionally only active ones
func (s *Store) ListBlocks(activeOnly bool) ([]types.BlockEntry, error) {
	query := "SELECT id, ip, reason, auto_blocked, attack_count, active, created_at FROM blocked_ips"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []types.BlockEntry
	for rows.Next() {
		var e types.BlockEntry
		if err := rows.Scan(&e.ID, &e.IP, &e.Reason, &e.AutoBlocked, &e.AttackCount, &e.Active, &e.CreatedAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsWhitelisted reports whether the IP has an active whitelist row
func (s *Store) IsWhitelisted(ip string) (bool, error) {
	var active bool
	err := s.db.QueryRow("SELECT active FROM whitelist_ips WHERE ip = ?", ip).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("whitelist check for %s: %w", ip, err)
	}
	return active, nil
}

// AddWhitelist inserts or reactivates a whitelist entry and deactivates
// any existing block for the IP. Whitelist wins over blocklist.
func (s *Store) AddWhitelist(ip, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO whitelist_ips (id, ip, reason, active, created_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(ip) DO UPDATE SET reason = excluded.reason, active = 1
	`, uuid.NewString(), ip, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add whitelist for %s: %w", ip, err)
	}
	_, err = s.db.Exec("UPDATE blocked_ips SET active = 0 WHERE ip = ?", ip)
	if err != nil {
		return fmt.Errorf("clear block for whitelisted %s: %w", ip, err)
	}
	return nil
}

// RemoveWhitelist deactivates a whitelist entry
func (s *Store) RemoveWhitelist(ip string) error {
	res, err := s.db.Exec("UPDATE whitelist_ips SET active = 0 WHERE ip = ?", ip)
	if err != nil {
		return fmt.Errorf("remove whitelist for %s: %w", ip, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWhitelist returns active whitelist entries
func (s *Store) ListWhitelist() ([]types.WhitelistEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ip, reason, active, created_at
		FROM whitelist_ips WHERE active = 1 ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	defer rows.Close()

	var out []types.WhitelistEntry
	for rows.Next() {
		var e types.WhitelistEntry
		if err := rows.Scan(&e.ID, &e.IP, &e.Reason, &e.Active, &e.CreatedAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
