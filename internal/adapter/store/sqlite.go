package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"piifinder/internal/domain"
)

// SQLiteSelectorStore implements domain.SelectorStore using SQLite.
type SQLiteSelectorStore struct {
	db *sql.DB
}

// NewSQLiteSelectorStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteSelectorStore(dbPath string) (*SQLiteSelectorStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open selector db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate selector db: %w", err)
	}
	return &SQLiteSelectorStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS selectors (
			hostname   TEXT NOT NULL,
			selector   TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'block',
			created_at TEXT NOT NULL,
			PRIMARY KEY (hostname, selector)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteSelectorStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteSelectorStore) Add(ctx context.Context, hostname string, sel domain.StoredSelector) error {
	if hostname == "" || strings.TrimSpace(sel.Selector) == "" {
		return domain.NewDomainError("SelectorStore.Add", domain.ErrInvalidInput, "hostname and selector are required")
	}
	if sel.Type == "" {
		sel.Type = domain.SelectorTypeBlock
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO selectors (hostname, selector, type, created_at) VALUES (?, ?, ?, ?)",
		hostname, sel.Selector, sel.Type, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteSelectorStore) List(ctx context.Context, hostname string) ([]domain.StoredSelector, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT selector, type FROM selectors WHERE hostname = ? ORDER BY created_at, rowid", hostname)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredSelector
	for rows.Next() {
		var sel domain.StoredSelector
		if err := rows.Scan(&sel.Selector, &sel.Type); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *SQLiteSelectorStore) Remove(ctx context.Context, hostname, selector string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM selectors WHERE hostname = ? AND selector = ?", hostname, selector)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("SelectorStore.Remove", domain.ErrNotFound, selector)
	}
	return nil
}

func (s *SQLiteSelectorStore) Clear(ctx context.Context, hostname string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM selectors WHERE hostname = ?", hostname)
	return err
}

func (s *SQLiteSelectorStore) Hostnames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT hostname FROM selectors ORDER BY hostname")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// HostnameFromURL returns the lower-cased host of raw without its port.
// A bare host such as "shop.example.com/cart" is accepted.
func HostnameFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.NewDomainError("HostnameFromURL", domain.ErrInvalidInput, "empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.NewDomainError("HostnameFromURL", domain.ErrInvalidInput, err.Error())
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", domain.NewDomainError("HostnameFromURL", domain.ErrInvalidInput, "no host in "+raw)
	}
	return host, nil
}

var _ domain.SelectorStore = (*SQLiteSelectorStore)(nil)
