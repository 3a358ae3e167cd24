package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-sqlite3"

	"github.com/moyoez/codesync-go/types"
)

type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		public_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tree_json TEXT NOT NULL,
		chat_json TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateUser(ctx context.Context, u types.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, u.Username, u.Email, u.PasswordHash, u.CreatedAt.UTC())
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("user %q: %w", u.Username, types.ErrConflict)
	}
	return err
}

func (s *SQLite) GetUser(ctx context.Context, username string) (types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, email, password_hash, created_at FROM users WHERE username = ?
	`, username).Scan(&u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, fmt.Errorf("user %q: %w", username, types.ErrNotFound)
	}
	return u, err
}

func (s *SQLite) SaveSession(ctx context.Context, snap types.SessionSnapshot) error {
	treeJSON, err := sonic.Marshal(snap.Tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	chat := snap.Chat
	if chat == nil {
		chat = []types.ChatMessage{}
	}
	chatJSON, err := sonic.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (public_id, name, tree_json, chat_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(public_id) DO UPDATE SET
			name = excluded.name,
			tree_json = excluded.tree_json,
			chat_json = excluded.chat_json,
			updated_at = excluded.updated_at
	`, snap.PublicID, snap.Name, string(treeJSON), string(chatJSON), snap.CreatedAt.UTC(), updated.UTC())
	return err
}

func (s *SQLite) DeleteSession(ctx context.Context, publicID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE public_id = ?`, publicID)
	return err
}

func (s *SQLite) LoadSessions(ctx context.Context) ([]types.SessionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_id, name, tree_json, chat_json, created_at, updated_at
		FROM sessions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SessionSnapshot
	for rows.Next() {
		var (
			snap               types.SessionSnapshot
			treeJSON, chatJSON string
		)
		if err := rows.Scan(&snap.PublicID, &snap.Name, &treeJSON, &chatJSON, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		if err := sonic.UnmarshalString(treeJSON, &snap.Tree); err != nil {
			return nil, fmt.Errorf("decode tree of %s: %w", snap.PublicID, err)
		}
		if err := sonic.UnmarshalString(chatJSON, &snap.Chat); err != nil {
			return nil, fmt.Errorf("decode chat of %s: %w", snap.PublicID, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
