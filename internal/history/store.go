// Package history persists contacts and their conversation transcript in
// SQLite. The transcript feeds generation context and the admin surface;
// the per-contact auto-reply flag gates the whole pipeline.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Message directions as stored.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// ErrContactNotFound indicates no contact exists for the given phone.
var ErrContactNotFound = errors.New("contact not found")

// Contact is a known conversation counterpart.
type Contact struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	AutoReply bool      `json:"auto_reply"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one stored transcript line.
type Message struct {
	ID        int64     `json:"id"`
	ContactID int64     `json:"contact_id"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		expanded := expandPath(path)
		if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		path = expanded
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			auto_reply INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create contacts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contact_id INTEGER NOT NULL REFERENCES contacts(id),
			direction TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	_, err = s.db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_messages_contact ON messages(contact_id, id)")
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindOrCreateContact returns the contact for phone, creating it with
// auto-reply enabled when unknown. A non-empty name updates a stale or
// missing stored name.
func (s *Store) FindOrCreateContact(ctx context.Context, phone, name string) (*Contact, error) {
	contact, err := s.contactByPhone(ctx, phone)
	if err == nil {
		if name != "" && name != contact.Name {
			if _, uerr := s.db.ExecContext(ctx,
				"UPDATE contacts SET name = ? WHERE id = ?", name, contact.ID); uerr != nil {
				return nil, fmt.Errorf("update contact name: %w", uerr)
			}
			contact.Name = name
		}
		return contact, nil
	}
	if !errors.Is(err, ErrContactNotFound) {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO contacts (phone, name) VALUES (?, ?)", phone, name)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("contact id: %w", err)
	}
	return &Contact{ID: id, Phone: phone, Name: name, AutoReply: true, CreatedAt: time.Now()}, nil
}

// ContactByPhone looks up a contact without creating it.
func (s *Store) ContactByPhone(ctx context.Context, phone string) (*Contact, error) {
	return s.contactByPhone(ctx, phone)
}

func (s *Store) contactByPhone(ctx context.Context, phone string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, phone, name, auto_reply, created_at FROM contacts WHERE phone = ?", phone)

	var c Contact
	var autoReply int
	if err := row.Scan(&c.ID, &c.Phone, &c.Name, &autoReply, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("query contact: %w", err)
	}
	c.AutoReply = autoReply != 0
	return &c, nil
}

// SetAutoReply flips the auto-reply flag for the contact with the given
// phone number.
func (s *Store) SetAutoReply(ctx context.Context, phone string, enabled bool) error {
	flag := 0
	if enabled {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET auto_reply = ? WHERE phone = ?", flag, phone)
	if err != nil {
		return fmt.Errorf("update auto_reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auto_reply: %w", err)
	}
	if n == 0 {
		return ErrContactNotFound
	}
	return nil
}

// SaveMessage appends a transcript line for the contact.
func (s *Store) SaveMessage(ctx context.Context, contactID int64, direction, body string) error {
	if direction != DirectionInbound && direction != DirectionOutbound {
		return fmt.Errorf("invalid direction %q", direction)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (contact_id, direction, body) VALUES (?, ?, ?)",
		contactID, direction, body)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the last n transcript lines for the contact in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, contactID int64, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, direction, body, created_at
		FROM messages WHERE contact_id = ?
		ORDER BY id DESC LIMIT ?`, contactID, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Newest-first from the query; flip to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
