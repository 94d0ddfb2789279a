package store

import (
	"database/sql"
	"time"
)

// Credentials is the persisted session identity: who is logged in on this
// profile and with what token.
type Credentials struct {
	Username string
	FullName string
	Token    string
	SavedAt  int64
}

// SaveCredentials stores the session identity, replacing any previous one.
func (db *DB) SaveCredentials(c *Credentials) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO credentials (id, username, full_name, token, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			token = excluded.token,
			saved_at = excluded.saved_at`,
		c.Username, c.FullName, c.Token, now)
	return err
}

// LoadCredentials returns the stored session identity, or nil if none is
// saved.
func (db *DB) LoadCredentials() (*Credentials, error) {
	var c Credentials
	err := db.QueryRow(`SELECT username, full_name, token, saved_at FROM credentials WHERE id = 1`).
		Scan(&c.Username, &c.FullName, &c.Token, &c.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClearCredentials removes the stored session identity on logout.
func (db *DB) ClearCredentials() error {
	_, err := db.Exec(`DELETE FROM credentials WHERE id = 1`)
	return err
}
