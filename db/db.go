package db

import (
	"database/sql"
	"relay/models"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	conn *sql.DB
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, err
	}

	store := &Store{conn: conn}
	if err := store.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			content TEXT NOT NULL,
			delivered INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_undelivered ON messages(recipient, delivered)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// RegisterUser inserts the username if it is not already present.
func (s *Store) RegisterUser(username string) error {
	_, err := s.conn.Exec("INSERT OR IGNORE INTO users (username) VALUES (?)", username)
	return err
}

func (s *Store) UserExists(username string) (bool, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetPassword stores a bcrypt hash for the user. Registers the user first if
// needed so a first login with a password is a single call site.
func (s *Store) SetPassword(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.RegisterUser(username); err != nil {
		return err
	}

	_, err = s.conn.Exec("UPDATE users SET password = ? WHERE username = ?", string(hashed), username)
	return err
}

// Authenticate reports whether the supplied password grants the username.
// Unknown users and users without a stored password are accepted; only a
// stored bcrypt hash is enforced.
func (s *Store) Authenticate(username, password string) (bool, error) {
	var hashed string
	err := s.conn.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&hashed)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if hashed == "" {
		return true, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil, nil
}

func (s *Store) ListRegisteredUsers() ([]string, error) {
	rows, err := s.conn.Query("SELECT username FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, err
		}
		users = append(users, username)
	}

	return users, rows.Err()
}

// StoreMessage appends an undelivered message, assigning the timestamp and a
// fresh monotonic id. The row is committed before StoreMessage returns.
func (s *Store) StoreMessage(sender, recipient, content string) (models.Message, error) {
	timestamp := time.Now().UTC().Truncate(time.Second)

	result, err := s.conn.Exec(
		"INSERT INTO messages (sender, recipient, timestamp, content, delivered) VALUES (?, ?, ?, ?, 0)",
		sender, recipient, timestamp.Format(time.RFC3339), content,
	)
	if err != nil {
		return models.Message{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Message{}, err
	}

	return models.Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Timestamp: timestamp,
	}, nil
}

// FetchUndelivered returns the recipient's pending messages ordered by id,
// which is chronological order since ids are monotonic.
func (s *Store) FetchUndelivered(recipient string) ([]models.Message, error) {
	rows, err := s.conn.Query(
		"SELECT id, sender, recipient, timestamp, content FROM messages WHERE recipient = ? AND delivered = 0 ORDER BY id ASC",
		recipient,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var timestampStr string
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &timestampStr, &m.Content); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, err
		}
		m.Timestamp = timestamp

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkDelivered flips the delivered flag for exactly the given ids.
// A nil or empty set is a no-op.
func (s *Store) MarkDelivered(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.conn.Exec("UPDATE messages SET delivered = 1 WHERE id IN ("+placeholders+")", args...)
	return err
}

// CountUndelivered returns the number of pending messages across all users.
func (s *Store) CountUndelivered() (int, error) {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM messages WHERE delivered = 0").Scan(&count)
	return count, err
}
