package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Page caps. No pagination cursors: callers past the cap are invisible.
const (
	conversationLimit = 100
	messageLimit      = 1000
)

// Timestamps are stored as fixed-width ISO-8601 text (see models.FormatTime)
// so that ORDER BY on the column is chronological. The seq column breaks ties
// between messages written in the same microsecond.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at
    ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages(conversation_id, timestamp, seq);
`

type Database struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and ensures the
// schema exists.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps readers unblocked while an exchange writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	conv := models.NewConversation(title)

	_, err := d.db.ExecContext(ctx, `
        INSERT INTO conversations (id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, models.FormatTime(conv.CreatedAt), models.FormatTime(conv.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, `
        SELECT id, title, created_at, updated_at
        FROM conversations
        WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// ListConversations returns conversations by most recent activity first,
// capped at 100.
func (d *Database) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, title, created_at, updated_at
        FROM conversations
        ORDER BY updated_at DESC
        LIMIT ?`, conversationLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction. Returns ErrNotFound when no conversation matched, in which
// case nothing is deleted.
func (d *Database) DeleteConversation(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// InsertMessage appends a message record. Messages are immutable once
// written; there is no update or single delete.
func (d *Database) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := d.db.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, timestamp)
        VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, models.FormatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first, capped
// at 1000. Equal timestamps keep insertion order.
func (d *Database) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, timestamp
        FROM messages
        WHERE conversation_id = ?
        ORDER BY timestamp ASC, seq ASC
        LIMIT ?`, conversationID, messageLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg  models.Message
			role string
			ts   string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &ts); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		if msg.Timestamp, err = models.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("failed to parse message timestamp: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateConversationMeta sets exactly the updated_at and title columns.
// The id and created_at are never touched after creation.
func (d *Database) UpdateConversationMeta(ctx context.Context, id string, updatedAt time.Time, title string) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ?, title = ? WHERE id = ?",
		models.FormatTime(updatedAt), title, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		conv      models.Conversation
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = models.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if conv.UpdatedAt, err = models.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &conv, nil
}
