// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/pair persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Foreign keys drive the conversation -> messages/pairs cascade
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			branched_from TEXT REFERENCES conversations(id) ON DELETE SET NULL,
			model TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated
			ON conversations(owner_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender TEXT NOT NULL CHECK (sender IN ('USER', 'ASSISTANT')),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS message_response_pairs (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_message_id TEXT NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
			assistant_message_id TEXT REFERENCES messages(id) ON DELETE SET NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pairs_conversation_created
			ON message_response_pairs(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// insertConversationTx inserts a conversation row inside an open transaction.
func insertConversationTx(ctx context.Context, tx *sql.Tx, conv *Conversation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, branched_from, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.BranchedFrom, conv.Model, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// insertMessageTx inserts a message row inside an open transaction.
func insertMessageTx(ctx context.Context, tx *sql.Tx, msg *Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// insertPairTx inserts a pair row inside an open transaction.
func insertPairTx(ctx context.Context, tx *sql.Tx, pair *MessageResponsePair) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO message_response_pairs (id, conversation_id, user_message_id, assistant_message_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		pair.ID, pair.ConversationID, pair.UserMessageID, pair.AssistantMessageID, pair.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting pair: %w", err)
	}
	return nil
}

// CreateConversation atomically creates a conversation together with its first
// exchange. Nothing is written if any of the inserts fails.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, userMsg, assistantMsg *Message, pair *MessageResponsePair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertConversationTx(ctx, tx, conv); err != nil {
		return err
	}
	if err := insertMessageTx(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := insertMessageTx(ctx, tx, assistantMsg); err != nil {
		return err
	}
	if err := insertPairTx(ctx, tx, pair); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateConversationWithHistory atomically creates a conversation together
// with a copied message/pair history. Used by conversation branching.
func (s *SQLiteStore) CreateConversationWithHistory(ctx context.Context, conv *Conversation, msgs []*Message, pairs []*MessageResponsePair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertConversationTx(ctx, tx, conv); err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := insertMessageTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	for _, pair := range pairs {
		if err := insertPairTx(ctx, tx, pair); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetConversation retrieves a conversation by ID
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, branched_from, model, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns all conversations owned by the given user,
// most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, branched_from, model, created_at, updated_at
		FROM conversations WHERE owner_id = ?
		ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// RenameConversation updates a conversation's title and returns the updated row.
func (s *SQLiteStore) RenameConversation(ctx context.Context, id, title string) (*Conversation, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return nil, fmt.Errorf("renaming conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rename result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation and, via foreign key cascade,
// all of its messages and pairs. Returns ErrNotFound for an unknown id.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMessage retrieves a message by ID
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages WHERE id = ?`, id)

	msg := &Message{}
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// GetMessagesByConversation returns the most recent `limit` messages of a
// conversation in creation order (oldest first). A limit <= 0 returns all
// messages.
func (s *SQLiteStore) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first to apply the window; callers want oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendExchange atomically persists a new user message, assistant message and
// their pairing, and bumps the owning conversation's updated_at.
func (s *SQLiteStore) AppendExchange(ctx context.Context, userMsg, assistantMsg *Message, pair *MessageResponsePair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMessageTx(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := insertMessageTx(ctx, tx, assistantMsg); err != nil {
		return err
	}
	if err := insertPairTx(ctx, tx, pair); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		assistantMsg.CreatedAt, pair.ConversationID)
	if err != nil {
		return fmt.Errorf("bumping conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking bump result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetPairByUserMessage resolves the pair whose user side is the given message.
func (s *SQLiteStore) GetPairByUserMessage(ctx context.Context, userMessageID string) (*MessageResponsePair, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, user_message_id, assistant_message_id, created_at
		FROM message_response_pairs WHERE user_message_id = ?`, userMessageID)

	pair := &MessageResponsePair{}
	err := row.Scan(&pair.ID, &pair.ConversationID, &pair.UserMessageID, &pair.AssistantMessageID, &pair.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pair: %w", err)
	}
	return pair, nil
}

// SaveRegeneratedPair atomically overwrites the pair's user message content
// and replaces its assistant side. When the pair already has an assistant
// message its content is overwritten in place; otherwise the given assistant
// message is inserted and linked. No new pair is ever created.
func (s *SQLiteStore) SaveRegeneratedPair(ctx context.Context, pair *MessageResponsePair, userText string, assistant *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE id = ?`, userText, pair.UserMessageID)
	if err != nil {
		return fmt.Errorf("updating user message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking user update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if pair.AssistantMessageID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET content = ? WHERE id = ?`,
			assistant.Content, *pair.AssistantMessageID); err != nil {
			return fmt.Errorf("updating assistant message: %w", err)
		}
	} else {
		if err := insertMessageTx(ctx, tx, assistant); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE message_response_pairs SET assistant_message_id = ? WHERE id = ?`,
			assistant.ID, pair.ID); err != nil {
			return fmt.Errorf("linking assistant message: %w", err)
		}
	}

	return tx.Commit()
}

// ListExchanges returns up to `limit` pairs of a conversation in creation
// order with their message contents embedded. A limit <= 0 returns all pairs.
func (s *SQLiteStore) ListExchanges(ctx context.Context, conversationID string, limit int) ([]*Exchange, error) {
	query := `
		SELECT p.id, p.conversation_id, p.user_message_id, p.assistant_message_id, p.created_at,
		       u.id, u.conversation_id, u.sender, u.content, u.created_at,
		       a.id, a.conversation_id, a.sender, a.content, a.created_at
		FROM message_response_pairs p
		JOIN messages u ON u.id = p.user_message_id
		LEFT JOIN messages a ON a.id = p.assistant_message_id
		WHERE p.conversation_id = ?
		ORDER BY p.created_at`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*Exchange
	for rows.Next() {
		pair := &MessageResponsePair{}
		user := &Message{}
		var aID, aConvID, aSender, aContent sql.NullString
		var aCreatedAt sql.NullTime

		err := rows.Scan(
			&pair.ID, &pair.ConversationID, &pair.UserMessageID, &pair.AssistantMessageID, &pair.CreatedAt,
			&user.ID, &user.ConversationID, &user.Sender, &user.Content, &user.CreatedAt,
			&aID, &aConvID, &aSender, &aContent, &aCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}

		ex := &Exchange{Pair: pair, UserMessage: user}
		if aID.Valid {
			ex.AssistantMessage = &Message{
				ID:             aID.String,
				ConversationID: aConvID.String,
				Sender:         aSender.String,
				Content:        aContent.String,
				CreatedAt:      aCreatedAt.Time,
			}
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*Conversation, error) {
	conv := &Conversation{}
	var branchedFrom sql.NullString
	err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &branchedFrom, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if branchedFrom.Valid {
		conv.BranchedFrom = &branchedFrom.String
	}
	return conv, nil
}
