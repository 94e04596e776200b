package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// One connection serializes every transaction, which makes appends a
	// single read-modify-write against the latest state. It also keeps a
	// :memory: database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err = store.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateConversation stores a new conversation with optional initial
// messages. Messages without a timestamp get the creation time.
func (s *SQLiteStore) CreateConversation(ctx context.Context, title *string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin create transaction")
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, title, now, now); err != nil {
		return nil, errors.Wrap(err, "failed to execute conversation insert")
	}
	if err := insertMessages(ctx, tx, id, 0, messages, now); err != nil {
		return nil, err
	}

	conv, err := getConversation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit conversation insert")
	}
	return conv, nil
}

// AppendMessages adds messages to the end of an existing conversation in
// submission order. All messages lacking a timestamp share one value captured
// when the batch is processed. Appending to an unknown id fails with
// conversation.ErrNotFound.
func (s *SQLiteStore) AppendMessages(ctx context.Context, conversationID string, messages []conversation.NewMessage) (*conversation.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin append transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var lastSeq int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE((SELECT MAX(seq) FROM messages WHERE conversation_id = c.id), 0) FROM conversations c WHERE c.id = ?",
		conversationID).Scan(&lastSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(conversation.ErrNotFound, "append to %s", conversationID)
		}
		return nil, errors.Wrap(err, "failed to read last message sequence")
	}

	now := s.now().UTC()
	if err := insertMessages(ctx, tx, conversationID, lastSeq, messages, now); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, conversationID); err != nil {
		return nil, errors.Wrap(err, "failed to touch conversation")
	}

	conv, err := getConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit append")
	}
	return conv, nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID string, lastSeq int64, messages []conversation.NewMessage, now time.Time) error {
	if len(messages) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (id, conversation_id, seq, is_user, content_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare message insert")
	}
	defer stmt.Close()

	for i, msg := range messages {
		content, err := conversation.MarshalContent(msg.Content)
		if err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), conversationID, lastSeq+int64(i)+1, msg.IsUser, string(content), ts.UTC()); err != nil {
			return errors.Wrap(err, "failed to execute message insert")
		}
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	return getConversation(ctx, s.db, conversationID)
}

func getConversation(ctx context.Context, q querier, conversationID string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	var title sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?",
		conversationID).Scan(&conv.ID, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(conversation.ErrNotFound, "get %s", conversationID)
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	if title.Valid {
		conv.Title = &title.String
	}

	conv.Messages, err = getMessages(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetMessages returns only the message history of a conversation.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", conversationID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(conversation.ErrNotFound, "history %s", conversationID)
		}
		return nil, errors.Wrap(err, "failed to verify conversation")
	}
	return getMessages(ctx, s.db, conversationID)
}

func getMessages(ctx context.Context, q querier, conversationID string) ([]conversation.Message, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, is_user, content_json, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq ASC",
		conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer rows.Close()

	messages := []conversation.Message{}
	for rows.Next() {
		var msg conversation.Message
		var contentJSON string
		if err := rows.Scan(&msg.ID, &msg.IsUser, &contentJSON, &msg.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		msg.Content, err = conversation.UnmarshalContent([]byte(contentJSON))
		if err != nil {
			// Rows are only written through MarshalContent, so this is corruption.
			log.Error().Err(err).Str("conversation_id", conversationID).Str("message_id", msg.ID).Msg("Unreadable message content")
			return nil, &conversation.MalformedResponseError{Op: "read message " + msg.ID, Reason: err.Error()}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate message rows")
	}
	return messages, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, order conversation.SortOrder) ([]conversation.Summary, error) {
	query := listConversationsQuery + " ORDER BY c.created_at DESC, c.rowid DESC"
	if order == conversation.SortAscending {
		query = listConversationsQuery + " ORDER BY c.created_at ASC, c.rowid ASC"
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer rows.Close()

	summaries := []conversation.Summary{}
	for rows.Next() {
		var sum conversation.Summary
		var title sql.NullString
		if err := rows.Scan(&sum.ID, &title, &sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		sum.Title = conversation.PlaceholderTitle
		if title.Valid && title.String != "" {
			sum.Title = title.String
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversation rows")
	}
	return summaries, nil
}

// UpdateConversationTitle sets the title; nil clears it.
func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, conversationID string, title *string) (*conversation.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, s.now().UTC(), conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute conversation title update")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, errors.Wrapf(conversation.ErrNotFound, "update %s", conversationID)
	}
	return s.GetConversation(ctx, conversationID)
}

// SetTitleIfUnset stores a generated title only while the conversation is
// still untitled, so a rename made in the meantime wins. It reports whether
// the title was written.
func (s *SQLiteStore) SetTitleIfUnset(ctx context.Context, conversationID string, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND title IS NULL",
		title, s.now().UTC(), conversationID)
	if err != nil {
		return false, errors.Wrap(err, "failed to execute generated title update")
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin delete transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.Wrapf(conversation.ErrNotFound, "delete %s", conversationID)
	}
	return errors.Wrap(tx.Commit(), "failed to commit delete")
}
