package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS dm_messages (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	counterpart_id TEXT NOT NULL,
	sender_id      TEXT NOT NULL,
	content        TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL,
	attachments    JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	read           BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS dm_messages_pair_idx ON dm_messages (owner_id, counterpart_id, created_at);
`

// PostgresDMStore is the durable message store.
type PostgresDMStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPostgresDMStore opens and pings the database.
func NewPostgresDMStore(ctx context.Context, dataSourceName string, log zerolog.Logger) (*PostgresDMStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection for DMs: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database for DMs: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	log = log.With().Str("component", "postgres_dms").Logger()
	log.Info().Msg("Connected to PostgreSQL")
	return &PostgresDMStore{db: db, log: log}, nil
}

// EnsureSchema creates the messages table if it is missing.
func (s *PostgresDMStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create dm schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, msg *models.Message, extra ...any) error {
	var atts []byte
	dest := append([]any{
		&msg.ID, &msg.OwnerID, &msg.CounterpartID, &msg.SenderID,
		&msg.Content, &msg.Kind, &atts, &msg.CreatedAt, &msg.Read,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if err := json.Unmarshal(atts, &msg.Attachments); err != nil {
		return fmt.Errorf("decode attachments of %s: %w", msg.ID, err)
	}
	return nil
}

// ListConversations lists the owner's threads with their latest message and
// unread count, most recent first.
func (s *PostgresDMStore) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	query := `
		SELECT m.id, m.owner_id, m.counterpart_id, m.sender_id, m.content, m.kind, m.attachments, m.created_at, m.read,
			(SELECT COUNT(*) FROM dm_messages u
			 WHERE u.owner_id = $1 AND u.counterpart_id = p.counterpart_id
			   AND u.sender_id <> $1 AND NOT u.read) AS unread
		FROM (SELECT DISTINCT counterpart_id FROM dm_messages WHERE owner_id = $1) p
		CROSS JOIN LATERAL (
			SELECT id, owner_id, counterpart_id, sender_id, content, kind, attachments, created_at, read
			FROM dm_messages
			WHERE owner_id = $1 AND counterpart_id = p.counterpart_id
			ORDER BY created_at DESC
			LIMIT 1
		) m
		ORDER BY m.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", ownerID, err)
	}
	defer rows.Close()

	convs := []models.ConversationSummary{}
	for rows.Next() {
		var last models.Message
		var unread int
		if err := scanMessage(rows, &last, &unread); err != nil {
			return nil, fmt.Errorf("scan conversation row for %s: %w", ownerID, err)
		}
		convs = append(convs, models.ConversationSummary{
			OwnerID:       ownerID,
			CounterpartID: last.CounterpartID,
			LastMessage:   &last,
			UnreadCount:   unread,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows for %s: %w", ownerID, err)
	}
	return convs, nil
}

// GetMessages returns the newest limit messages of a thread, oldest first.
func (s *PostgresDMStore) GetMessages(ctx context.Context, ownerID, counterpartID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, owner_id, counterpart_id, sender_id, content, kind, attachments, created_at, read
		FROM (
			SELECT * FROM dm_messages
			WHERE owner_id = $1 AND counterpart_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) newest
		ORDER BY created_at ASC
	`
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, query, ownerID, counterpartID, lim)
	if err != nil {
		return nil, fmt.Errorf("get messages for %s: %w", models.ConversationKey(ownerID, counterpartID), err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return msgs, nil
}

// AddMessage stores a message and returns it as persisted.
func (s *PostgresDMStore) AddMessage(ctx context.Context, ownerID, counterpartID, senderID string, d models.Draft) (models.Message, error) {
	atts := d.Attachments
	if atts == nil {
		atts = models.Attachments{}
	}
	raw, err := json.Marshal(atts)
	if err != nil {
		return models.Message{}, fmt.Errorf("encode attachments: %w", err)
	}

	var msg models.Message
	query := `
		INSERT INTO dm_messages (id, owner_id, counterpart_id, sender_id, content, kind, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, owner_id, counterpart_id, sender_id, content, kind, attachments, created_at, read
	`
	row := s.db.QueryRowContext(ctx, query, uuid.NewString(), ownerID, counterpartID, senderID, d.Content, d.Kind, raw)
	if err := scanMessage(row, &msg); err != nil {
		return models.Message{}, fmt.Errorf("add message to %s: %w", models.ConversationKey(ownerID, counterpartID), err)
	}
	s.log.Debug().Str("message_id", msg.ID).Str("owner_id", ownerID).Str("counterpart_id", counterpartID).Msg("Added message")
	return msg, nil
}

// MarkRead flags every message in the thread not sent by viewerID as read.
func (s *PostgresDMStore) MarkRead(ctx context.Context, ownerID, counterpartID, viewerID string) error {
	query := `
		UPDATE dm_messages SET read = TRUE
		WHERE owner_id = $1 AND counterpart_id = $2 AND sender_id <> $3 AND NOT read
	`
	if _, err := s.db.ExecContext(ctx, query, ownerID, counterpartID, viewerID); err != nil {
		return fmt.Errorf("mark read %s: %w", models.ConversationKey(ownerID, counterpartID), err)
	}
	return nil
}

func (s *PostgresDMStore) Close() error {
	return s.db.Close()
}
