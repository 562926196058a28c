// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/model"
)

type Storage struct {
	DB *sql.DB
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{DB: db}, nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

// EnsureSchema creates the journal table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS received_messages (
			id          UUID PRIMARY KEY,
			message_id  TEXT NOT NULL,
			endpoint    TEXT NOT NULL,
			payload     BYTEA,
			headers     JSONB NOT NULL DEFAULT '{}',
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS received_messages_endpoint_idx
			ON received_messages (endpoint, id);`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertMessage records one handled delivery
func (s *Storage) InsertMessage(ctx context.Context, m *model.Received) error {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	query := `
		INSERT INTO received_messages (id, message_id, endpoint, payload, headers, status, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.DB.ExecContext(ctx, query, m.ID, m.MessageID, m.Endpoint, m.Payload, headers, m.Status, m.Error, m.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}
	return nil
}

// ListMessagesPaginated retrieves journal entries using cursor-based pagination.
// Ids are UUIDv7, so id order is insertion order. An empty endpoint lists all.
func (s *Storage) ListMessagesPaginated(ctx context.Context, endpoint, cursor string, limit int) ([]model.Received, string, error) {
	query := `
		SELECT id, message_id, endpoint, payload, headers, status, error, received_at
		FROM received_messages
		WHERE ($1::text = '' OR endpoint = $1::text)
		  AND ($2::uuid IS NULL OR id > $2::uuid)
		ORDER BY id
		LIMIT $3
	`

	var cursorArg any
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		cursorArg = cursor
	}

	rows, err := s.DB.QueryContext(ctx, query, endpoint, cursorArg, limit)
	if err != nil {
		return nil, "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var messages []model.Received
	var lastID uuid.UUID
	for rows.Next() {
		var m model.Received
		var headers []byte
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Endpoint, &m.Payload, &headers, &m.Status, &m.Error, &m.ReceivedAt); err != nil {
			return nil, "", fmt.Errorf("scan failed: %w", err)
		}
		if err := json.Unmarshal(headers, &m.Headers); err != nil {
			return nil, "", fmt.Errorf("decode headers: %w", err)
		}
		lastID = m.ID
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate rows: %w", err)
	}

	nextCursor := ""
	if len(messages) == limit {
		nextCursor = lastID.String()
	}

	return messages, nextCursor, nil
}

func (s *Storage) CountMessages(ctx context.Context, endpoint string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM received_messages WHERE ($1::text = '' OR endpoint = $1::text)`, endpoint,
	).Scan(&n)
	return n, err
}
