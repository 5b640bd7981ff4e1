package membership

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const membersSchema = `
CREATE TABLE IF NOT EXISTS members (
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	joined_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (conversation_id, user_id)
);
`

// SQLiteResolver reads conversation membership from a local SQLite
// database shared with the REST tier.
type SQLiteResolver struct {
	db *sql.DB
}

// NewSQLiteResolver opens (or creates) the database at path and ensures
// the members table exists.
func NewSQLiteResolver(path string) (*SQLiteResolver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(membersSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create members table: %w", err)
	}
	return &SQLiteResolver{db: db}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteResolver) Close() error {
	return r.db.Close()
}

// ConversationMembers returns the member user ids of a conversation,
// omitting the excluded user when set.
func (r *SQLiteResolver) ConversationMembers(ctx context.Context, conversationID uuid.UUID, excluding *uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM members WHERE conversation_id = ?`
	args := []any{conversationID.String()}
	if excluding != nil {
		query += ` AND user_id != ?`
		args = append(args, excluding.String())
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed user_id %q in members table: %w", raw, err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// AddMember inserts a user into a conversation. Inserting an existing
// member is a no-op.
func (r *SQLiteResolver) AddMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO members (conversation_id, user_id) VALUES (?, ?)`,
		conversationID.String(), userID.String(),
	)
	return err
}
