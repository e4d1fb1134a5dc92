package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

const inboxQuery = `SELECT m.id, m.sender_id, u.username, m.recipient_id, m.body, m.created_at, m.read_at
	FROM messages m JOIN users u ON u.id = m.sender_id
	WHERE m.recipient_id = ?
	ORDER BY m.created_at DESC, m.id DESC`

// CreateMessage inserts a message. ID and CreatedAt are set here.
func (db *DB) CreateMessage(ctx context.Context, msg *model.Message) error {
	msg.ID = xid.New().String()
	msg.CreatedAt = time.Now().UTC()
	msg.ReadAt = nil

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return apperror.NotFound("User", msg.RecipientID)
		case isCheckViolation(err):
			return apperror.ValidationFailed("message", "Message body is required")
		}
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}
	return nil
}

func (db *DB) ListInbox(ctx context.Context, recipientID string) ([]model.Message, error) {
	return queryMessages(ctx, db.conn, recipientID)
}

// ReadInbox selects and marks read in one transaction. Only the messages
// it returns are marked, so nothing is marked read unseen.
func (db *DB) ReadInbox(ctx context.Context, recipientID string, at time.Time) ([]model.Message, error) {
	var msgs []model.Message
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		msgs, err = queryMessages(ctx, tx, recipientID)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx,
			`UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL`)
		if err != nil {
			return fmt.Errorf("sqlite: preparing mark read: %w", err)
		}
		defer stmt.Close()

		readAt := at.UTC()
		for _, m := range msgs {
			if !m.Unread() {
				continue
			}
			if _, err := stmt.ExecContext(ctx, readAt, m.ID); err != nil {
				return fmt.Errorf("sqlite: marking message %s read: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (db *DB) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return db.count(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND read_at IS NULL`, recipientID)
}

func queryMessages(ctx context.Context, q querier, recipientID string) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx, inboxQuery, recipientID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing inbox: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m      model.Message
			readAt sql.NullTime
		)
		err := rows.Scan(&m.ID, &m.SenderID, &m.SenderUsername, &m.RecipientID, &m.Body, &m.CreatedAt, &readAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating inbox: %w", err)
	}
	return msgs, nil
}
