package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMessageNotFound is returned by MarkMessageDeleted when the target row
// does not exist (it may never have been flushed).
var ErrMessageNotFound = errors.New("chat message not found")

// ChatMessage is a row in the chat_messages table, keyed by the provider's
// message id. Nullable columns are pointers; nil means SQL NULL.
type ChatMessage struct {
	MsgID               string
	ChannelID           int64
	ChannelName         string
	UserID              int64
	Nick                string
	DisplayName         string
	BadgeInfo           string
	Badges              string
	Bits                int
	Color               string
	Moderator           bool
	Subscriber          bool
	Turbo               bool
	VIP                 bool
	Admin               bool
	UserType            string
	ReplyMsgID          *string
	ReplyMsgNick        *string
	ReplyMsgDisplayName *string
	ReplyMsgBody        *string
	Body                string
	Emotes              string
	Timestamp           time.Time
	Deleted             bool
	DeletedAt           *time.Time
}

// User is a row in the users table, refreshed opportunistically as that
// user's messages are ingested.
type User struct {
	ID          int64
	Nick        string
	DisplayName string
}

// SaveChatBatch commits one flush cycle inside a single transaction: users
// are upserted first (last writer wins on nick/display_name), then messages
// are inserted. A message referencing a freshly-seen user therefore never
// commits without its user row.
func SaveChatBatch(ctx context.Context, db *sql.DB, messages []ChatMessage, users []User) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Warn("flush tx rollback failed", slog.Any("err", err))
		}
	}()

	if len(users) > 0 {
		userStmt, err := tx.PrepareContext(ctx, `INSERT INTO users (id, nick, display_name, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id) DO UPDATE SET nick=EXCLUDED.nick, display_name=EXCLUDED.display_name, updated_at=NOW()`)
		if err != nil {
			return fmt.Errorf("prepare user upsert: %w", err)
		}
		for _, u := range users {
			if _, err := userStmt.ExecContext(ctx, u.ID, u.Nick, u.DisplayName); err != nil {
				closeStmt(userStmt)
				return fmt.Errorf("upsert user %d: %w", u.ID, err)
			}
		}
		closeStmt(userStmt)
	}

	msgStmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_messages (
			msg_id, channel_id, channel_name, user_id, nick, display_name,
			badge_info, badges, bits, color,
			moderator, subscriber, turbo, vip, admin, user_type,
			reply_msg_id, reply_msg_nick, reply_msg_display_name, reply_msg_body,
			body, emotes, ts, deleted, deleted_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,NOW())
		ON CONFLICT (msg_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	for _, m := range messages {
		if _, err := msgStmt.ExecContext(ctx,
			m.MsgID, m.ChannelID, m.ChannelName, m.UserID, m.Nick, m.DisplayName,
			m.BadgeInfo, m.Badges, m.Bits, m.Color,
			m.Moderator, m.Subscriber, m.Turbo, m.VIP, m.Admin, m.UserType,
			m.ReplyMsgID, m.ReplyMsgNick, m.ReplyMsgDisplayName, m.ReplyMsgBody,
			m.Body, m.Emotes, m.Timestamp, m.Deleted, m.DeletedAt,
		); err != nil {
			closeStmt(msgStmt)
			return fmt.Errorf("insert message %s: %w", m.MsgID, err)
		}
	}
	closeStmt(msgStmt)

	return tx.Commit()
}

// MarkMessageDeleted soft-deletes an already-flushed message. Idempotent:
// re-running for the same id leaves a single deleted row.
func MarkMessageDeleted(ctx context.Context, db *sql.DB, msgID string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE chat_messages SET deleted=TRUE, deleted_at=$2, updated_at=NOW() WHERE msg_id=$1`,
		msgID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func closeStmt(stmt *sql.Stmt) {
	if err := stmt.Close(); err != nil {
		slog.Warn("failed to close prepared statement", slog.Any("err", err))
	}
}
