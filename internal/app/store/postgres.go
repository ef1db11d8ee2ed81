package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ripplechat/internal/app/db"
	"ripplechat/internal/pkg/randx"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps the given pool in a Store implementation.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateMessage persists a new message row.
func (p *Postgres) CreateMessage(ctx context.Context, msg *Message) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, recipient_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		// A retried send with the same client-generated id is already committed.
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns a single message by id, without reactions attached.
func (p *Postgres) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var m Message
	err := p.pool.QueryRow(ctx,
		`SELECT id, chat_id, sender_id, recipient_id, content, created_at, deleted_for_everyone, read_by
		 FROM messages WHERE id = $1`,
		messageID,
	).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.RecipientID,
		&m.Content, &m.CreatedAt, &m.DeletedForEveryone, &m.ReadBy)
	if db.IsNoRows(err) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListMessagesForChat returns the chat's messages visible to the viewer,
// oldest first, with their reactions attached.
func (p *Postgres) ListMessagesForChat(ctx context.Context, chatID, viewerID string, limit int) ([]Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, chat_id, sender_id, recipient_id,
		        CASE WHEN deleted_for_everyone THEN '' ELSE content END,
		        created_at, deleted_for_everyone, read_by
		 FROM messages
		 WHERE chat_id = $1 AND NOT ($2 = ANY(deleted_for))
		 ORDER BY created_at ASC
		 LIMIT $3`,
		chatID, viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	index := make(map[string]int)

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.RecipientID,
			&m.Content, &m.CreatedAt, &m.DeletedForEveryone, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}

	reactionRows, err := p.pool.Query(ctx,
		`SELECT id, message_id, user_id, emoji FROM reactions WHERE message_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer reactionRows.Close()

	for reactionRows.Next() {
		var rx Reaction
		if err := reactionRows.Scan(&rx.ID, &rx.MessageID, &rx.UserID, &rx.Emoji); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		if i, ok := index[rx.MessageID]; ok {
			messages[i].Reactions = append(messages[i].Reactions, rx)
		}
	}
	if err := reactionRows.Err(); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}

	return messages, nil
}

// MarkRead appends the user to read_by for each message of the chat.
func (p *Postgres) MarkRead(ctx context.Context, chatID, userID string, messageIDs []string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE messages SET read_by = array_append(read_by, $1)
		 WHERE chat_id = $2 AND id = ANY($3) AND NOT ($1 = ANY(read_by))`,
		userID, chatID, messageIDs,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// SoftDeleteForUser hides the message from one user only.
func (p *Postgres) SoftDeleteForUser(ctx context.Context, messageID, userID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE messages SET deleted_for = array_append(deleted_for, $1)
		 WHERE id = $2 AND NOT ($1 = ANY(deleted_for))`,
		userID, messageID,
	)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown id or already hidden; distinguish for the caller.
		var exists bool
		if err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("soft delete message: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// HardDeleteForEveryone clears the message content for all participants.
func (p *Postgres) HardDeleteForEveryone(ctx context.Context, messageID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE messages SET deleted_for_everyone = TRUE, content = '' WHERE id = $1`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("hard delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateOrUpdateReaction applies the toggle/replace rule inside a transaction
// so a concurrent duplicate cannot slip past the per-user uniqueness check.
func (p *Postgres) CreateOrUpdateReaction(ctx context.Context, messageID, userID, emoji string) (Reaction, ReactionOutcome, error) {
	var result Reaction
	var outcome ReactionOutcome

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		var existing Reaction
		err := tx.QueryRow(ctx,
			`SELECT id, message_id, user_id, emoji FROM reactions
			 WHERE message_id = $1 AND user_id = $2 FOR UPDATE`,
			messageID, userID,
		).Scan(&existing.ID, &existing.MessageID, &existing.UserID, &existing.Emoji)

		switch {
		case db.IsNoRows(err):
			result = Reaction{
				ID:        randx.ReactionID(),
				MessageID: messageID,
				UserID:    userID,
				Emoji:     emoji,
			}
			outcome = ReactionAdded
			_, err = tx.Exec(ctx,
				`INSERT INTO reactions (id, message_id, user_id, emoji) VALUES ($1, $2, $3, $4)`,
				result.ID, result.MessageID, result.UserID, result.Emoji,
			)
			return err

		case err != nil:
			return err

		case existing.Emoji == emoji:
			// Same emoji again: toggle off.
			result = existing
			outcome = ReactionRemoved
			_, err = tx.Exec(ctx, `DELETE FROM reactions WHERE id = $1`, existing.ID)
			return err

		default:
			// Different emoji: replace in place, keeping the row id.
			existing.Emoji = emoji
			result = existing
			outcome = ReactionReplaced
			_, err = tx.Exec(ctx, `UPDATE reactions SET emoji = $1 WHERE id = $2`, emoji, existing.ID)
			return err
		}
	})
	if err != nil {
		return Reaction{}, 0, err
	}

	return result, outcome, nil
}

// DeleteReaction removes a reaction by id.
func (p *Postgres) DeleteReaction(ctx context.Context, reactionID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM reactions WHERE id = $1`, reactionID)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUnread bumps the unread counter for the user in the chat.
func (p *Postgres) IncrementUnread(ctx context.Context, chatID, userID string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO unread_counters (chat_id, user_id, count) VALUES ($1, $2, 1)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET count = unread_counters.count + 1`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// ResetUnread zeroes the unread counter for the user in the chat.
func (p *Postgres) ResetUnread(ctx context.Context, chatID, userID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE unread_counters SET count = 0 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// UnreadCount returns the user's current unread counter for the chat.
// A missing row reads as zero.
func (p *Postgres) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count FROM unread_counters WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&count)
	if db.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
