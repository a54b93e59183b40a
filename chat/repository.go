package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one chat message inside a deal thread.
type Message struct {
	ID        string
	ThreadID  string
	SenderID  string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// PGRepository answers unread-count queries from the messages table and feeds
// the hub after every write, so subscribers track the authoritative count.
type PGRepository struct {
	pool *pgxpool.Pool
	hub  *Hub
}

func NewPGRepository(pool *pgxpool.Pool, hub *Hub) *PGRepository {
	return &PGRepository{pool: pool, hub: hub}
}

// Append stores a message and refreshes the recipient's unread count.
func (r *PGRepository) Append(ctx context.Context, threadID, senderID, recipientID, body string) (Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx, `
INSERT INTO messages (thread_id, sender_id, body)
VALUES ($1,$2,$3)
RETURNING id, thread_id, sender_id, body, read, created_at`,
		threadID, senderID, body).
		Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Body, &m.Read, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("chat: append message: %w", err)
	}
	r.publishCount(ctx, threadID, recipientID)
	return m, nil
}

// MarkRead flags every message in the thread not sent by the actor as read and
// pushes the (now zero) count to the actor's subscribers.
func (r *PGRepository) MarkRead(ctx context.Context, threadID, actorID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = true WHERE thread_id = $1 AND sender_id <> $2 AND read = false`,
		threadID, actorID)
	if err != nil {
		return fmt.Errorf("chat: mark read: %w", err)
	}
	r.publishCount(ctx, threadID, actorID)
	return nil
}

// Thread returns the thread's messages oldest first.
func (r *PGRepository) Thread(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, thread_id, sender_id, body, read, created_at
FROM messages WHERE thread_id = $1 ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("chat: load thread: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, 16)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate thread: %w", err)
	}
	return msgs, nil
}

// UnreadCount counts messages in the thread the actor has not read.
func (r *PGRepository) UnreadCount(ctx context.Context, threadID, actorID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = $1 AND sender_id <> $2 AND read = false`,
		threadID, actorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("chat: unread count: %w", err)
	}
	return n, nil
}

func (r *PGRepository) publishCount(ctx context.Context, threadID, actorID string) {
	if r.hub == nil {
		return
	}
	if n, err := r.UnreadCount(ctx, threadID, actorID); err == nil {
		r.hub.Publish(threadID, actorID, n)
	}
}
