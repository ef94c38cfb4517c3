package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

const messageCols = `id, sender_id, receiver_id, COALESCE(text, ''), COALESCE(image_url, ''), is_read, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.ImageURL, &m.IsRead, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, text, image_url, is_read, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.ImageURL, m.IsRead, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// Conversation pages newest first on (created_at, id) so equal timestamps
// never repeat or skip across pages.
func (r *MessageRepository) Conversation(ctx context.Context, userID, peerID string, before *model.Message, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Conversation", time.Now())()
	const pair = `((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+messageCols+` FROM messages
			 WHERE `+pair+`
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			userID, peerID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+messageCols+` FROM messages
			 WHERE `+pair+` AND (created_at, id) < ($3::timestamptz, $4::uuid)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $5`,
			userID, peerID, before.CreatedAt, before.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Conversation query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.Conversation scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.Conversation rows: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, userID string) ([]model.UnreadCount, error) {
	defer logger.DeferLogDuration("msg.UnreadCounts", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT sender_id, COUNT(*) FROM messages
		 WHERE receiver_id = $1 AND NOT is_read
		 GROUP BY sender_id
		 ORDER BY sender_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.UnreadCounts query: %w", err)
	}
	defer rows.Close()

	counts := make([]model.UnreadCount, 0)
	for rows.Next() {
		var c model.UnreadCount
		if err := rows.Scan(&c.UserID, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("msgRepo.UnreadCounts scan: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.UnreadCounts rows: %w", err)
	}
	return counts, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, userID, peerID string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET is_read = true
		 WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read`,
		peerID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}
