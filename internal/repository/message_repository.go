package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/chatpay-service/internal/domain"
)

// ErrDuplicateTransaction is returned when an insert collides with the unique
// index on transaction_reference. The index, not the service, is what closes
// the race between two concurrent submissions reusing one reference.
var ErrDuplicateTransaction = errors.New("transaction reference already used")

// MessageRepository manages message rows.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByTransactionRef(ctx context.Context, ref string) (*domain.Message, error)
	ListBetween(ctx context.Context, userA, userB string, before *time.Time, limit int) ([]domain.Message, error)
	LastBetween(ctx context.Context, userA, userB string) (*domain.Message, error)
	CountUnread(ctx context.Context, senderID, recipientID string) (int, error)
	MarkRead(ctx context.Context, senderID, recipientID string, readAt time.Time) (int64, error)
	ApprovePayment(ctx context.Context, messageID string, paidAt time.Time) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns a Postgres-backed implementation.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `
        m.id, m.sender_id, m.recipient_id, m.body, m.classification,
        m.payment_state, m.amount, m.transaction_reference, m.paid_at,
        m.read_at, m.created_at, u.name`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (sender_id, recipient_id, body, classification, payment_state, amount, transaction_reference, paid_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.SenderID,
		msg.RecipientID,
		msg.Body,
		msg.Classification,
		msg.PaymentState,
		msg.Amount,
		msg.TransactionRef,
		msg.PaidAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "messages_transaction_reference_key" {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (r *messageRepository) GetByTransactionRef(ctx context.Context, ref string) (*domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + `
        FROM messages m JOIN users u ON u.id = m.sender_id
        WHERE m.transaction_reference=$1`
	row := r.pool.QueryRow(ctx, query, ref)
	return scanMessage(row)
}

func (r *messageRepository) ListBetween(ctx context.Context, userA, userB string, before *time.Time, limit int) ([]domain.Message, error) {
	// Bidirectional scan: every message where {sender,recipient} = {A,B}.
	// The cursor pages backwards from "before"; rows come back ascending.
	const query = `
        SELECT * FROM (
            SELECT ` + messageColumns + `
            FROM messages m JOIN users u ON u.id = m.sender_id
            WHERE ((m.sender_id=$1 AND m.recipient_id=$2) OR (m.sender_id=$2 AND m.recipient_id=$1))
              AND ($3::timestamptz IS NULL OR m.created_at < $3)
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT $4
        ) page ORDER BY page.created_at ASC, page.id ASC`
	rows, err := r.pool.Query(ctx, query, userA, userB, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) LastBetween(ctx context.Context, userA, userB string) (*domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + `
        FROM messages m JOIN users u ON u.id = m.sender_id
        WHERE (m.sender_id=$1 AND m.recipient_id=$2) OR (m.sender_id=$2 AND m.recipient_id=$1)
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT 1`
	row := r.pool.QueryRow(ctx, query, userA, userB)
	return scanMessage(row)
}

func (r *messageRepository) CountUnread(ctx context.Context, senderID, recipientID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM messages
        WHERE sender_id=$1 AND recipient_id=$2 AND read_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, query, senderID, recipientID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, senderID, recipientID string, readAt time.Time) (int64, error) {
	const query = `
        UPDATE messages SET read_at=$3
        WHERE sender_id=$1 AND recipient_id=$2 AND read_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, senderID, recipientID, readAt)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepository) ApprovePayment(ctx context.Context, messageID string, paidAt time.Time) error {
	// Single atomic flip, keyed by id; only legal for legacy pending rows.
	const query = `
        UPDATE messages SET payment_state='paid', paid_at=$2
        WHERE id=$1 AND payment_state='pending'`
	cmd, err := r.pool.Exec(ctx, query, messageID, paidAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Body,
		&msg.Classification,
		&msg.PaymentState,
		&msg.Amount,
		&msg.TransactionRef,
		&msg.PaidAt,
		&msg.ReadAt,
		&msg.CreatedAt,
		&msg.SenderName,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
