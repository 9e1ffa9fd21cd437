package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/chatpay-service/internal/domain"
	"github.com/spec-kit/chatpay-service/internal/repository"
)

// memUserRepo is an in-memory repository.UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = fmt.Sprintf("u-%d", len(r.users)+1)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListCustomers(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.User
	for _, user := range r.users {
		if user.Role == domain.RoleCustomer {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// memMessageRepo is an in-memory repository.MessageRepository that enforces
// the transaction_reference unique constraint the way the store does, so the
// concurrent-duplicate race can be tested without a database.
type memMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages []domain.Message
	refs     map[string]struct{}
	names    map[string]string
}

func newMemMessageRepo(senderNames map[string]string) *memMessageRepo {
	if senderNames == nil {
		senderNames = map[string]string{}
	}
	return &memMessageRepo{refs: make(map[string]struct{}), names: senderNames}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.TransactionRef != nil {
		if _, used := r.refs[*msg.TransactionRef]; used {
			return repository.ErrDuplicateTransaction
		}
		r.refs[*msg.TransactionRef] = struct{}{}
	}
	r.seq++
	msg.ID = fmt.Sprintf("m-%d", r.seq)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	}
	stored := *msg
	stored.SenderName = r.names[msg.SenderID]
	r.messages = append(r.messages, stored)
	return nil
}

func (r *memMessageRepo) GetByTransactionRef(_ context.Context, ref string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].TransactionRef != nil && *r.messages[i].TransactionRef == ref {
			msg := r.messages[i]
			return &msg, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memMessageRepo) ListBetween(_ context.Context, userA, userB string, before *time.Time, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if !between(msg, userA, userB) {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		result = append(result, msg)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (r *memMessageRepo) LastBetween(_ context.Context, userA, userB string) (*domain.Message, error) {
	msgs, _ := r.ListBetween(context.Background(), userA, userB, nil, 0)
	if len(msgs) == 0 {
		return nil, pgx.ErrNoRows
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (r *memMessageRepo) CountUnread(_ context.Context, senderID, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		if msg.SenderID == senderID && msg.RecipientID == recipientID && msg.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) MarkRead(_ context.Context, senderID, recipientID string, readAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for i := range r.messages {
		if r.messages[i].SenderID == senderID && r.messages[i].RecipientID == recipientID && r.messages[i].ReadAt == nil {
			at := readAt
			r.messages[i].ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) ApprovePayment(_ context.Context, messageID string, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == messageID && r.messages[i].PaymentState == domain.PaymentStatePending {
			r.messages[i].PaymentState = domain.PaymentStatePaid
			at := paidAt
			r.messages[i].PaidAt = &at
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memMessageRepo) stored() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message{}, r.messages...)
}

func between(msg domain.Message, userA, userB string) bool {
	return (msg.SenderID == userA && msg.RecipientID == userB) ||
		(msg.SenderID == userB && msg.RecipientID == userA)
}
