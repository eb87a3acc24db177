package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskmarket-ledger/pkg/db/option"
	"taskmarket-ledger/pkg/db/pagination"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	ErrTransactionSettled  = errors.New("transaction already settled")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrApprovalOutsideUnit = errors.New("approval must go through Tx.Settle")
)

type CreateTransactionParams struct {
	UserID      string
	Amount      int64
	Type        TransactionType
	Description string
	// Status defaults to pending, the only status a transaction is born with.
	Status     TransactionStatus
	CampaignID *string
}

type ListTransactionsParams struct {
	pagination.Pagination
	Type   TransactionType   `form:"type" binding:"omitempty,oneof=deposit withdrawal campaign_creation earning"`
	Status TransactionStatus `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

// Store reads and writes ledger rows. A Store bound to a unit of work (see
// Tx) shares its database transaction.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node

	transactions repository.Repository[Transaction]
	accounts     repository.Repository[Account]
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:           p.DB,
		node:         p.Node,
		transactions: repository.ProvideStore[Transaction](p.DB),
		accounts:     repository.ProvideStore[Account](p.DB),
	}
}

func (s *Store) bind(tx *gorm.DB) *Store {
	return &Store{
		db:           tx,
		node:         s.node,
		transactions: s.transactions.WithTrx(tx),
		accounts:     s.accounts.WithTrx(tx),
	}
}

// idWidth is the decimal width of a non-negative int64.
const idWidth = 19

// NextID issues a snowflake id, zero-padded to idWidth digits. Cursor
// pagination compares ids as strings, which matches creation order only
// while every id has the same width.
func (s *Store) NextID() string {
	return fmt.Sprintf("%0*d", idWidth, s.node.Generate().Int64())
}

func (s *Store) CreateTransaction(ctx context.Context, p CreateTransactionParams) (*Transaction, error) {
	if p.UserID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be a positive integer", nil)
	}
	if !p.Type.Valid() {
		return nil, errutil.BadRequest("unknown transaction type", nil)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.Status != StatusPending {
		return nil, errutil.BadRequest("transactions are created pending and settled afterwards", nil)
	}

	t := &Transaction{
		ID:          s.NextID(),
		UserID:      p.UserID,
		Amount:      p.Amount,
		Type:        p.Type,
		Status:      p.Status,
		Description: p.Description,
		CampaignID:  p.CampaignID,
	}

	if err := s.transactions.Create(ctx, t); err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return nil, errutil.NotFound("account not found", err)
		}
		return nil, err
	}

	return t, nil
}

// UpdateTransactionStatus rejects a pending transaction. Approval carries a
// balance effect and is refused here, inside a unit of work or not; use
// Tx.Settle.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) (*Transaction, error) {
	switch status {
	case StatusApproved:
		return nil, errutil.Internal("approval outside settlement", ErrApprovalOutsideUnit)
	case StatusRejected:
		return s.setStatus(ctx, id, status)
	default:
		return nil, errutil.BadRequest("status must be approved or rejected", nil)
	}
}

// setStatus is a conditional update on status='pending', so of two
// concurrent callers exactly one wins; the loser gets a Conflict wrapping
// ErrTransactionSettled.
func (s *Store) setStatus(ctx context.Context, id string, status TransactionStatus) (*Transaction, error) {
	res := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}

	t, err := s.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return t, errutil.Conflict("transaction is already "+string(t.Status), ErrTransactionSettled)
	}

	return t, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*Transaction, error) {
	t, err := s.transactions.FindOne(ctx, &Transaction{ID: id})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("transaction not found", nil)
	}
	return t, nil
}

// ListTransactionsForUser pages a user's transactions newest first.
func (s *Store) ListTransactionsForUser(ctx context.Context, userID string, p ListTransactionsParams) ([]*Transaction, *pagination.PageInfo, error) {
	rows, err := s.transactions.Find(ctx,
		&Transaction{UserID: userID, Type: p.Type, Status: p.Status},
		option.ApplyPagination(p.Pagination),
	)
	if err != nil {
		return nil, nil, err
	}

	page, info := pagination.BuildCursorPage(rows, p.Size(), func(t *Transaction) string { return t.ID })
	return page, info, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*Account, error) {
	acc, err := s.accounts.FindOne(ctx, &Account{ID: userID})
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return acc, nil
}

// OpenAccount creates a zero-balance account for userID, or returns the
// existing one.
func (s *Store) OpenAccount(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	acc := &Account{ID: userID}
	err := s.db.WithContext(ctx).Where(&Account{ID: userID}).FirstOrCreate(acc).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.GetAccount(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}
