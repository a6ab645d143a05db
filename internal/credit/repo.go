package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/pagination"
)

// Repository manages persistence for credit accounts and ledger entries.
// Ledger entries are append-only; there is deliberately no update or delete
// surface for them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockAccount(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID, timeout time.Duration) (*models.CreditAccount, error)
	FindAccount(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*models.CreditAccount, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*models.CreditAccount, error)
	ListAccountsForBuyer(ctx context.Context, buyerStoreID uuid.UUID) ([]models.CreditAccount, error)
	CreateAccount(ctx context.Context, account *models.CreditAccount) error
	UpdateAccount(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListEntries(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) ([]models.LedgerEntry, error)
	ListEntriesPage(ctx context.Context, params ListEntriesParams) ([]models.LedgerEntry, *pagination.Cursor, error)
	LatestEntry(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*models.LedgerEntry, error)
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindReversalOf(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockAccount takes the exclusive row lock on the pair's credit account with
// a bounded wait. It must run inside a transaction; the lock is held until
// that transaction commits or rolls back.
func (r *repository) LockAccount(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID, timeout time.Duration) (*models.CreditAccount, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		if timeout > 0 {
			if err := query.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error; err != nil {
				return nil, err
			}
		}
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var account models.CreditAccount
	err := query.
		Where("buyer_store_id = ? AND seller_store_id = ?", buyerStoreID, sellerStoreID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccount(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("buyer_store_id = ? AND seller_store_id = ?", buyerStoreID, sellerStoreID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccountByID(ctx context.Context, id uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ListAccountsForBuyer(ctx context.Context, buyerStoreID uuid.UUID) ([]models.CreditAccount, error) {
	var accounts []models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("buyer_store_id = ?", buyerStoreID).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) CreateAccount(ctx context.Context, account *models.CreditAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) UpdateAccount(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.CreditAccount{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListEntries(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("buyer_store_id = ? AND seller_store_id = ?", buyerStoreID, sellerStoreID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListEntriesParams configures a cursor-paginated ledger history read.
type ListEntriesParams struct {
	BuyerStoreID  uuid.UUID
	SellerStoreID *uuid.UUID
	Limit         int
	Cursor        *pagination.Cursor
}

func (r *repository) ListEntriesPage(ctx context.Context, params ListEntriesParams) ([]models.LedgerEntry, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("buyer_store_id = ?", params.BuyerStoreID)
	if params.SellerStoreID != nil {
		query = query.Where("seller_store_id = ?", *params.SellerStoreID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		entries = entries[:normalized]
		last := entries[normalized-1]
		return entries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}

func (r *repository) LatestEntry(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("buyer_store_id = ? AND seller_store_id = ?", buyerStoreID, sellerStoreID).
		Order("created_at DESC, id DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindReversalOf(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reversal_of_id = ?", entryID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
