package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
)

// LedgerEntry records one immutable signed movement against a credit
// relationship's balance. Rows are append-only: never updated or removed.
// The sequence ordered by creation time is the sole source of truth for
// the pair's balance.
type LedgerEntry struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerStoreID  uuid.UUID             `gorm:"column:buyer_store_id;type:uuid;not null;index:idx_ledger_entries_pair"`
	SellerStoreID uuid.UUID             `gorm:"column:seller_store_id;type:uuid;not null;index:idx_ledger_entries_pair"`
	OrderID       *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	Kind          enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind_enum;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(15,2);not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(15,2);not null"`
	ReversalOfID  *uuid.UUID            `gorm:"column:reversal_of_id;type:uuid"`
	CreatedBy     uuid.UUID             `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
