package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditAccount is the revolving-credit relationship between a buyer store
// and a seller store. One row per pair; never deleted, only deactivated.
type CreditAccount struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerStoreID  uuid.UUID       `gorm:"column:buyer_store_id;type:uuid;not null;uniqueIndex:idx_credit_accounts_pair"`
	SellerStoreID uuid.UUID       `gorm:"column:seller_store_id;type:uuid;not null;uniqueIndex:idx_credit_accounts_pair"`
	CreditLimit   decimal.Decimal `gorm:"column:credit_limit;type:numeric(15,2);not null"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	BlockReason   *string         `gorm:"column:block_reason"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
