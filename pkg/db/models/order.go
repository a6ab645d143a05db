package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	"github.com/angelmondragon/bidfinderz-backend/pkg/types"
)

// Order is a buyer request that competing sellers bid on. FinalSellerID is
// set at most once, only while the status transitions out of open_for_bids.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerStoreID     uuid.UUID             `gorm:"column:buyer_store_id;type:uuid;not null;index"`
	Status           enums.OrderStatus     `gorm:"column:status;type:order_status_enum;not null;default:'draft'"`
	ReferenceAmount  decimal.Decimal       `gorm:"column:reference_amount;type:numeric(15,2);not null"`
	FinalSellerID    *uuid.UUID            `gorm:"column:final_seller_id;type:uuid"`
	BiddingExpiresAt *time.Time            `gorm:"column:bidding_expires_at"`
	Location         *types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	Notes            *string               `gorm:"column:notes"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
