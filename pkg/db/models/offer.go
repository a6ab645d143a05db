package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
)

// Offer is a seller's proposed price/ETA/stock confirmation for one order.
// Keyed uniquely by (order, seller); an accepted offer is never overwritten
// by a later re-submission.
type Offer struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_offers_order_seller"`
	SellerStoreID  uuid.UUID         `gorm:"column:seller_store_id;type:uuid;not null;uniqueIndex:idx_offers_order_seller"`
	PriceQuote     decimal.Decimal   `gorm:"column:price_quote;type:numeric(15,2);not null"`
	DeliveryEta    string            `gorm:"column:delivery_eta;not null"`
	StockConfirmed bool              `gorm:"column:stock_confirmed;not null;default:false"`
	Status         enums.OfferStatus `gorm:"column:status;type:offer_status_enum;not null;default:'pending'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
