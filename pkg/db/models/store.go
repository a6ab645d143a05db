package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	"github.com/angelmondragon/bidfinderz-backend/pkg/types"
)

// Store represents the canonical tenant model: a buyer or seller party.
type Store struct {
	ID                   uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type                 enums.StoreType       `gorm:"column:type;type:store_type;not null"`
	CompanyName          string                `gorm:"column:company_name;not null"`
	Phone                *string               `gorm:"column:phone"`
	Email                *string               `gorm:"column:email"`
	Active               bool                  `gorm:"column:active;not null;default:true"`
	Geom                 *types.GeographyPoint `gorm:"column:geom;type:geography(Point,4326)"`
	DeliveryRadiusMeters int                   `gorm:"column:delivery_radius_meters;not null;default:0"`
	CreatedAt            time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            *time.Time            `gorm:"column:deleted_at;index"`
}

// SellerStats carries the reputation facts the scoring engine consumes.
// Absent rows score as a neutral default.
type SellerStats struct {
	StoreID          uuid.UUID `gorm:"column:store_id;type:uuid;primaryKey"`
	ReliabilityScore float64   `gorm:"column:reliability_score;not null;default:0"`
	CompletedOrders  int       `gorm:"column:completed_orders;not null;default:0"`
	TotalOrders      int       `gorm:"column:total_orders;not null;default:0"`
	AvgRating        float64   `gorm:"column:avg_rating;not null;default:0"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the plural-free stats table name explicit.
func (SellerStats) TableName() string {
	return "seller_stats"
}
