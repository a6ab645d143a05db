package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
)

// AuditRecord is an immutable append describing a mutating bidding or
// credit decision. Never updated after creation.
type AuditRecord struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Action        enums.AuditAction `gorm:"column:action;type:audit_action_enum;not null"`
	OrderID       uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	SellerStoreID *uuid.UUID        `gorm:"column:seller_store_id;type:uuid"`
	PerformedBy   uuid.UUID         `gorm:"column:performed_by;type:uuid;not null"`
	Metadata      json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}
