package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
)

// Repository exposes persistence for orders, offers, and the seller facts
// the scoring engine consumes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID, timeout time.Duration) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindExpiredOpenOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	FindOffer(ctx context.Context, orderID, sellerStoreID uuid.UUID) (*models.Offer, error)
	CreateOffer(ctx context.Context, offer *models.Offer) error
	UpdateOffer(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error)
	ListPendingOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error)
	UpdateOfferStatuses(ctx context.Context, orderID uuid.UUID, from, to enums.OfferStatus, excludeID *uuid.UUID) (int64, error)

	ListActiveSellers(ctx context.Context) ([]models.Store, error)
	FindSellerStats(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]models.SellerStats, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder takes a bounded-wait row lock on the order so concurrent
// selection attempts serialize.
func (r *repository) LockOrder(ctx context.Context, id uuid.UUID, timeout time.Duration) (*models.Order, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		if timeout > 0 {
			setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
			if err := query.Exec(setTimeout).Error; err != nil {
				return nil, err
			}
		}
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order models.Order
	if err := query.First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindExpiredOpenOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusOpenForBids).
		Where("bidding_expires_at IS NOT NULL AND bidding_expires_at <= ?", cutoff).
		Order("bidding_expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindOffer(ctx context.Context, orderID, sellerStoreID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		First(&offer, "order_id = ? AND seller_store_id = ?", orderID, sellerStoreID).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) UpdateOffer(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) ListPendingOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.OfferStatusPending).
		Order("created_at ASC, id ASC").
		Find(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

// UpdateOfferStatuses flips every offer on the order from one status to
// another, optionally sparing a single offer. Used to reject losers in one
// statement.
func (r *repository) UpdateOfferStatuses(ctx context.Context, orderID uuid.UUID, from, to enums.OfferStatus, excludeID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("order_id = ? AND status = ?", orderID, from)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	result := query.Update("status", to)
	return result.RowsAffected, result.Error
}

func (r *repository) ListActiveSellers(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	err := r.db.WithContext(ctx).
		Where("type = ? AND active = ? AND deleted_at IS NULL", enums.StoreTypeSeller, true).
		Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repository) FindSellerStats(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]models.SellerStats, error) {
	out := make(map[uuid.UUID]models.SellerStats, len(storeIDs))
	if len(storeIDs) == 0 {
		return out, nil
	}
	var rows []models.SellerStats
	if err := r.db.WithContext(ctx).Where("store_id IN ?", storeIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.StoreID] = row
	}
	return out, nil
}
