package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/internal/notify"
	"github.com/angelmondragon/bidfinderz-backend/internal/scoring"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates the bidding lifecycle: broadcast, offer intake,
// scored views, and winner resolution.
type Service interface {
	Broadcast(ctx context.Context, orderID, performedBy uuid.UUID, opts BroadcastOptions) (*BroadcastResult, error)
	SubmitOffer(ctx context.Context, input SubmitOfferInput) (*SubmitOfferResult, error)
	ListOffers(ctx context.Context, orderID uuid.UUID) (*OffersView, error)
	SelectWinner(ctx context.Context, params SelectWinnerParams) (*SelectionResult, error)
	ExpireNoOffers(ctx context.Context, orderID, performedBy uuid.UUID) error
}

type service struct {
	tx        txRunner
	repo      Repository
	creditSvc credit.Service
	auditSvc  audit.Service
	sender    notify.Sender
	logg      *logger.Logger
	cfg       config.BiddingConfig
	now       func() time.Time
}

func NewService(
	tx txRunner,
	repo Repository,
	creditSvc credit.Service,
	auditSvc audit.Service,
	sender notify.Sender,
	cfg config.BiddingConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("bidding repository required")
	}
	if creditSvc == nil {
		return nil, fmt.Errorf("credit service required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 30
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	return &service{
		tx:        tx,
		repo:      repo,
		creditSvc: creditSvc,
		auditSvc:  auditSvc,
		sender:    sender,
		logg:      logg,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// BroadcastOptions narrows the invite set. SellerIDs restricts the
// broadcast to the listed sellers; RadiusMeters overrides each seller's own
// delivery radius when filtering by distance.
type BroadcastOptions struct {
	SellerIDs    []uuid.UUID
	RadiusMeters int
}

// BroadcastResult reports the opened bidding window and who was invited.
type BroadcastResult struct {
	OrderID          uuid.UUID   `json:"orderId"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	InvitedSellerIDs []uuid.UUID `json:"invitedSellerIds"`
}

// Broadcast opens the bidding window on an order and invites every eligible
// seller. Re-broadcasting an already open order restarts the window.
func (s *service) Broadcast(ctx context.Context, orderID, performedBy uuid.UUID, opts BroadcastOptions) (*BroadcastResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if performedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "performed-by id required")
	}
	if opts.RadiusMeters < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "radius must not be negative")
	}

	var (
		order    *models.Order
		invitees []models.Store
		expires  time.Time
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		order, err = repo.LockOrder(ctx, orderID, s.cfg.LockTimeout)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		switch order.Status {
		case enums.OrderStatusDraft, enums.OrderStatusOpenForBids:
		default:
			return pkgerrors.New(pkgerrors.CodeOrderNotEligible, "order is past the bidding stage").
				WithDetails(map[string]any{"status": order.Status.String()})
		}

		sellers, err := repo.ListActiveSellers(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sellers")
		}
		invitees = eligibleSellers(order, sellers, opts)

		expires = s.now().UTC().Add(s.cfg.Window())
		updates := map[string]any{
			"status":             enums.OrderStatusOpenForBids,
			"bidding_expires_at": expires,
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open bidding window")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invitedIDs := make([]uuid.UUID, 0, len(invitees))
	for _, seller := range invitees {
		invitedIDs = append(invitedIDs, seller.ID)
		notification := notify.Notification{
			Kind:           notify.KindBidInvitation,
			RecipientStore: seller.ID,
			OrderID:        order.ID,
			Payload: map[string]any{
				"referenceAmount": order.ReferenceAmount.String(),
				"expiresAt":       expires.Format(time.RFC3339),
			},
		}
		if err := s.sender.Send(ctx, notification); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":        order.ID.String(),
				"seller_store_id": seller.ID.String(),
			})
			s.logg.Error(logCtx, "bid invitation failed", err)
		}
	}

	s.auditSvc.Record(ctx, audit.Entry{
		Action:      enums.AuditActionBroadcast,
		OrderID:     order.ID,
		PerformedBy: performedBy,
		Metadata: map[string]any{
			"invitedCount": len(invitedIDs),
			"expiresAt":    expires.Format(time.RFC3339),
		},
	})

	return &BroadcastResult{OrderID: order.ID, ExpiresAt: expires, InvitedSellerIDs: invitedIDs}, nil
}

// eligibleSellers filters active sellers to those whose delivery radius
// covers the order location. Orders without a location invite every active
// seller, and a buyer never bids on its own order. An allowlist in opts
// narrows the set further, and a caller radius replaces each seller's own
// delivery radius for the distance check.
func eligibleSellers(order *models.Order, sellers []models.Store, opts BroadcastOptions) []models.Store {
	var allowed map[uuid.UUID]struct{}
	if len(opts.SellerIDs) > 0 {
		allowed = make(map[uuid.UUID]struct{}, len(opts.SellerIDs))
		for _, id := range opts.SellerIDs {
			allowed[id] = struct{}{}
		}
	}

	eligible := make([]models.Store, 0, len(sellers))
	for _, seller := range sellers {
		if seller.ID == order.BuyerStoreID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[seller.ID]; !ok {
				continue
			}
		}
		radius := seller.DeliveryRadiusMeters
		if opts.RadiusMeters > 0 {
			radius = opts.RadiusMeters
		}
		if order.Location != nil && !withinDeliveryRadius(seller.Geom, radius, order.Location) {
			continue
		}
		eligible = append(eligible, seller)
	}
	return eligible
}

// SubmitOfferInput is one seller's quote for an order.
type SubmitOfferInput struct {
	OrderID        uuid.UUID
	SellerStoreID  uuid.UUID
	PriceQuote     decimal.Decimal
	DeliveryEta    string
	StockConfirmed bool
}

// SubmitOfferResult reports the stored offer and whether an earlier offer
// was replaced.
type SubmitOfferResult struct {
	Offer    *models.Offer `json:"offer"`
	IsUpdate bool          `json:"isUpdate"`
}

// SubmitOffer ingests or replaces a seller's offer while the window is
// open. Re-submissions overwrite the pending offer; an accepted offer is
// never overwritten.
func (s *service) SubmitOffer(ctx context.Context, input SubmitOfferInput) (*SubmitOfferResult, error) {
	if err := validateOfferInput(input); err != nil {
		return nil, err
	}

	var (
		stored   *models.Offer
		isUpdate bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.LockOrder(ctx, input.OrderID, s.cfg.LockTimeout)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		switch order.Status {
		case enums.OrderStatusOpenForBids:
		case enums.OrderStatusWinnerSelected:
			return pkgerrors.New(pkgerrors.CodeAlreadyAssigned, "order already has a selected seller")
		default:
			return pkgerrors.New(pkgerrors.CodeOrderNotOpen, "order is not accepting offers").
				WithDetails(map[string]any{"status": order.Status.String()})
		}
		if order.BiddingExpiresAt == nil || s.now().After(*order.BiddingExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeWindowExpired, "bidding window has closed")
		}

		existing, err := repo.FindOffer(ctx, input.OrderID, input.SellerStoreID)
		switch {
		case err == nil:
			if existing.Status == enums.OfferStatusAccepted {
				stored = existing
				return nil
			}
			updates := map[string]any{
				"price_quote":     input.PriceQuote,
				"delivery_eta":    input.DeliveryEta,
				"stock_confirmed": input.StockConfirmed,
				"status":          enums.OfferStatusPending,
			}
			if err := repo.UpdateOffer(ctx, existing.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update offer")
			}
			refreshed, err := repo.FindOffer(ctx, input.OrderID, input.SellerStoreID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload offer")
			}
			stored = refreshed
			isUpdate = true
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			offer := &models.Offer{
				OrderID:        input.OrderID,
				SellerStoreID:  input.SellerStoreID,
				PriceQuote:     input.PriceQuote,
				DeliveryEta:    input.DeliveryEta,
				StockConfirmed: input.StockConfirmed,
				Status:         enums.OfferStatusPending,
			}
			if err := repo.CreateOffer(ctx, offer); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
			}
			stored = offer
			return nil
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
		}
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Record(ctx, audit.Entry{
		Action:        enums.AuditActionOfferIngested,
		OrderID:       input.OrderID,
		SellerStoreID: &input.SellerStoreID,
		PerformedBy:   input.SellerStoreID,
		Metadata:      map[string]any{"isUpdate": isUpdate},
	})

	return &SubmitOfferResult{Offer: stored, IsUpdate: isUpdate}, nil
}

func validateOfferInput(input SubmitOfferInput) error {
	missing := []string{}
	if input.OrderID == uuid.Nil {
		missing = append(missing, "orderId")
	}
	if input.SellerStoreID == uuid.Nil {
		missing = append(missing, "sellerStoreId")
	}
	if !input.PriceQuote.IsPositive() {
		missing = append(missing, "priceQuote")
	}
	if strings.TrimSpace(input.DeliveryEta) == "" {
		missing = append(missing, "deliveryEta")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeMissingFields, "offer is missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}
	return nil
}

// ScoredOffer pairs one offer with its full score breakdown.
type ScoredOffer struct {
	Offer  models.Offer   `json:"offer"`
	Result scoring.Result `json:"score"`
}

// OffersView is the scored, ranked list of offers for one order.
type OffersView struct {
	OrderID uuid.UUID     `json:"orderId"`
	Status  string        `json:"status"`
	Offers  []ScoredOffer `json:"offers"`
}

// ListOffers returns every offer on the order, scored and ranked the same
// way the resolver would rank them.
func (s *service) ListOffers(ctx context.Context, orderID uuid.UUID) (*OffersView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	offers, err := s.repo.ListOffers(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}

	scored, err := s.scoreOffers(ctx, s.repo, order, offers)
	if err != nil {
		return nil, err
	}

	return &OffersView{OrderID: order.ID, Status: order.Status.String(), Offers: scored}, nil
}

// scoreOffers computes the ranked score breakdown for a set of offers.
func (s *service) scoreOffers(ctx context.Context, repo Repository, order *models.Order, offers []models.Offer) ([]ScoredOffer, error) {
	if len(offers) == 0 {
		return []ScoredOffer{}, nil
	}

	sellerIDs := make([]uuid.UUID, 0, len(offers))
	for _, offer := range offers {
		sellerIDs = append(sellerIDs, offer.SellerStoreID)
	}
	stats, err := repo.FindSellerStats(ctx, sellerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller stats")
	}

	ranked := make([]scoring.Ranked, len(offers))
	for i, offer := range offers {
		ranked[i] = scoring.Ranked{
			Key:         i,
			Result:      scoring.Score(scoringInput(offer), order.ReferenceAmount, sellerFacts(stats, offer.SellerStoreID)),
			SubmittedAt: offer.CreatedAt,
		}
	}
	scoring.Rank(ranked)

	scored := make([]ScoredOffer, len(ranked))
	for i, entry := range ranked {
		scored[i] = ScoredOffer{Offer: offers[entry.Key], Result: entry.Result}
	}
	return scored, nil
}

func scoringInput(offer models.Offer) scoring.Input {
	return scoring.Input{
		PriceQuote:     offer.PriceQuote,
		DeliveryEta:    offer.DeliveryEta,
		StockConfirmed: offer.StockConfirmed,
		SubmittedAt:    offer.CreatedAt,
	}
}

func sellerFacts(stats map[uuid.UUID]models.SellerStats, sellerID uuid.UUID) *scoring.SellerFacts {
	row, ok := stats[sellerID]
	if !ok {
		return nil
	}
	return &scoring.SellerFacts{
		ReliabilityScore: row.ReliabilityScore,
		CompletedOrders:  row.CompletedOrders,
		TotalOrders:      row.TotalOrders,
		AvgRating:        row.AvgRating,
	}
}
