package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/internal/notify"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
)

// SelectWinnerParams configures one winner resolution.
type SelectWinnerParams struct {
	OrderID     uuid.UUID
	PerformedBy uuid.UUID

	// Auto marks a sweeper-triggered selection in the audit trail.
	Auto bool
}

// SelectionResult reports the winning offer and the debit it produced.
type SelectionResult struct {
	OrderID       uuid.UUID   `json:"orderId"`
	WinningOffer  ScoredOffer `json:"winningOffer"`
	LedgerEntryID uuid.UUID   `json:"ledgerEntryId"`
	RejectedCount int         `json:"rejectedCount"`
}

// SelectWinner resolves the order's pending offers: the top-scored offer is
// accepted, every other pending offer is rejected, the order is assigned,
// and the buyer's credit is debited for the winning quote. All of it
// commits in one transaction; a terminal debit failure rolls the selection
// back and the order stays open.
func (s *service) SelectWinner(ctx context.Context, params SelectWinnerParams) (*SelectionResult, error) {
	if params.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if params.PerformedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "performed-by id required")
	}

	var (
		order        *models.Order
		winner       ScoredOffer
		losers       []models.Offer
		debit        *credit.DebitResult
		rejectedRows int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		order, err = repo.LockOrder(ctx, params.OrderID, s.cfg.LockTimeout)
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
			return pkgerrors.New(pkgerrors.CodeOrderNotOpen, "order is not open for bids").
				WithDetails(map[string]any{"status": order.Status.String()})
		}

		pending, err := repo.ListPendingOffers(ctx, params.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending offers")
		}
		if len(pending) == 0 {
			return pkgerrors.New(pkgerrors.CodeNoPendingOffers, "order has no pending offers")
		}

		scored, err := s.scoreOffers(ctx, repo, order, pending)
		if err != nil {
			return err
		}
		winner = scored[0]
		losers = losers[:0]
		for _, entry := range scored[1:] {
			losers = append(losers, entry.Offer)
		}

		if err := repo.UpdateOffer(ctx, winner.Offer.ID, map[string]any{
			"status": enums.OfferStatusAccepted,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept winning offer")
		}

		winnerID := winner.Offer.ID
		rejectedRows, err = repo.UpdateOfferStatuses(ctx, params.OrderID, enums.OfferStatusPending, enums.OfferStatusRejected, &winnerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject losing offers")
		}

		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":          enums.OrderStatusWinnerSelected,
			"final_seller_id": winner.Offer.SellerStoreID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
		}

		orderID := order.ID
		debit, err = s.creditSvc.ValidateAndDebitTx(ctx, tx, credit.DebitInput{
			BuyerStoreID:  order.BuyerStoreID,
			SellerStoreID: winner.Offer.SellerStoreID,
			OrderID:       &orderID,
			Amount:        winner.Offer.PriceQuote,
			PerformedBy:   params.PerformedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordSelection(ctx, order, winner, losers, params)

	return &SelectionResult{
		OrderID:       order.ID,
		WinningOffer:  winner,
		LedgerEntryID: debit.EntryID,
		RejectedCount: int(rejectedRows),
	}, nil
}

// recordSelection writes the post-commit audit trail and notifies every
// participant. All of it is best-effort.
func (s *service) recordSelection(ctx context.Context, order *models.Order, winner ScoredOffer, losers []models.Offer, params SelectWinnerParams) {
	winnerSeller := winner.Offer.SellerStoreID
	s.auditSvc.Record(ctx, audit.Entry{
		Action:        enums.AuditActionWinnerSelected,
		OrderID:       order.ID,
		SellerStoreID: &winnerSeller,
		PerformedBy:   params.PerformedBy,
		Metadata: map[string]any{
			"totalScore": winner.Result.Total,
			"priceQuote": winner.Offer.PriceQuote.String(),
			"auto":       params.Auto,
		},
	})
	if err := s.sender.Send(ctx, notify.Notification{
		Kind:           notify.KindOfferAccepted,
		RecipientStore: winnerSeller,
		OrderID:        order.ID,
	}); err != nil {
		s.logg.Error(ctx, "winner notification failed", err)
	}

	for _, loser := range losers {
		loserSeller := loser.SellerStoreID
		s.auditSvc.Record(ctx, audit.Entry{
			Action:        enums.AuditActionLoserRejected,
			OrderID:       order.ID,
			SellerStoreID: &loserSeller,
			PerformedBy:   params.PerformedBy,
			Metadata:      map[string]any{"auto": params.Auto},
		})
		if err := s.sender.Send(ctx, notify.Notification{
			Kind:           notify.KindOfferRejected,
			RecipientStore: loserSeller,
			OrderID:        order.ID,
		}); err != nil {
			s.logg.Error(ctx, "loser notification failed", err)
		}
	}
}

// ExpireNoOffers closes an expired window that attracted no offers. Called
// by the timeout sweeper after SelectWinner reports no pending offers.
func (s *service) ExpireNoOffers(ctx context.Context, orderID, performedBy uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.LockOrder(ctx, orderID, s.cfg.LockTimeout)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusOpenForBids {
			return pkgerrors.New(pkgerrors.CodeOrderNotOpen, "order is not open for bids").
				WithDetails(map[string]any{"status": order.Status.String()})
		}
		if order.BiddingExpiresAt == nil || s.now().Before(*order.BiddingExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bidding window is still open")
		}

		pending, err := repo.ListPendingOffers(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending offers")
		}
		if len(pending) > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order still has pending offers")
		}

		return repo.UpdateOrder(ctx, orderID, map[string]any{
			"status": enums.OrderStatusBiddingExpiredNoOffers,
		})
	})
	if err != nil {
		return err
	}

	s.auditSvc.Record(ctx, audit.Entry{
		Action:      enums.AuditActionAutoSelectTimeout,
		OrderID:     orderID,
		PerformedBy: performedBy,
		Metadata:    map[string]any{"expiredAt": s.now().UTC().Format(time.RFC3339)},
	})
	return nil
}
