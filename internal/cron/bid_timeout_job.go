package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bidfinderz-backend/internal/bidding"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/metrics"
)

const defaultSweepBatchSize = 50

// BidTimeoutJobParams configure the bidding window sweeper.
type BidTimeoutJobParams struct {
	Logger        *logger.Logger
	ExpiredOrders expiredOrderReader
	Resolver      winnerResolver
	Metrics       *metrics.SweepMetrics
	BatchSize     int
}

type expiredOrderReader interface {
	FindExpiredOpenOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type winnerResolver interface {
	SelectWinner(ctx context.Context, params bidding.SelectWinnerParams) (*bidding.SelectionResult, error)
	ExpireNoOffers(ctx context.Context, orderID, performedBy uuid.UUID) error
}

// NewBidTimeoutJob builds the cron job that auto-resolves expired bidding
// windows.
func NewBidTimeoutJob(params BidTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ExpiredOrders == nil {
		return nil, fmt.Errorf("expired orders reader required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("winner resolver required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &bidTimeoutJob{
		logg:      params.Logger,
		expired:   params.ExpiredOrders,
		resolver:  params.Resolver,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type bidTimeoutJob struct {
	logg      *logger.Logger
	expired   expiredOrderReader
	resolver  winnerResolver
	metrics   *metrics.SweepMetrics
	batchSize int
	now       func() time.Time
}

func (j *bidTimeoutJob) Name() string { return "bid-timeout-sweep" }

// Run resolves every order whose bidding window has closed: orders with
// pending offers get a winner, orders without any close as expired. One
// failed order never blocks the rest of the batch.
func (j *bidTimeoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	orders, err := j.expired.FindExpiredOpenOrders(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query expired open orders: %w", err)
	}

	var (
		errs     []error
		resolved int
		expired  int
	)
	for _, order := range orders {
		_, err := j.resolver.SelectWinner(ctx, bidding.SelectWinnerParams{
			OrderID:     order.ID,
			PerformedBy: order.BuyerStoreID,
			Auto:        true,
		})
		switch {
		case err == nil:
			resolved++
			j.metrics.IncAutoSelected()
		case pkgerrors.HasCode(err, pkgerrors.CodeNoPendingOffers):
			if expireErr := j.resolver.ExpireNoOffers(ctx, order.ID, order.BuyerStoreID); expireErr != nil {
				errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, expireErr))
				j.metrics.IncFailed()
				continue
			}
			expired++
			j.metrics.IncExpiredNoOffers()
		case pkgerrors.HasCode(err, pkgerrors.CodeAlreadyAssigned):
			// Resolved concurrently between the query and the lock.
		default:
			errs = append(errs, fmt.Errorf("resolve order %s: %w", order.ID, err))
			j.metrics.IncFailed()
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  len(orders),
		"resolved": resolved,
		"expired":  expired,
		"failed":   len(errs),
	})
	j.logg.Info(logCtx, "bid timeout sweep complete")
	return multierr.Combine(errs...)
}
