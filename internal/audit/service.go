package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
)

// Entry is one decision to record.
type Entry struct {
	Action        enums.AuditAction
	OrderID       uuid.UUID
	SellerStoreID *uuid.UUID
	PerformedBy   uuid.UUID
	Metadata      map[string]any
}

// Service records bidding and credit decisions. Recording runs after the
// decision's transaction commits and is best-effort: a failed write is
// logged and swallowed, never propagated to the caller.
type Service interface {
	Record(ctx context.Context, entry Entry)
	Trail(ctx context.Context, orderID uuid.UUID) ([]models.AuditRecord, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	record := &models.AuditRecord{
		Action:        entry.Action,
		OrderID:       entry.OrderID,
		SellerStoreID: entry.SellerStoreID,
		PerformedBy:   entry.PerformedBy,
	}
	if entry.Metadata != nil {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			s.logg.Error(ctx, "marshal audit metadata", err)
		} else {
			record.Metadata = payload
		}
	}

	if err := s.repo.Create(ctx, record); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"action":   string(entry.Action),
			"order_id": entry.OrderID.String(),
		})
		s.logg.Error(logCtx, "audit record write failed", err)
	}
}

func (s *service) Trail(ctx context.Context, orderID uuid.UUID) ([]models.AuditRecord, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	records, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit records")
	}
	return records, nil
}
