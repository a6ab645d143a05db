package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/api/middleware"
	"github.com/angelmondragon/bidfinderz-backend/api/responses"
	"github.com/angelmondragon/bidfinderz-backend/api/validators"
	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/bidding"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
)

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}

func actorStoreID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.StoreIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "store context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}
	return id, nil
}

type broadcastRequest struct {
	SellerIDs    []string `json:"sellerIds" validate:"omitempty,dive,uuid"`
	RadiusMeters int      `json:"radiusMeters" validate:"omitempty,gte=0"`
}

func (req broadcastRequest) options() (bidding.BroadcastOptions, error) {
	opts := bidding.BroadcastOptions{RadiusMeters: req.RadiusMeters}
	for _, raw := range req.SellerIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return bidding.BroadcastOptions{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id")
		}
		opts.SellerIDs = append(opts.SellerIDs, id)
	}
	return opts, nil
}

// BroadcastOrder opens the bidding window on an order and invites eligible
// sellers. The body is optional; when present it can narrow the invite set
// to listed sellers or override the distance radius.
func BroadcastOrder(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body broadcastRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		opts, err := body.options()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Broadcast(r.Context(), orderID, actor, opts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type submitOfferRequest struct {
	PriceQuote     string `json:"priceQuote" validate:"required"`
	DeliveryEta    string `json:"deliveryEta" validate:"required"`
	StockConfirmed bool   `json:"stockConfirmed"`
}

// SubmitOffer ingests the calling seller's offer on an order.
func SubmitOffer(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seller, err := actorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body submitOfferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := decimal.NewFromString(body.PriceQuote)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price quote"))
			return
		}

		result, err := svc.SubmitOffer(r.Context(), bidding.SubmitOfferInput{
			OrderID:        orderID,
			SellerStoreID:  seller,
			PriceQuote:     price,
			DeliveryEta:    body.DeliveryEta,
			StockConfirmed: body.StockConfirmed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.IsUpdate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// ListOffers returns the scored, ranked offers on an order.
func ListOffers(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ListOffers(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SelectWinner resolves the order's pending offers to a winner.
func SelectWinner(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SelectWinner(r.Context(), bidding.SelectWinnerParams{
			OrderID:     orderID,
			PerformedBy: actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OrderAuditTrail returns the recorded decisions for an order.
func OrderAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trail, err := svc.Trail(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"records": trail})
	}
}
