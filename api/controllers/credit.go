package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/api/responses"
	"github.com/angelmondragon/bidfinderz-backend/api/validators"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/pagination"
)

type openAccountRequest struct {
	BuyerStoreID  string `json:"buyerStoreId" validate:"required,uuid"`
	SellerStoreID string `json:"sellerStoreId" validate:"required,uuid"`
	CreditLimit   string `json:"creditLimit" validate:"required"`
}

// OpenCreditAccount establishes a credit relationship between a buyer and
// a seller.
func OpenCreditAccount(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body openAccountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := decimal.NewFromString(body.CreditLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid credit limit"))
			return
		}

		account, err := svc.OpenAccount(r.Context(), credit.OpenAccountInput{
			BuyerStoreID:  uuid.MustParse(body.BuyerStoreID),
			SellerStoreID: uuid.MustParse(body.SellerStoreID),
			CreditLimit:   limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

func pairParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	buyer, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("buyerStoreId")))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer store id")
	}
	seller, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("sellerStoreId")))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller store id")
	}
	return buyer, seller, nil
}

// CreditBalance returns the live balance view for a buyer-seller pair.
func CreditBalance(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyer, seller, err := pairParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Balance(r.Context(), buyer, seller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// LedgerHistory returns a paginated page of ledger entries for a buyer,
// optionally scoped to one seller.
func LedgerHistory(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyer, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("buyerStoreId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer store id"))
			return
		}

		params := credit.HistoryParams{BuyerStoreID: buyer}
		if raw := strings.TrimSpace(r.URL.Query().Get("sellerStoreId")); raw != "" {
			seller, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller store id"))
				return
			}
			params.SellerStoreID = &seller
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit
		params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

		result, err := svc.LedgerHistory(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type releaseDebitRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ReleaseDebit reverses a previously committed debit entry.
func ReleaseDebit(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ledger entry id"))
			return
		}
		actor, err := actorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body releaseDebitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reversal, err := svc.ReleaseDebit(r.Context(), entryID, validators.SanitizeString(body.Reason, 500), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reversal)
	}
}

type verifyBalanceRequest struct {
	BuyerStoreID  string  `json:"buyerStoreId" validate:"required,uuid"`
	SellerStoreID *string `json:"sellerStoreId" validate:"omitempty,uuid"`
}

// VerifyBalance reconciles stored balances against the folded ledger.
func VerifyBalance(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body verifyBalanceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var seller *uuid.UUID
		if body.SellerStoreID != nil {
			id := uuid.MustParse(*body.SellerStoreID)
			seller = &id
		}

		report, err := svc.VerifyBalance(r.Context(), uuid.MustParse(body.BuyerStoreID), seller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

type blockAccountRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BlockCreditAccount suspends new debits on a credit relationship.
func BlockCreditAccount(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		var body blockAccountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.BlockAccount(r.Context(), accountID, validators.SanitizeString(body.Reason, 500)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "blocked"})
	}
}

// UnblockCreditAccount lifts a block on a credit relationship.
func UnblockCreditAccount(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		if err := svc.UnblockAccount(r.Context(), accountID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}
