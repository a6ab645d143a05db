package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	dbpkg "github.com/angelmondragon/bidfinderz-backend/pkg/db"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the credit guard: it serializes debit decisions on the pair's
// account row and owns every ledger write.
type Service interface {
	ValidateAndDebit(ctx context.Context, input DebitInput) (*DebitResult, error)
	ValidateAndDebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*DebitResult, error)
	ReleaseDebit(ctx context.Context, entryID uuid.UUID, reason string, performedBy uuid.UUID) (*models.LedgerEntry, error)
	VerifyBalance(ctx context.Context, buyerStoreID uuid.UUID, sellerStoreID *uuid.UUID) (*VerifyReport, error)
	Balance(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*BalanceView, error)
	LedgerHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error)
	OpenAccount(ctx context.Context, input OpenAccountInput) (*models.CreditAccount, error)
	BlockAccount(ctx context.Context, accountID uuid.UUID, reason string) error
	UnblockAccount(ctx context.Context, accountID uuid.UUID) error
}

type service struct {
	tx      txRunner
	repo    Repository
	logg    *logger.Logger
	cfg     config.CreditConfig
	epsilon decimal.Decimal
	now     func() time.Time
}

// NewService wires the credit guard with its repository and policy config.
func NewService(tx txRunner, repo Repository, cfg config.CreditConfig, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("credit repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	epsilon, err := decimal.NewFromString(cfg.DriftEpsilon)
	if err != nil || epsilon.IsNegative() {
		epsilon = decimal.NewFromFloat(0.01)
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &service{
		tx:      tx,
		repo:    repo,
		logg:    logg,
		cfg:     cfg,
		epsilon: epsilon,
		now:     time.Now,
	}, nil
}

// DebitInput captures one debit attempt against a buyer-seller pair. The
// order reference is advisory metadata only; the guard performs no
// deduplication on it.
type DebitInput struct {
	BuyerStoreID  uuid.UUID
	SellerStoreID uuid.UUID
	OrderID       *uuid.UUID
	Amount        decimal.Decimal
	PerformedBy   uuid.UUID

	// Optional per-call overrides of the configured policy.
	LockTimeout time.Duration
	MaxRetries  int
}

// DebitResult reports the committed entry and the balance it produced.
type DebitResult struct {
	EntryID    uuid.UUID       `json:"entryId"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// BalanceView is a point-in-time read of one pair's standing.
type BalanceView struct {
	BuyerStoreID  uuid.UUID       `json:"buyerStoreId"`
	SellerStoreID uuid.UUID       `json:"sellerStoreId"`
	CreditLimit   decimal.Decimal `json:"creditLimit"`
	Balance       decimal.Decimal `json:"balance"`
	Available     decimal.Decimal `json:"available"`
	Active        bool            `json:"active"`
}

func (s *service) ValidateAndDebit(ctx context.Context, input DebitInput) (*DebitResult, error) {
	if err := validateDebitInput(input); err != nil {
		return nil, err
	}

	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	// MaxRetries counts total attempts; go-retry counts re-tries after the
	// first, hence the -1.
	backoff := retry.WithMaxRetries(uint64(maxRetries-1), retry.NewExponential(s.cfg.RetryBackoff))

	var result *DebitResult
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, attemptErr := s.attemptDebit(ctx, input)
		if attemptErr != nil {
			if pkgerrors.IsRetryable(attemptErr) {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"buyer_store_id":  input.BuyerStoreID.String(),
					"seller_store_id": input.SellerStoreID.String(),
					"attempt":         attempt,
				})
				s.logg.Warn(logCtx, "debit contention, backing off")
				return retry.RetryableError(attemptErr)
			}
			return attemptErr
		}
		result = res
		return nil
	})
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMaxRetries, err, "debit failed after exhausting retries").
				WithDetails(map[string]any{"attempts": attempt})
		}
		return nil, err
	}
	return result, nil
}

// ValidateAndDebitTx runs one debit attempt inside an existing transaction,
// letting a caller chain the debit into its own unit of work. No retry is
// applied: a lock failure aborts the caller's transaction, which owns the
// retry decision.
func (s *service) ValidateAndDebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*DebitResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateDebitInput(input); err != nil {
		return nil, err
	}
	return s.debitInTx(ctx, s.repo.WithTx(tx), input)
}

func (s *service) attemptDebit(ctx context.Context, input DebitInput) (*DebitResult, error) {
	var result *DebitResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.debitInTx(ctx, s.repo.WithTx(tx), input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// debitInTx holds the pair's row lock from validation through the entry
// write, so no interleaved writer can base a debit decision on the balance
// this call observed.
func (s *service) debitInTx(ctx context.Context, repo Repository, input DebitInput) (*DebitResult, error) {
	lockTimeout := input.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = s.cfg.LockTimeout
	}

	account, err := repo.LockAccount(ctx, input.BuyerStoreID, input.SellerStoreID, lockTimeout)
	if err != nil {
		return nil, classifyLockError(err, "acquire credit account lock")
	}
	if !account.Active {
		detail := map[string]any{}
		if account.BlockReason != nil {
			detail["blockReason"] = *account.BlockReason
		}
		return nil, pkgerrors.New(pkgerrors.CodeAccountBlocked, "credit relationship is blocked").WithDetails(detail)
	}

	entries, err := repo.ListEntries(ctx, input.BuyerStoreID, input.SellerStoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	balance := FoldBalance(entries)
	projected := balance.Add(input.Amount)
	if projected.GreaterThan(account.CreditLimit) {
		shortfall := projected.Sub(account.CreditLimit)
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit, "projected balance exceeds credit limit").
			WithDetails(map[string]any{
				"creditLimit": account.CreditLimit.String(),
				"balance":     balance.String(),
				"requested":   input.Amount.String(),
				"shortfall":   shortfall.String(),
			})
	}

	entry := &models.LedgerEntry{
		BuyerStoreID:  input.BuyerStoreID,
		SellerStoreID: input.SellerStoreID,
		OrderID:       input.OrderID,
		Kind:          enums.LedgerEntryKindDebit,
		Amount:        input.Amount,
		BalanceAfter:  projected,
		CreatedBy:     input.PerformedBy,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write ledger entry")
	}

	return &DebitResult{EntryID: entry.ID, NewBalance: projected}, nil
}

// ReleaseDebit appends a reversal for a previously committed debit, freeing
// the held capacity. The balance is re-derived live under the pair lock; the
// original entry's stored balance_after is never trusted, since entries
// created after it make that snapshot stale.
func (s *service) ReleaseDebit(ctx context.Context, entryID uuid.UUID, reason string, performedBy uuid.UUID) (*models.LedgerEntry, error) {
	if entryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger entry id required")
	}
	if performedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "performed-by id required")
	}

	var reversal *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		original, err := repo.FindEntryByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
		}
		if original.Kind != enums.LedgerEntryKindDebit {
			return pkgerrors.New(pkgerrors.CodeValidation, "only debit entries can be released")
		}

		if _, err := repo.LockAccount(ctx, original.BuyerStoreID, original.SellerStoreID, s.cfg.LockTimeout); err != nil {
			return classifyLockError(err, "acquire credit account lock")
		}

		// A debit is reversible exactly once; a second release observes the
		// existing reversal and fails NotFound rather than double-crediting.
		if _, err := repo.FindReversalOf(ctx, entryID); err == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry already reversed")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing reversal")
		}

		entries, err := repo.ListEntries(ctx, original.BuyerStoreID, original.SellerStoreID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
		}
		balance := FoldBalance(entries)

		reversal = &models.LedgerEntry{
			BuyerStoreID:  original.BuyerStoreID,
			SellerStoreID: original.SellerStoreID,
			OrderID:       original.OrderID,
			Kind:          enums.LedgerEntryKindReversal,
			Amount:        original.Amount,
			BalanceAfter:  balance.Sub(original.Amount),
			ReversalOfID:  &entryID,
			CreatedBy:     performedBy,
		}
		if err := repo.CreateEntry(ctx, reversal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write reversal entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entry_id": entryID.String(),
		"reason":   reason,
	})
	s.logg.Info(logCtx, "debit released")
	return reversal, nil
}

// DriftAnomaly describes one account whose folded balance disagrees with
// the latest stored snapshot beyond the configured epsilon.
type DriftAnomaly struct {
	BuyerStoreID  uuid.UUID       `json:"buyerStoreId"`
	SellerStoreID uuid.UUID       `json:"sellerStoreId"`
	Folded        decimal.Decimal `json:"folded"`
	Recorded      decimal.Decimal `json:"recorded"`
	Drift         decimal.Decimal `json:"drift"`
}

// VerifyReport summarizes a reconciliation pass. Anomalies are reported,
// never auto-corrected.
type VerifyReport struct {
	CheckedAccounts int            `json:"checkedAccounts"`
	Anomalies       []DriftAnomaly `json:"anomalies"`
}

func (s *service) VerifyBalance(ctx context.Context, buyerStoreID uuid.UUID, sellerStoreID *uuid.UUID) (*VerifyReport, error) {
	if buyerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer store id required")
	}

	var accounts []models.CreditAccount
	if sellerStoreID != nil {
		account, err := s.repo.FindAccount(ctx, buyerStoreID, *sellerStoreID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNoCreditAccount, "no credit relationship exists for this pair")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit account")
		}
		accounts = []models.CreditAccount{*account}
	} else {
		all, err := s.repo.ListAccountsForBuyer(ctx, buyerStoreID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit accounts")
		}
		accounts = all
	}

	report := &VerifyReport{CheckedAccounts: len(accounts)}
	for _, account := range accounts {
		entries, err := s.repo.ListEntries(ctx, account.BuyerStoreID, account.SellerStoreID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
		}
		if len(entries) == 0 {
			continue
		}
		folded := FoldBalance(entries)
		recorded := entries[len(entries)-1].BalanceAfter
		drift := folded.Sub(recorded).Abs()
		if drift.GreaterThan(s.epsilon) {
			report.Anomalies = append(report.Anomalies, DriftAnomaly{
				BuyerStoreID:  account.BuyerStoreID,
				SellerStoreID: account.SellerStoreID,
				Folded:        folded,
				Recorded:      recorded,
				Drift:         drift,
			})
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"buyer_store_id":  account.BuyerStoreID.String(),
				"seller_store_id": account.SellerStoreID.String(),
				"drift":           drift.String(),
			})
			s.logg.Error(logCtx, "ledger balance drift detected", pkgerrors.New(pkgerrors.CodeBalanceDrift, "fold disagrees with stored balance"))
		}
	}
	return report, nil
}

func (s *service) Balance(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*BalanceView, error) {
	if buyerStoreID == uuid.Nil || sellerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller store ids required")
	}
	account, err := s.repo.FindAccount(ctx, buyerStoreID, sellerStoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNoCreditAccount, "no credit relationship exists for this pair")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit account")
	}
	entries, err := s.repo.ListEntries(ctx, buyerStoreID, sellerStoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	balance := FoldBalance(entries)
	return &BalanceView{
		BuyerStoreID:  buyerStoreID,
		SellerStoreID: sellerStoreID,
		CreditLimit:   account.CreditLimit,
		Balance:       balance,
		Available:     account.CreditLimit.Sub(balance),
		Active:        account.Active,
	}, nil
}

// HistoryParams configures a paginated ledger history read.
type HistoryParams struct {
	BuyerStoreID  uuid.UUID
	SellerStoreID *uuid.UUID
	Limit         int
	Cursor        string
}

// HistoryResult wraps one page of ledger entries and the next cursor.
type HistoryResult struct {
	Items  []models.LedgerEntry `json:"items"`
	Cursor string               `json:"cursor"`
}

func (s *service) LedgerHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.BuyerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer store id required")
	}

	query := ListEntriesParams{
		BuyerStoreID:  params.BuyerStoreID,
		SellerStoreID: params.SellerStoreID,
		Limit:         params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListEntriesPage(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger history")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &HistoryResult{Items: rows, Cursor: cursor}, nil
}

// OpenAccountInput establishes a new credit relationship.
type OpenAccountInput struct {
	BuyerStoreID  uuid.UUID
	SellerStoreID uuid.UUID
	CreditLimit   decimal.Decimal
}

func (s *service) OpenAccount(ctx context.Context, input OpenAccountInput) (*models.CreditAccount, error) {
	if input.BuyerStoreID == uuid.Nil || input.SellerStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller store ids required")
	}
	if input.BuyerStoreID == input.SellerStoreID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller must differ")
	}
	if !input.CreditLimit.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be positive")
	}

	account := &models.CreditAccount{
		BuyerStoreID:  input.BuyerStoreID,
		SellerStoreID: input.SellerStoreID,
		CreditLimit:   input.CreditLimit,
		Active:        true,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_credit_accounts_pair") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "credit relationship already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create credit account")
	}
	return account, nil
}

func (s *service) BlockAccount(ctx context.Context, accountID uuid.UUID, reason string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "block reason required")
	}
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit account")
	}
	updates := map[string]any{"active": false, "block_reason": reason}
	if err := s.repo.UpdateAccount(ctx, accountID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "block credit account")
	}
	return nil
}

func (s *service) UnblockAccount(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit account")
	}
	updates := map[string]any{"active": true, "block_reason": nil}
	if err := s.repo.UpdateAccount(ctx, accountID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unblock credit account")
	}
	return nil
}

func validateDebitInput(input DebitInput) error {
	if input.BuyerStoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer store id required")
	}
	if input.SellerStoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller store id required")
	}
	if input.PerformedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "performed-by id required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	return nil
}

// classifyLockError translates storage failures into the retry taxonomy:
// lock timeouts and deadlocks are retryable, a missing row is terminal, and
// anything else surfaces as a dependency failure.
func classifyLockError(err error, action string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNoCreditAccount, "no credit relationship exists for this pair")
	case dbpkg.IsLockTimeout(err):
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, action)
	case dbpkg.IsDeadlock(err):
		return pkgerrors.Wrap(pkgerrors.CodeDeadlock, err, action)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
