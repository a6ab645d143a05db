package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/internal/notify"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/types"
)

type stubBiddingRepo struct {
	orders  map[uuid.UUID]*models.Order
	offers  []*models.Offer
	sellers []models.Store
	stats   map[uuid.UUID]models.SellerStats
}

func newStubBiddingRepo() *stubBiddingRepo {
	return &stubBiddingRepo{
		orders: make(map[uuid.UUID]*models.Order),
		stats:  make(map[uuid.UUID]models.SellerStats),
	}
}

func (s *stubBiddingRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubBiddingRepo) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubBiddingRepo) LockOrder(ctx context.Context, id uuid.UUID, timeout time.Duration) (*models.Order, error) {
	return s.FindOrder(ctx, id)
}

func (s *stubBiddingRepo) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	order, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"]; ok {
		order.Status = status.(enums.OrderStatus)
	}
	if expires, ok := updates["bidding_expires_at"]; ok {
		at := expires.(time.Time)
		order.BiddingExpiresAt = &at
	}
	if seller, ok := updates["final_seller_id"]; ok {
		id := seller.(uuid.UUID)
		order.FinalSellerID = &id
	}
	return nil
}

func (s *stubBiddingRepo) FindExpiredOpenOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.Status == enums.OrderStatusOpenForBids &&
			order.BiddingExpiresAt != nil && !order.BiddingExpiresAt.After(cutoff) {
			out = append(out, *order)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *stubBiddingRepo) FindOffer(ctx context.Context, orderID, sellerStoreID uuid.UUID) (*models.Offer, error) {
	for _, offer := range s.offers {
		if offer.OrderID == orderID && offer.SellerStoreID == sellerStoreID {
			copied := *offer
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubBiddingRepo) CreateOffer(ctx context.Context, offer *models.Offer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now()
	}
	copied := *offer
	s.offers = append(s.offers, &copied)
	return nil
}

func (s *stubBiddingRepo) UpdateOffer(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	for _, offer := range s.offers {
		if offer.ID != id {
			continue
		}
		if price, ok := updates["price_quote"]; ok {
			offer.PriceQuote = price.(decimal.Decimal)
		}
		if eta, ok := updates["delivery_eta"]; ok {
			offer.DeliveryEta = eta.(string)
		}
		if stock, ok := updates["stock_confirmed"]; ok {
			offer.StockConfirmed = stock.(bool)
		}
		if status, ok := updates["status"]; ok {
			offer.Status = status.(enums.OfferStatus)
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (s *stubBiddingRepo) ListOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error) {
	var out []models.Offer
	for _, offer := range s.offers {
		if offer.OrderID == orderID {
			out = append(out, *offer)
		}
	}
	return out, nil
}

func (s *stubBiddingRepo) ListPendingOffers(ctx context.Context, orderID uuid.UUID) ([]models.Offer, error) {
	var out []models.Offer
	for _, offer := range s.offers {
		if offer.OrderID == orderID && offer.Status == enums.OfferStatusPending {
			out = append(out, *offer)
		}
	}
	return out, nil
}

func (s *stubBiddingRepo) UpdateOfferStatuses(ctx context.Context, orderID uuid.UUID, from, to enums.OfferStatus, excludeID *uuid.UUID) (int64, error) {
	var affected int64
	for _, offer := range s.offers {
		if offer.OrderID != orderID || offer.Status != from {
			continue
		}
		if excludeID != nil && offer.ID == *excludeID {
			continue
		}
		offer.Status = to
		affected++
	}
	return affected, nil
}

func (s *stubBiddingRepo) ListActiveSellers(ctx context.Context) ([]models.Store, error) {
	return s.sellers, nil
}

func (s *stubBiddingRepo) FindSellerStats(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]models.SellerStats, error) {
	out := make(map[uuid.UUID]models.SellerStats)
	for _, id := range storeIDs {
		if row, ok := s.stats[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCreditService struct {
	debits  []credit.DebitInput
	debitTx func(ctx context.Context, input credit.DebitInput) (*credit.DebitResult, error)
}

func (s *stubCreditService) ValidateAndDebit(ctx context.Context, input credit.DebitInput) (*credit.DebitResult, error) {
	panic("not implemented")
}

func (s *stubCreditService) ValidateAndDebitTx(ctx context.Context, tx *gorm.DB, input credit.DebitInput) (*credit.DebitResult, error) {
	if s.debitTx != nil {
		return s.debitTx(ctx, input)
	}
	s.debits = append(s.debits, input)
	return &credit.DebitResult{EntryID: uuid.New(), NewBalance: input.Amount}, nil
}

func (s *stubCreditService) ReleaseDebit(ctx context.Context, entryID uuid.UUID, reason string, performedBy uuid.UUID) (*models.LedgerEntry, error) {
	panic("not implemented")
}

func (s *stubCreditService) VerifyBalance(ctx context.Context, buyerStoreID uuid.UUID, sellerStoreID *uuid.UUID) (*credit.VerifyReport, error) {
	panic("not implemented")
}

func (s *stubCreditService) Balance(ctx context.Context, buyerStoreID, sellerStoreID uuid.UUID) (*credit.BalanceView, error) {
	panic("not implemented")
}

func (s *stubCreditService) LedgerHistory(ctx context.Context, params credit.HistoryParams) (*credit.HistoryResult, error) {
	panic("not implemented")
}

func (s *stubCreditService) OpenAccount(ctx context.Context, input credit.OpenAccountInput) (*models.CreditAccount, error) {
	panic("not implemented")
}

func (s *stubCreditService) BlockAccount(ctx context.Context, accountID uuid.UUID, reason string) error {
	panic("not implemented")
}

func (s *stubCreditService) UnblockAccount(ctx context.Context, accountID uuid.UUID) error {
	panic("not implemented")
}

type stubAuditService struct {
	entries []audit.Entry
}

func (s *stubAuditService) Record(ctx context.Context, entry audit.Entry) {
	s.entries = append(s.entries, entry)
}

func (s *stubAuditService) Trail(ctx context.Context, orderID uuid.UUID) ([]models.AuditRecord, error) {
	return nil, nil
}

func (s *stubAuditService) actions() []enums.AuditAction {
	out := make([]enums.AuditAction, len(s.entries))
	for i, entry := range s.entries {
		out[i] = entry.Action
	}
	return out
}

type stubSender struct {
	sent []notify.Notification
}

func (s *stubSender) Send(ctx context.Context, notification notify.Notification) error {
	s.sent = append(s.sent, notification)
	return nil
}

type biddingFixture struct {
	repo    *stubBiddingRepo
	credits *stubCreditService
	audits  *stubAuditService
	sender  *stubSender
	svc     *service
}

func newBiddingFixture(t *testing.T) *biddingFixture {
	t.Helper()
	repo := newStubBiddingRepo()
	credits := &stubCreditService{}
	audits := &stubAuditService{}
	sender := &stubSender{}
	cfg := config.BiddingConfig{
		WindowMinutes:  30,
		SweepBatchSize: 50,
		LockTimeout:    time.Second,
	}
	svc, err := NewService(stubTxRunner{}, repo, credits, audits, sender, cfg, logger.New(logger.Options{ServiceName: "bidding-test"}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &biddingFixture{
		repo:    repo,
		credits: credits,
		audits:  audits,
		sender:  sender,
		svc:     svc.(*service),
	}
}

func (f *biddingFixture) freeze(t *testing.T, at time.Time) {
	t.Helper()
	f.svc.now = func() time.Time { return at }
}

func openOrder(buyer uuid.UUID, reference string, expiresAt time.Time) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		BuyerStoreID:     buyer,
		Status:           enums.OrderStatusOpenForBids,
		ReferenceAmount:  decimal.RequireFromString(reference),
		BiddingExpiresAt: &expiresAt,
	}
}

func pendingOffer(orderID, seller uuid.UUID, price, eta string, stock bool, submittedAt time.Time) *models.Offer {
	return &models.Offer{
		ID:             uuid.New(),
		OrderID:        orderID,
		SellerStoreID:  seller,
		PriceQuote:     decimal.RequireFromString(price),
		DeliveryEta:    eta,
		StockConfirmed: stock,
		Status:         enums.OfferStatusPending,
		CreatedAt:      submittedAt,
	}
}

func TestBroadcastOpensWindowAndInvites(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	buyer := uuid.New()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerStoreID:    buyer,
		Status:          enums.OrderStatusDraft,
		ReferenceAmount: decimal.RequireFromString("1000.00"),
		Location:        &types.GeographyPoint{Lat: 40.0, Lng: -74.0},
	}
	f.repo.orders[order.ID] = order

	near := models.Store{
		ID:                   uuid.New(),
		Type:                 enums.StoreTypeSeller,
		Active:               true,
		Geom:                 &types.GeographyPoint{Lat: 40.01, Lng: -74.0},
		DeliveryRadiusMeters: 5000,
	}
	far := models.Store{
		ID:                   uuid.New(),
		Type:                 enums.StoreTypeSeller,
		Active:               true,
		Geom:                 &types.GeographyPoint{Lat: 41.0, Lng: -74.0},
		DeliveryRadiusMeters: 5000,
	}
	f.repo.sellers = []models.Store{near, far}

	result, err := f.svc.Broadcast(context.Background(), order.ID, buyer, BroadcastOptions{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(result.InvitedSellerIDs) != 1 || result.InvitedSellerIDs[0] != near.ID {
		t.Fatalf("expected only the in-radius seller invited, got %v", result.InvitedSellerIDs)
	}
	if want := now.Add(30 * time.Minute); !result.ExpiresAt.Equal(want) {
		t.Fatalf("expected window to close at %s, got %s", want, result.ExpiresAt)
	}
	if f.repo.orders[order.ID].Status != enums.OrderStatusOpenForBids {
		t.Fatalf("order not opened, status %s", f.repo.orders[order.ID].Status)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].Kind != notify.KindBidInvitation {
		t.Fatalf("expected one invitation, got %v", f.sender.sent)
	}
	if actions := f.audits.actions(); len(actions) != 1 || actions[0] != enums.AuditActionBroadcast {
		t.Fatalf("expected broadcast audit, got %v", actions)
	}
}

func TestBroadcastWithoutLocationInvitesAllSellers(t *testing.T) {
	f := newBiddingFixture(t)
	buyer := uuid.New()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerStoreID:    buyer,
		Status:          enums.OrderStatusDraft,
		ReferenceAmount: decimal.RequireFromString("100.00"),
	}
	f.repo.orders[order.ID] = order
	f.repo.sellers = []models.Store{
		{ID: uuid.New(), Type: enums.StoreTypeSeller, Active: true},
		{ID: uuid.New(), Type: enums.StoreTypeSeller, Active: true},
	}

	result, err := f.svc.Broadcast(context.Background(), order.ID, buyer, BroadcastOptions{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(result.InvitedSellerIDs) != 2 {
		t.Fatalf("expected both sellers invited, got %d", len(result.InvitedSellerIDs))
	}
}

func TestBroadcastAllowlistNarrowsInvites(t *testing.T) {
	f := newBiddingFixture(t)
	buyer := uuid.New()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerStoreID:    buyer,
		Status:          enums.OrderStatusDraft,
		ReferenceAmount: decimal.RequireFromString("100.00"),
	}
	f.repo.orders[order.ID] = order

	wanted := models.Store{ID: uuid.New(), Type: enums.StoreTypeSeller, Active: true}
	other := models.Store{ID: uuid.New(), Type: enums.StoreTypeSeller, Active: true}
	f.repo.sellers = []models.Store{wanted, other}

	result, err := f.svc.Broadcast(context.Background(), order.ID, buyer, BroadcastOptions{
		SellerIDs: []uuid.UUID{wanted.ID},
	})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(result.InvitedSellerIDs) != 1 || result.InvitedSellerIDs[0] != wanted.ID {
		t.Fatalf("expected only the allowlisted seller invited, got %v", result.InvitedSellerIDs)
	}
}

func TestBroadcastRadiusOverride(t *testing.T) {
	f := newBiddingFixture(t)
	buyer := uuid.New()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerStoreID:    buyer,
		Status:          enums.OrderStatusDraft,
		ReferenceAmount: decimal.RequireFromString("100.00"),
		Location:        &types.GeographyPoint{Lat: 40.0, Lng: -74.0},
	}
	f.repo.orders[order.ID] = order

	// Roughly 1.1km from the order; the seller's own radius is too small.
	seller := models.Store{
		ID:                   uuid.New(),
		Type:                 enums.StoreTypeSeller,
		Active:               true,
		Geom:                 &types.GeographyPoint{Lat: 40.01, Lng: -74.0},
		DeliveryRadiusMeters: 100,
	}
	f.repo.sellers = []models.Store{seller}

	result, err := f.svc.Broadcast(context.Background(), order.ID, buyer, BroadcastOptions{RadiusMeters: 5000})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(result.InvitedSellerIDs) != 1 {
		t.Fatalf("caller radius should cover the seller, got %v", result.InvitedSellerIDs)
	}

	_, err = f.svc.Broadcast(context.Background(), order.ID, buyer, BroadcastOptions{RadiusMeters: -1})
	if got := pkgerrors.As(err); got == nil || got.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for negative radius, got %v", err)
	}
}

func TestBroadcastRejectsResolvedOrder(t *testing.T) {
	f := newBiddingFixture(t)
	order := &models.Order{
		ID:              uuid.New(),
		BuyerStoreID:    uuid.New(),
		Status:          enums.OrderStatusWinnerSelected,
		ReferenceAmount: decimal.RequireFromString("100.00"),
	}
	f.repo.orders[order.ID] = order

	_, err := f.svc.Broadcast(context.Background(), order.ID, order.BuyerStoreID, BroadcastOptions{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotEligible) {
		t.Fatalf("expected order-not-eligible, got %v", err)
	}
}

func TestSubmitOfferCreatesPending(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(10*time.Minute))
	f.repo.orders[order.ID] = order
	seller := uuid.New()

	result, err := f.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		OrderID:        order.ID,
		SellerStoreID:  seller,
		PriceQuote:     decimal.RequireFromString("900.00"),
		DeliveryEta:    "4 hours",
		StockConfirmed: true,
	})
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if result.IsUpdate {
		t.Fatal("first submission must not be an update")
	}
	if result.Offer.Status != enums.OfferStatusPending {
		t.Fatalf("expected pending offer, got %s", result.Offer.Status)
	}
	if actions := f.audits.actions(); len(actions) != 1 || actions[0] != enums.AuditActionOfferIngested {
		t.Fatalf("expected offer-ingested audit, got %v", actions)
	}
}

func TestSubmitOfferReplacesPending(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(10*time.Minute))
	f.repo.orders[order.ID] = order
	seller := uuid.New()
	f.repo.offers = append(f.repo.offers, pendingOffer(order.ID, seller, "950.00", "12 hours", false, now.Add(-time.Minute)))

	result, err := f.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		OrderID:        order.ID,
		SellerStoreID:  seller,
		PriceQuote:     decimal.RequireFromString("880.00"),
		DeliveryEta:    "6 hours",
		StockConfirmed: true,
	})
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if !result.IsUpdate {
		t.Fatal("expected replacement to report isUpdate")
	}
	if !result.Offer.PriceQuote.Equal(decimal.RequireFromString("880.00")) {
		t.Fatalf("offer not replaced, price %s", result.Offer.PriceQuote)
	}
	if len(f.repo.offers) != 1 {
		t.Fatalf("replacement must not create a second offer, got %d", len(f.repo.offers))
	}
}

func TestSubmitOfferPreservesAccepted(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(10*time.Minute))
	f.repo.orders[order.ID] = order
	seller := uuid.New()
	accepted := pendingOffer(order.ID, seller, "950.00", "12 hours", true, now.Add(-time.Minute))
	accepted.Status = enums.OfferStatusAccepted
	f.repo.offers = append(f.repo.offers, accepted)

	result, err := f.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		OrderID:        order.ID,
		SellerStoreID:  seller,
		PriceQuote:     decimal.RequireFromString("500.00"),
		DeliveryEta:    "1 hour",
		StockConfirmed: true,
	})
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if !result.Offer.PriceQuote.Equal(decimal.RequireFromString("950.00")) {
		t.Fatalf("accepted offer must not be overwritten, price %s", result.Offer.PriceQuote)
	}
}

func TestSubmitOfferWindowExpired(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order

	_, err := f.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		OrderID:        order.ID,
		SellerStoreID:  uuid.New(),
		PriceQuote:     decimal.RequireFromString("900.00"),
		DeliveryEta:    "4 hours",
		StockConfirmed: true,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeWindowExpired) {
		t.Fatalf("expected window-expired, got %v", err)
	}
}

func TestSubmitOfferOrderStates(t *testing.T) {
	f := newBiddingFixture(t)

	assigned := &models.Order{ID: uuid.New(), BuyerStoreID: uuid.New(), Status: enums.OrderStatusWinnerSelected, ReferenceAmount: decimal.RequireFromString("100.00")}
	draft := &models.Order{ID: uuid.New(), BuyerStoreID: uuid.New(), Status: enums.OrderStatusDraft, ReferenceAmount: decimal.RequireFromString("100.00")}
	f.repo.orders[assigned.ID] = assigned
	f.repo.orders[draft.ID] = draft

	input := SubmitOfferInput{
		SellerStoreID:  uuid.New(),
		PriceQuote:     decimal.RequireFromString("90.00"),
		DeliveryEta:    "2 hours",
		StockConfirmed: true,
	}

	input.OrderID = assigned.ID
	if _, err := f.svc.SubmitOffer(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyAssigned) {
		t.Fatalf("expected already-assigned, got %v", err)
	}

	input.OrderID = draft.ID
	if _, err := f.svc.SubmitOffer(context.Background(), input); !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotOpen) {
		t.Fatalf("expected order-not-open, got %v", err)
	}
}

func TestSubmitOfferMissingFields(t *testing.T) {
	f := newBiddingFixture(t)

	_, err := f.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		OrderID:       uuid.New(),
		SellerStoreID: uuid.New(),
		PriceQuote:    decimal.Zero,
		DeliveryEta:   " ",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeMissingFields) {
		t.Fatalf("expected missing-fields, got %v", err)
	}
}

func TestListOffersRanked(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	order := openOrder(uuid.New(), "1000.00", now.Add(10*time.Minute))
	f.repo.orders[order.ID] = order

	strong := uuid.New()
	weak := uuid.New()
	f.repo.offers = append(f.repo.offers,
		pendingOffer(order.ID, weak, "1150.00", "36 hours", false, now),
		pendingOffer(order.ID, strong, "850.00", "3 hours", true, now.Add(time.Second)),
	)
	f.repo.stats[strong] = models.SellerStats{StoreID: strong, ReliabilityScore: 95, CompletedOrders: 90, TotalOrders: 100, AvgRating: 4.8}

	view, err := f.svc.ListOffers(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("ListOffers: %v", err)
	}
	if len(view.Offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(view.Offers))
	}
	if view.Offers[0].Offer.SellerStoreID != strong {
		t.Fatal("expected the stronger offer ranked first")
	}
	if view.Offers[0].Result.Total <= view.Offers[1].Result.Total {
		t.Fatalf("ranking not descending: %f vs %f", view.Offers[0].Result.Total, view.Offers[1].Result.Total)
	}
	if view.Offers[0].Result.Breakdown.Price.WeightedScore == 0 {
		t.Fatal("expected populated score breakdown")
	}
}

func TestSelectWinnerAcceptsTopOffer(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	buyer := uuid.New()
	order := openOrder(buyer, "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order

	strong := uuid.New()
	weak := uuid.New()
	f.repo.offers = append(f.repo.offers,
		pendingOffer(order.ID, strong, "850.00", "3 hours", true, now.Add(-10*time.Minute)),
		pendingOffer(order.ID, weak, "1150.00", "36 hours", false, now.Add(-9*time.Minute)),
	)

	result, err := f.svc.SelectWinner(context.Background(), SelectWinnerParams{
		OrderID:     order.ID,
		PerformedBy: buyer,
	})
	if err != nil {
		t.Fatalf("SelectWinner: %v", err)
	}
	if result.WinningOffer.Offer.SellerStoreID != strong {
		t.Fatalf("wrong winner %s", result.WinningOffer.Offer.SellerStoreID)
	}
	if result.RejectedCount != 1 {
		t.Fatalf("expected 1 rejection, got %d", result.RejectedCount)
	}

	if f.repo.orders[order.ID].Status != enums.OrderStatusWinnerSelected {
		t.Fatalf("order not assigned, status %s", f.repo.orders[order.ID].Status)
	}
	if f.repo.orders[order.ID].FinalSellerID == nil || *f.repo.orders[order.ID].FinalSellerID != strong {
		t.Fatal("final seller not recorded")
	}
	for _, offer := range f.repo.offers {
		switch offer.SellerStoreID {
		case strong:
			if offer.Status != enums.OfferStatusAccepted {
				t.Fatalf("winner offer status %s", offer.Status)
			}
		case weak:
			if offer.Status != enums.OfferStatusRejected {
				t.Fatalf("loser offer status %s", offer.Status)
			}
		}
	}

	if len(f.credits.debits) != 1 {
		t.Fatalf("expected 1 debit, got %d", len(f.credits.debits))
	}
	debit := f.credits.debits[0]
	if debit.BuyerStoreID != buyer || debit.SellerStoreID != strong {
		t.Fatal("debit routed to the wrong pair")
	}
	if !debit.Amount.Equal(decimal.RequireFromString("850.00")) {
		t.Fatalf("debit amount %s, want winning quote", debit.Amount)
	}

	actions := f.audits.actions()
	if len(actions) != 2 || actions[0] != enums.AuditActionWinnerSelected || actions[1] != enums.AuditActionLoserRejected {
		t.Fatalf("unexpected audit actions %v", actions)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("expected winner and loser notifications, got %d", len(f.sender.sent))
	}
}

func TestSelectWinnerNoPendingOffers(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order

	_, err := f.svc.SelectWinner(context.Background(), SelectWinnerParams{
		OrderID:     order.ID,
		PerformedBy: order.BuyerStoreID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNoPendingOffers) {
		t.Fatalf("expected no-pending-offers, got %v", err)
	}
}

func TestSelectWinnerAlreadyAssigned(t *testing.T) {
	f := newBiddingFixture(t)
	order := &models.Order{ID: uuid.New(), BuyerStoreID: uuid.New(), Status: enums.OrderStatusWinnerSelected, ReferenceAmount: decimal.RequireFromString("100.00")}
	f.repo.orders[order.ID] = order

	_, err := f.svc.SelectWinner(context.Background(), SelectWinnerParams{
		OrderID:     order.ID,
		PerformedBy: order.BuyerStoreID,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeAlreadyAssigned) {
		t.Fatalf("expected already-assigned, got %v", err)
	}
}

func TestSelectWinnerDebitFailurePropagates(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	buyer := uuid.New()
	order := openOrder(buyer, "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order
	f.repo.offers = append(f.repo.offers, pendingOffer(order.ID, uuid.New(), "850.00", "3 hours", true, now.Add(-10*time.Minute)))

	f.credits.debitTx = func(ctx context.Context, input credit.DebitInput) (*credit.DebitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit, "projected balance exceeds credit limit")
	}

	_, err := f.svc.SelectWinner(context.Background(), SelectWinnerParams{
		OrderID:     order.ID,
		PerformedBy: buyer,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredit) {
		t.Fatalf("expected insufficient-credit to propagate, got %v", err)
	}
	// Audit and notifications only follow a committed selection.
	if len(f.audits.entries) != 0 {
		t.Fatalf("no audit should be written on rollback, got %d", len(f.audits.entries))
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("no notifications should be sent on rollback, got %d", len(f.sender.sent))
	}
}

func TestSelectWinnerTieBreaksOnSubmission(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	buyer := uuid.New()
	order := openOrder(buyer, "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order

	early := uuid.New()
	late := uuid.New()
	// Identical offers; only submission time differs.
	f.repo.offers = append(f.repo.offers,
		pendingOffer(order.ID, late, "900.00", "4 hours", true, now.Add(-5*time.Minute)),
		pendingOffer(order.ID, early, "900.00", "4 hours", true, now.Add(-15*time.Minute)),
	)

	result, err := f.svc.SelectWinner(context.Background(), SelectWinnerParams{
		OrderID:     order.ID,
		PerformedBy: buyer,
	})
	if err != nil {
		t.Fatalf("SelectWinner: %v", err)
	}
	if result.WinningOffer.Offer.SellerStoreID != early {
		t.Fatal("tie must break on the earliest submission")
	}
}

func TestExpireNoOffers(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order

	if err := f.svc.ExpireNoOffers(context.Background(), order.ID, order.BuyerStoreID); err != nil {
		t.Fatalf("ExpireNoOffers: %v", err)
	}
	if f.repo.orders[order.ID].Status != enums.OrderStatusBiddingExpiredNoOffers {
		t.Fatalf("order status %s", f.repo.orders[order.ID].Status)
	}
	if actions := f.audits.actions(); len(actions) != 1 || actions[0] != enums.AuditActionAutoSelectTimeout {
		t.Fatalf("expected auto-select-timeout audit, got %v", actions)
	}
}

func TestExpireNoOffersWindowStillOpen(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(time.Minute))
	f.repo.orders[order.ID] = order

	err := f.svc.ExpireNoOffers(context.Background(), order.ID, order.BuyerStoreID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state-conflict, got %v", err)
	}
}

func TestExpireNoOffersWithPendingOffers(t *testing.T) {
	f := newBiddingFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.freeze(t, now)

	order := openOrder(uuid.New(), "1000.00", now.Add(-time.Minute))
	f.repo.orders[order.ID] = order
	f.repo.offers = append(f.repo.offers, pendingOffer(order.ID, uuid.New(), "900.00", "4 hours", true, now.Add(-10*time.Minute)))

	err := f.svc.ExpireNoOffers(context.Background(), order.ID, order.BuyerStoreID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state-conflict, got %v", err)
	}
}
