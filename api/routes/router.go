package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bidfinderz-backend/api/controllers"
	"github.com/angelmondragon/bidfinderz-backend/api/middleware"
	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/bidding"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	biddingService bidding.Service,
	creditService credit.Service,
	auditService audit.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.StoreContext(logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Post("/broadcast", controllers.BroadcastOrder(biddingService, logg))
			r.Get("/offers", controllers.ListOffers(biddingService, logg))
			r.Post("/offers", controllers.SubmitOffer(biddingService, logg))
			r.Post("/select", controllers.SelectWinner(biddingService, logg))
			r.Get("/audit", controllers.OrderAuditTrail(auditService, logg))
		})

		r.Route("/credit", func(r chi.Router) {
			r.Post("/accounts", controllers.OpenCreditAccount(creditService, logg))
			r.Post("/accounts/{accountID}/block", controllers.BlockCreditAccount(creditService, logg))
			r.Post("/accounts/{accountID}/unblock", controllers.UnblockCreditAccount(creditService, logg))
			r.Get("/balance", controllers.CreditBalance(creditService, logg))
			r.Get("/ledger", controllers.LedgerHistory(creditService, logg))
			r.Post("/entries/{entryID}/release", controllers.ReleaseDebit(creditService, logg))
			r.Post("/verify", controllers.VerifyBalance(creditService, logg))
		})
	})

	return r
}
