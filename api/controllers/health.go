package controllers

import (
	"net/http"

	"github.com/angelmondragon/bidfinderz-backend/api/responses"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BidFinderz-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when the backing stores answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BidFinderz-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if err := dbP.Ping(r.Context()); err != nil {
			logg.Error(r.Context(), "database ping failed", err)
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "up"
		}

		if err := redisP.Ping(r.Context()); err != nil {
			logg.Error(r.Context(), "redis ping failed", err)
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "up"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": checks,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
