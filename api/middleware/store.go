package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidfinderz-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bidfinderz-backend/pkg/errors"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
)

// StoreIDHeader carries the acting store's identity. Identity is asserted
// by the gateway in front of this service; the header is trusted as-is.
const StoreIDHeader = "X-Store-ID"

// StoreContext requires a valid store identity header and attaches it to
// the request context and log fields.
func StoreContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(StoreIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "store identity header missing"))
				return
			}
			storeID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store identity header"))
				return
			}

			ctx := WithStoreID(r.Context(), storeID.String())
			if logg != nil {
				ctx = logg.WithStoreID(ctx, storeID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
