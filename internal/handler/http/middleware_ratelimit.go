package http

import (
	"net/http"
	"strconv"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/utils"
)

// withRateLimit admits or rejects the request through the per-user limiter.
// Rejections answer 429 with a Retry-After header. It must run after
// [Handler.auth]. Limiter backend errors fail open: a broken Redis must not
// take the migration surface down with it.
func (h *Handler) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromRequest(r)

		userID, ok := utils.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		result, err := h.limiter.Allow(r.Context(), userID)
		if err != nil {
			log.Err(err).
				Int64("user_id", userID).
				Msg("rate limiter unavailable, admitting request")
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			log.Warn().
				Int64("user_id", userID).
				Dur("retry_after", result.RetryAfter).
				Msg("rate limit exceeded")

			seconds := int(result.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
