package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/usecase"
)

const ctxKeyAccessInfo ctxKey = "subscription_access"

// RequireSubscription gates protected content behind a live subscription.
// A denied check answers 403 with a machine-readable reason; on success the
// access info is attached to the request context for downstream handlers.
// Mount it after requireAuth, it reads the authenticated user id.
func (s *Server) RequireSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.subUC.Check(r.Context(), userIDFrom(r))
		if err != nil {
			reason := ""
			switch {
			case errors.Is(err, domain.ErrNoSubscription):
				reason = "no_subscription"
			case errors.Is(err, domain.ErrSubscriptionExpired):
				reason = "expired"
			case errors.Is(err, domain.ErrSubscriptionNotActive):
				reason = "not_active"
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "User not found", http.StatusNotFound)
				return
			default:
				s.log.Error().Err(err).Msg("subscription gate check failed")
				http.Error(w, "Failed to check subscription", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(accessResponse{Access: false, Reason: reason})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAccessInfo, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessInfoFrom returns the access info the gate attached, if any.
func AccessInfoFrom(r *http.Request) *usecase.AccessInfo {
	info, _ := r.Context().Value(ctxKeyAccessInfo).(*usecase.AccessInfo)
	return info
}
