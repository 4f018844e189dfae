package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/infra/adapters/payment"
	"motion-akademija-billing/internal/infra/logging"
	"motion-akademija-billing/internal/infra/redis"
	"motion-akademija-billing/internal/usecase"
)

type createSessionRequest struct {
	CourseID      string          `json:"courseId"`
	Package       *packagePayload `json:"package"`
	CustomerEmail string          `json:"customerEmail"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone"`
}

type packagePayload struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

func (s *Server) createSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		in := usecase.CreateSessionInput{
			CourseID:      req.CourseID,
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
		}
		// A valid bearer token binds the checkout to the account up front;
		// without one it runs as a guest checkout.
		if userID, err := s.userIDFromToken(r); err == nil {
			in.UserID = userID
		}
		if req.Package != nil {
			in.Package = &model.PackageDescriptor{
				ID:          req.Package.ID,
				Code:        req.Package.Code,
				Name:        req.Package.Name,
				Amount:      req.Package.Amount,
				Description: req.Package.Description,
			}
		}

		res, err := s.checkoutUC.CreateSession(r.Context(), in)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, "courseId or package plus customerEmail and customerName are required", http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Course not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrGatewayDeclined):
				http.Error(w, "Payment session rejected by gateway", http.StatusBadGateway)
			default:
				s.log.Error().Err(err).Msg("create session failed")
				http.Error(w, "Failed to create payment session", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			RedirectURL       string `json:"redirectUrl"`
			MerchantPaymentID string `json:"merchantPaymentId"`
		}{
			RedirectURL:       res.RedirectURL,
			MerchantPaymentID: res.MerchantPaymentID,
		})
	}
}

// callbackHandler normalizes the gateway callback and redirects the browser
// to the frontend result page. Query and form parameters are merged because
// the gateway mixes both depending on delivery mode.
func (s *Server) callbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Malformed callback", http.StatusBadRequest)
			return
		}

		raw := make(map[string]any, len(r.Form))
		for k := range r.Form {
			raw[k] = r.Form.Get(k)
		}

		in := usecase.CallbackInput{
			MerchantPaymentID: r.Form.Get("merchantPaymentId"),
			SessionToken:      r.Form.Get("sessionToken"),
			ResponseCode:      r.Form.Get("responseCode"),
			ResponseMsg:       r.Form.Get("responseMsg"),
			PGTranID:          r.Form.Get("pgTranId"),
			PGOrderID:         r.Form.Get("pgOrderId"),
			PGTranApprCode:    r.Form.Get("pgTranApprCode"),
			CardToken:         r.Form.Get("cardToken"),
			TraceID:           payment.ExtractTraceID(r.Form.Get("bankResponseExtras")),
			Raw:               raw,
		}

		ctx := r.Context()
		if in.MerchantPaymentID != "" {
			ctx = logging.WithMerchantPaymentID(ctx, in.MerchantPaymentID)
		}
		result := s.reconcileUC.ProcessCallback(ctx, in)
		http.Redirect(w, r, s.redirectFor(result), http.StatusFound)
	}
}

func (s *Server) redirectFor(res *usecase.CallbackResult) string {
	switch res.Outcome {
	case usecase.CallbackApproved:
		q := url.Values{"merchantPaymentId": {res.MerchantPaymentID}}
		return s.frontend.SuccessURL + "?" + q.Encode()
	case usecase.CallbackFailed:
		q := url.Values{"status": {"failed"}}
		if res.Message != "" {
			q.Set("message", res.Message)
		}
		if res.MerchantPaymentID != "" {
			q.Set("merchantPaymentId", res.MerchantPaymentID)
		}
		return s.frontend.ResultURL + "?" + q.Encode()
	default:
		q := url.Values{"error": {res.ErrCode}}
		return s.frontend.ResultURL + "?" + q.Encode()
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mpid := chi.URLParam(r, "merchantPaymentId")
		if mpid == "" {
			http.Error(w, "merchantPaymentId is required", http.StatusBadRequest)
			return
		}

		allowed, err := s.limiter.Allow(r.Context(), redis.StatusPollKey(mpid), statusPollLimit, statusPollWindow)
		if err != nil {
			// Redis being down must not break result pages.
			s.log.Warn().Err(err).Msg("status rate limiter unavailable")
		} else if !allowed {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		snap, err := s.checkoutUC.Status(r.Context(), mpid)
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("status lookup failed")
			http.Error(w, "Failed to look up transaction", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			MerchantPaymentID string    `json:"merchantPaymentId"`
			Status            string    `json:"status"`
			Amount            float64   `json:"amount"`
			Currency          string    `json:"currency"`
			CourseName        string    `json:"courseName,omitempty"`
			ResponseCode      string    `json:"responseCode"`
			ResponseMsg       string    `json:"responseMsg"`
			CreatedAt         time.Time `json:"createdAt"`
			UpdatedAt         time.Time `json:"updatedAt"`
		}{
			MerchantPaymentID: snap.MerchantPaymentID,
			Status:            string(snap.Status),
			Amount:            snap.Amount,
			Currency:          snap.Currency,
			CourseName:        snap.CourseName,
			ResponseCode:      snap.ResponseCode,
			ResponseMsg:       snap.ResponseMsg,
			CreatedAt:         snap.CreatedAt,
			UpdatedAt:         snap.UpdatedAt,
		})
	}
}

type accessResponse struct {
	Access        bool       `json:"access"`
	Status        string     `json:"status,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	DaysRemaining int        `json:"daysRemaining,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// contentAccessHandler reports what the gate already decided; reaching it at
// all means access was granted.
func (s *Server) contentAccessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := AccessInfoFrom(r)
		if info == nil {
			http.Error(w, "Failed to check subscription", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(accessResponse{
			Access:        true,
			Status:        string(info.Status),
			ExpiresAt:     &info.ExpiresAt,
			DaysRemaining: info.DaysRemaining,
		})
	}
}

func (s *Server) subscriptionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.subUC.Check(r.Context(), userIDFrom(r))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case err == nil:
			json.NewEncoder(w).Encode(accessResponse{
				Access:        true,
				Status:        string(info.Status),
				ExpiresAt:     &info.ExpiresAt,
				DaysRemaining: info.DaysRemaining,
			})
		case errors.Is(err, domain.ErrNoSubscription):
			json.NewEncoder(w).Encode(accessResponse{Access: false, Reason: "no_subscription"})
		case errors.Is(err, domain.ErrSubscriptionExpired):
			json.NewEncoder(w).Encode(accessResponse{Access: false, Reason: "expired"})
		case errors.Is(err, domain.ErrSubscriptionNotActive):
			json.NewEncoder(w).Encode(accessResponse{Access: false, Reason: "not_active"})
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			s.log.Error().Err(err).Msg("access check failed")
			http.Error(w, "Failed to check subscription", http.StatusInternalServerError)
		}
	}
}

func (s *Server) subscriptionDetailsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.subUC.Details(r.Context(), userIDFrom(r))
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("subscription details failed")
			http.Error(w, "Failed to load subscription", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Status        string     `json:"status"`
			ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
			AutoRenewal   bool       `json:"autoRenewal"`
			NextBillingAt *time.Time `json:"nextBillingAt,omitempty"`
			Amount        float64    `json:"amount,omitempty"`
			Currency      string     `json:"currency,omitempty"`
		}{
			Status:        string(d.Status),
			ExpiresAt:     d.ExpiresAt,
			AutoRenewal:   d.AutoRenewal,
			NextBillingAt: d.NextBillingAt,
			Amount:        d.Amount,
			Currency:      d.Currency,
		})
	}
}

func (s *Server) cancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.subUC.Cancel(r.Context(), userIDFrom(r))
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
		case errors.Is(err, domain.ErrNoActiveMandate):
			http.Error(w, "No active auto renewal to cancel", http.StatusNotFound)
		default:
			s.log.Error().Err(err).Msg("cancel failed")
			http.Error(w, "Failed to cancel subscription", http.StatusInternalServerError)
		}
	}
}

func (s *Server) reactivateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.subUC.Reactivate(r.Context(), userIDFrom(r))
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "active"})
		case errors.Is(err, domain.ErrAlreadyExists):
			http.Error(w, "Auto renewal is already active", http.StatusConflict)
		case errors.Is(err, domain.ErrNoInactiveMandate):
			http.Error(w, "No saved card to reactivate", http.StatusNotFound)
		default:
			s.log.Error().Err(err).Msg("reactivate failed")
			http.Error(w, "Failed to reactivate subscription", http.StatusInternalServerError)
		}
	}
}
