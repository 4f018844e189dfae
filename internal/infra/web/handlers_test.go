//go:build !integration

package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/config"
	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/usecase"
)

const testJWTSecret = "test-secret"

type stubCheckoutUC struct {
	createRes *usecase.CreateSessionResult
	createErr error
	lastInput usecase.CreateSessionInput
}

func (s *stubCheckoutUC) CreateSession(ctx context.Context, in usecase.CreateSessionInput) (*usecase.CreateSessionResult, error) {
	s.lastInput = in
	return s.createRes, s.createErr
}

func (s *stubCheckoutUC) Status(ctx context.Context, mpid string) (*usecase.TransactionSnapshot, error) {
	return nil, domain.ErrNotFound
}

type stubReconcileUC struct {
	result    *usecase.CallbackResult
	lastInput usecase.CallbackInput
}

func (s *stubReconcileUC) ProcessCallback(ctx context.Context, in usecase.CallbackInput) *usecase.CallbackResult {
	s.lastInput = in
	return s.result
}

type stubSubscriptionUC struct {
	checkInfo *usecase.AccessInfo
	checkErr  error
}

func (s *stubSubscriptionUC) Check(ctx context.Context, userID string) (*usecase.AccessInfo, error) {
	return s.checkInfo, s.checkErr
}

func (s *stubSubscriptionUC) Details(ctx context.Context, userID string) (*usecase.SubscriptionDetails, error) {
	return &usecase.SubscriptionDetails{Status: model.SubscriptionStatusActive}, nil
}

func (s *stubSubscriptionUC) Cancel(ctx context.Context, userID string) error     { return nil }
func (s *stubSubscriptionUC) Reactivate(ctx context.Context, userID string) error { return nil }

func (s *stubSubscriptionUC) ExpireOverdue(ctx context.Context, w time.Duration) (int, []*model.User, error) {
	return 0, nil, nil
}

func newTestServer(checkout *stubCheckoutUC, reconcile *stubReconcileUC, sub *stubSubscriptionUC) *Server {
	logger := zerolog.New(io.Discard)
	return NewServer(checkout, reconcile, sub, nil, config.FrontendConfig{
		SuccessURL: "https://front.example.com/uspesno",
		ResultURL:  "https://front.example.com/rezultat",
	}, testJWTSecret, &logger)
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestCallbackRedirects(t *testing.T) {
	t.Run("approved callback redirects to success page", func(t *testing.T) {
		reconcile := &stubReconcileUC{result: &usecase.CallbackResult{
			Outcome:           usecase.CallbackApproved,
			MerchantPaymentID: "ORDER_1_1",
		}}
		srv := newTestServer(&stubCheckoutUC{}, reconcile, &stubSubscriptionUC{})

		form := url.Values{
			"merchantPaymentId":  {"ORDER_1_1"},
			"responseCode":       {"00"},
			"cardToken":          {"ct-1"},
			"bankResponseExtras": {url.QueryEscape(`{"TRACEID":"tr-1"}`)},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/msu/callback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		loc := rec.Header().Get("Location")
		if !strings.HasPrefix(loc, "https://front.example.com/uspesno?") || !strings.Contains(loc, "ORDER_1_1") {
			t.Errorf("unexpected redirect %q", loc)
		}
		if reconcile.lastInput.TraceID != "tr-1" {
			t.Errorf("trace id not extracted, got %q", reconcile.lastInput.TraceID)
		}
		if reconcile.lastInput.CardToken != "ct-1" {
			t.Errorf("card token not forwarded, got %q", reconcile.lastInput.CardToken)
		}
	})

	t.Run("query parameters work for GET delivery", func(t *testing.T) {
		reconcile := &stubReconcileUC{result: &usecase.CallbackResult{
			Outcome:           usecase.CallbackFailed,
			MerchantPaymentID: "ORDER_2_1",
			Message:           "Kartica odbijena",
		}}
		srv := newTestServer(&stubCheckoutUC{}, reconcile, &stubSubscriptionUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/msu/callback?merchantPaymentId=ORDER_2_1&responseCode=99&responseMsg=Kartica+odbijena", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		loc, _ := url.Parse(rec.Header().Get("Location"))
		if loc.Query().Get("status") != "failed" || loc.Query().Get("message") == "" {
			t.Errorf("unexpected redirect %q", rec.Header().Get("Location"))
		}
		if reconcile.lastInput.MerchantPaymentID != "ORDER_2_1" {
			t.Errorf("merchant payment id not read from query, got %q", reconcile.lastInput.MerchantPaymentID)
		}
	})

	t.Run("error outcome carries the error code", func(t *testing.T) {
		reconcile := &stubReconcileUC{result: &usecase.CallbackResult{
			Outcome: usecase.CallbackError,
			ErrCode: usecase.ErrCodeMissingPaymentID,
		}}
		srv := newTestServer(&stubCheckoutUC{}, reconcile, &stubSubscriptionUC{})

		req := httptest.NewRequest(http.MethodGet, "/api/msu/callback", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		loc, _ := url.Parse(rec.Header().Get("Location"))
		if loc.Query().Get("error") != "missing_payment_id" {
			t.Errorf("unexpected redirect %q", rec.Header().Get("Location"))
		}
	})
}

func TestCreateSessionEndpoint(t *testing.T) {
	t.Run("guest checkout", func(t *testing.T) {
		checkout := &stubCheckoutUC{createRes: &usecase.CreateSessionResult{
			RedirectURL:       "https://hpp.example.com/?sessionToken=tok",
			MerchantPaymentID: "ORDER_3_1",
		}}
		srv := newTestServer(checkout, &stubReconcileUC{}, &stubSubscriptionUC{})

		body := `{"courseId":"1","customerEmail":"a@b.c","customerName":"A B"}`
		req := httptest.NewRequest(http.MethodPost, "/api/msu/create-session", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if checkout.lastInput.UserID != "" {
			t.Error("guest checkout must not carry a user id")
		}
		if !strings.Contains(rec.Body.String(), "ORDER_3_1") {
			t.Errorf("response missing merchant payment id: %s", rec.Body.String())
		}
	})

	t.Run("bearer token binds the account", func(t *testing.T) {
		checkout := &stubCheckoutUC{createRes: &usecase.CreateSessionResult{MerchantPaymentID: "ORDER_4_1"}}
		srv := newTestServer(checkout, &stubReconcileUC{}, &stubSubscriptionUC{})

		body := `{"courseId":"1","customerEmail":"a@b.c","customerName":"A"}`
		req := httptest.NewRequest(http.MethodPost, "/api/msu/create-session", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-77"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if checkout.lastInput.UserID != "user-77" {
			t.Errorf("expected token subject as user id, got %q", checkout.lastInput.UserID)
		}
	})

	t.Run("validation failure maps to 400", func(t *testing.T) {
		checkout := &stubCheckoutUC{createErr: domain.ErrInvalidArgument}
		srv := newTestServer(checkout, &stubReconcileUC{}, &stubSubscriptionUC{})

		req := httptest.NewRequest(http.MethodPost, "/api/msu/create-session", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestSubscriptionEndpointsAuth(t *testing.T) {
	srv := newTestServer(&stubCheckoutUC{}, &stubReconcileUC{}, &stubSubscriptionUC{
		checkInfo: &usecase.AccessInfo{Status: model.SubscriptionStatusActive, ExpiresAt: time.Now().AddDate(0, 1, 0), DaysRemaining: 30},
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"})
		signed, _ := tok.SignedString([]byte("wrong-secret"))
		req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid token grants access info", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"access":true`) {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})
}

func TestSubscriptionGate(t *testing.T) {
	t.Run("grants and attaches access info", func(t *testing.T) {
		srv := newTestServer(&stubCheckoutUC{}, &stubReconcileUC{}, &stubSubscriptionUC{
			checkInfo: &usecase.AccessInfo{Status: model.SubscriptionStatusActive, ExpiresAt: time.Now().AddDate(0, 1, 0), DaysRemaining: 30},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/content/access", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"daysRemaining":30`) {
			t.Errorf("gate did not attach access info: %s", rec.Body.String())
		}
	})

	t.Run("blocks an expired subscription with 403", func(t *testing.T) {
		srv := newTestServer(&stubCheckoutUC{}, &stubReconcileUC{}, &stubSubscriptionUC{checkErr: domain.ErrSubscriptionExpired})
		req := httptest.NewRequest(http.MethodGet, "/api/content/access", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "expired") {
			t.Errorf("missing denial reason: %s", rec.Body.String())
		}
	})
}

func TestSubscriptionStatusDenials(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"no subscription", domain.ErrNoSubscription, "no_subscription"},
		{"expired", domain.ErrSubscriptionExpired, "expired"},
		{"payment failed", domain.ErrSubscriptionNotActive, "not_active"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubCheckoutUC{}, &stubReconcileUC{}, &stubSubscriptionUC{checkErr: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/api/subscription/status", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1"))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200 with access false, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.reason) {
				t.Errorf("expected reason %q in body %s", tc.reason, rec.Body.String())
			}
		})
	}
}
