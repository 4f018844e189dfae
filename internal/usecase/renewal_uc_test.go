//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/adapter"
)

type renewalDeps struct {
	tm           *memTxManager
	transactions *memTransactionRepo
	users        *memUserRepo
	mandates     *memMandateRepo
	gateway      *mockGateway
	mailer       *mockMailer
}

func newRenewalDeps() *renewalDeps {
	return &renewalDeps{
		tm:           &memTxManager{},
		transactions: newMemTransactionRepo(),
		users:        newMemUserRepo(),
		mandates:     newMemMandateRepo(),
		gateway:      &mockGateway{},
		mailer:       &mockMailer{},
	}
}

func (d *renewalDeps) uc(delay time.Duration) RenewalUseCase {
	return NewRenewalUseCase(d.tm, d.transactions, d.users, d.mandates, d.gateway, d.mailer, delay, newTestLogger())
}

func dueMandate(d *renewalDeps, userID string, due time.Time) *model.RecurringMandate {
	m, _ := model.NewRecurringMandate(userID, "1", "token-"+userID, "trace-"+userID, 11900, "RSD", 1)
	m.NextBillingAt = due
	d.mandates.Save(context.Background(), nil, m)
	return m
}

func TestRenewal_SuccessfulCharge(t *testing.T) {
	ctx := context.Background()
	d := newRenewalDeps()
	d.users.Save(ctx, nil, &model.User{ID: "u-1", Email: "u1@e.c", FirstName: "U", SubscriptionStatus: model.SubscriptionStatusActive})
	m := dueMandate(d, "u-1", time.Now().Add(-time.Hour))
	d.gateway.saleResp = adapter.MITSaleResponse{ResponseCode: "00", PGTranID: "PG-R1"}

	report, err := d.uc(0).RunDue(ctx)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if report.Charged != 1 || report.Declined != 0 || report.Errors != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	user, _ := d.users.FindByID(ctx, nil, "u-1")
	if user.SubscriptionStatus != model.SubscriptionStatusActive {
		t.Errorf("expected active subscription, got %s", user.SubscriptionStatus)
	}
	wantExpiry := time.Now().AddDate(0, 1, 0)
	if diff := user.SubscriptionExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected expiry one month out, got %s", user.SubscriptionExpiresAt)
	}

	updated, _ := d.mandates.FindByID(ctx, nil, m.ID)
	wantNextBilling := user.SubscriptionExpiresAt.AddDate(0, 1, 0)
	if !updated.NextBillingAt.Equal(wantNextBilling) {
		t.Errorf("next billing must be one month past the new expiry %s, got %s", user.SubscriptionExpiresAt, updated.NextBillingAt)
	}
	if !updated.IsActive {
		t.Error("mandate must stay active after a successful charge")
	}

	if req := d.gateway.saleRequests[0]; !strings.HasPrefix(req.MerchantPaymentID, "RENEW_") {
		t.Errorf("renewal merchant payment id must start with RENEW_, got %s", req.MerchantPaymentID)
	}
	if !waitForMail(d.mailer, "renewal", 1) {
		t.Error("expected a renewal confirmation email")
	}
}

func TestRenewal_DeclineDeactivatesMandate(t *testing.T) {
	ctx := context.Background()
	d := newRenewalDeps()
	d.users.Save(ctx, nil, &model.User{ID: "u-2", Email: "u2@e.c", SubscriptionStatus: model.SubscriptionStatusActive})
	m := dueMandate(d, "u-2", time.Now().Add(-time.Hour))
	d.gateway.saleResp = adapter.MITSaleResponse{ResponseCode: "51", ResponseMsg: "Do not honor"}

	report, err := d.uc(0).RunDue(ctx)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if report.Declined != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	user, _ := d.users.FindByID(ctx, nil, "u-2")
	if user.SubscriptionStatus != model.SubscriptionStatusPaymentFailed {
		t.Errorf("expected payment_failed status, got %s", user.SubscriptionStatus)
	}
	updated, _ := d.mandates.FindByID(ctx, nil, m.ID)
	if updated.IsActive {
		t.Error("declined mandate must be deactivated, no retries")
	}
	if !waitForMail(d.mailer, "failed", 1) {
		t.Error("expected a payment failed email")
	}
}

func TestRenewal_GatewayErrorDeactivates(t *testing.T) {
	ctx := context.Background()
	d := newRenewalDeps()
	d.users.Save(ctx, nil, &model.User{ID: "u-3", Email: "u3@e.c", SubscriptionStatus: model.SubscriptionStatusActive})
	m := dueMandate(d, "u-3", time.Now().Add(-time.Hour))
	d.gateway.saleErr = errors.New("connection refused")

	report, err := d.uc(0).RunDue(ctx)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if report.Errors != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	updated, _ := d.mandates.FindByID(ctx, nil, m.ID)
	if updated.IsActive {
		t.Error("mandate must be deactivated when the charge attempt errors")
	}
	user, _ := d.users.FindByID(ctx, nil, "u-3")
	if user.SubscriptionStatus != model.SubscriptionStatusPaymentFailed {
		t.Errorf("expected payment_failed status, got %s", user.SubscriptionStatus)
	}
}

func TestRenewal_MissingUserSkipped(t *testing.T) {
	ctx := context.Background()
	d := newRenewalDeps()
	m := dueMandate(d, "ghost", time.Now().Add(-time.Hour))

	report, err := d.uc(0).RunDue(ctx)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if report.Charged != 0 || report.Declined != 0 || report.Errors != 0 {
		t.Fatalf("orphaned mandate must be a no-op, got %+v", report)
	}
	if report.Skipped != 1 {
		t.Errorf("expected one skipped mandate, got %+v", report)
	}
	updated, _ := d.mandates.FindByID(ctx, nil, m.ID)
	if !updated.IsActive {
		t.Error("orphaned mandate must stay untouched for inspection")
	}
	if len(d.gateway.saleRequests) != 0 {
		t.Error("no charge may be attempted for a missing user")
	}
}

func TestRenewal_EarliestDueFirst(t *testing.T) {
	ctx := context.Background()
	d := newRenewalDeps()
	d.users.Save(ctx, nil, &model.User{ID: "u-a", Email: "a@e.c", SubscriptionStatus: model.SubscriptionStatusActive})
	d.users.Save(ctx, nil, &model.User{ID: "u-b", Email: "b@e.c", SubscriptionStatus: model.SubscriptionStatusActive})
	dueMandate(d, "u-b", time.Now().Add(-time.Hour))
	dueMandate(d, "u-a", time.Now().Add(-48*time.Hour))
	d.gateway.saleResp = adapter.MITSaleResponse{ResponseCode: "00"}

	if _, err := d.uc(0).RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if len(d.gateway.saleRequests) != 2 {
		t.Fatalf("expected two charges, got %d", len(d.gateway.saleRequests))
	}
	if d.gateway.saleRequests[0].CardToken != "token-u-a" {
		t.Errorf("longest overdue mandate must be charged first, got %s", d.gateway.saleRequests[0].CardToken)
	}
}

func TestRenewal_NoDueMandates(t *testing.T) {
	d := newRenewalDeps()
	report, err := d.uc(0).RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if report.Due != 0 {
		t.Fatalf("expected empty run, got %+v", report)
	}
}
