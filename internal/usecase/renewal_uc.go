package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/adapter"
	"motion-akademija-billing/internal/domain/ports/repository"
	"motion-akademija-billing/internal/infra/metrics"
)

// Compile-time check
var _ RenewalUseCase = (*renewalUC)(nil)

// RenewalReport summarizes one scheduler run.
type RenewalReport struct {
	Due      int
	Charged  int
	Declined int
	Skipped  int
	Errors   int
}

// errMandateOrphaned marks a due mandate whose user row is gone. The mandate
// is left untouched for inspection and must not count as a charge.
var errMandateOrphaned = errors.New("mandate references missing user")

type RenewalUseCase interface {
	// RunDue charges every mandate whose billing date passed, earliest due
	// first, pausing between charges so the gateway is not hammered.
	RunDue(ctx context.Context) (*RenewalReport, error)
}

type renewalUC struct {
	tm           repository.TransactionManager
	transactions repository.TransactionRepository
	users        repository.UserRepository
	mandates     repository.MandateRepository
	gateway      adapter.PaymentGateway
	mailer       adapter.Mailer
	chargeDelay  time.Duration
	log          *zerolog.Logger
}

func NewRenewalUseCase(
	tm repository.TransactionManager,
	transactions repository.TransactionRepository,
	users repository.UserRepository,
	mandates repository.MandateRepository,
	gateway adapter.PaymentGateway,
	mailer adapter.Mailer,
	chargeDelay time.Duration,
	logger *zerolog.Logger,
) *renewalUC {
	l := logger.With().Str("component", "RenewalUC").Logger()
	return &renewalUC{
		tm:           tm,
		transactions: transactions,
		users:        users,
		mandates:     mandates,
		gateway:      gateway,
		mailer:       mailer,
		chargeDelay:  chargeDelay,
		log:          &l,
	}
}

func (u *renewalUC) RunDue(ctx context.Context) (*RenewalReport, error) {
	due, err := u.mandates.ListDue(ctx, nil, time.Now())
	if err != nil {
		return nil, err
	}
	report := &RenewalReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}
	u.log.Info().Int("due", len(due)).Msg("renewal run starting")

	for i, m := range due {
		if i > 0 && u.chargeDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(u.chargeDelay):
			}
		}
		switch err := u.chargeMandate(ctx, m); {
		case err == nil:
			report.Charged++
			metrics.IncRenewal("charged")
		case errors.Is(err, errMandateOrphaned):
			report.Skipped++
			metrics.IncRenewal("skipped")
		case errors.Is(err, domain.ErrGatewayDeclined):
			report.Declined++
			metrics.IncRenewal("declined")
		default:
			report.Errors++
			metrics.IncRenewal("error")
			u.log.Error().Err(err).Str("mandate_id", m.ID).Msg("renewal charge failed")
		}
	}

	u.log.Info().
		Int("charged", report.Charged).
		Int("declined", report.Declined).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Msg("renewal run finished")
	return report, nil
}

func (u *renewalUC) chargeMandate(ctx context.Context, m *model.RecurringMandate) error {
	user, err := u.users.FindByID(ctx, nil, m.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		// Orphaned mandate. Leave it alone so an operator can inspect it.
		u.log.Warn().Str("mandate_id", m.ID).Str("user_id", m.UserID).Msg("mandate references missing user, skipping")
		return errMandateOrphaned
	}
	if err != nil {
		return err
	}

	merchantPaymentID := fmt.Sprintf("RENEW_%d_%s_%s", time.Now().UnixMilli(), shortID(user.ID), shortID(m.ID))
	log := u.log.With().
		Str("mandate_id", m.ID).
		Str("user_id", user.ID).
		Str("merchant_payment_id", merchantPaymentID).
		Logger()

	resp, err := u.gateway.ExecuteMITSale(ctx, adapter.MITSaleRequest{
		CustomerID:        user.Email,
		MerchantPaymentID: merchantPaymentID,
		Amount:            m.Amount,
		CardToken:         m.CardToken,
		TraceID:           m.TraceID,
	})
	if err != nil {
		// Gateway unreachable or malformed answer. Deactivate rather than
		// retry so the card is not charged twice for one period.
		log.Error().Err(err).Msg("mit sale errored, deactivating mandate")
		u.deactivateAfterFailure(ctx, m, user, "gateway_error")
		return err
	}

	if !resp.Approved() {
		log.Info().
			Str("response_code", resp.ResponseCode).
			Str("response_msg", resp.ResponseMsg).
			Msg("renewal declined")
		if err := u.recordDecline(ctx, m, user, merchantPaymentID, resp); err != nil {
			return err
		}
		u.notifyFailure(user)
		return domain.ErrGatewayDeclined
	}

	newExpiry, err := u.recordCharge(ctx, m, user, merchantPaymentID, resp)
	if err != nil {
		return err
	}
	log.Info().Time("new_expiry", newExpiry).Msg("subscription renewed")

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := u.mailer.SendRenewalEmail(sendCtx, user.Email, user.FirstName, newExpiry, m.Amount); err != nil {
			u.log.Warn().Err(err).Str("user_id", user.ID).Msg("renewal email failed")
		}
	}()
	return nil
}

func (u *renewalUC) recordCharge(ctx context.Context, m *model.RecurringMandate, user *model.User, merchantPaymentID string, resp adapter.MITSaleResponse) (time.Time, error) {
	now := time.Now()
	newExpiry := now.AddDate(0, m.SubscriptionMonths, 0)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.transactions.Save(ctx, tx, mitTransaction(m, user, merchantPaymentID, resp, model.TransactionStatusApproved, now)); err != nil {
			return err
		}
		if err := u.users.UpdateSubscription(ctx, tx, user.ID, newExpiry, model.SubscriptionStatusActive); err != nil {
			return err
		}
		// Next billing advances by the mandate's month count from the new
		// expiry, not from now.
		return u.mandates.AdvanceBilling(ctx, tx, m.ID, newExpiry.AddDate(0, m.SubscriptionMonths, 0))
	})
	if err != nil {
		return time.Time{}, err
	}
	metrics.IncTransaction(string(model.TransactionStatusApproved), "mit")
	metrics.AddRevenue(m.Currency, m.Amount)
	return newExpiry, nil
}

func (u *renewalUC) recordDecline(ctx context.Context, m *model.RecurringMandate, user *model.User, merchantPaymentID string, resp adapter.MITSaleResponse) error {
	now := time.Now()
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.transactions.Save(ctx, tx, mitTransaction(m, user, merchantPaymentID, resp, model.TransactionStatusFailed, now)); err != nil {
			return err
		}
		if err := u.users.UpdateSubscriptionStatus(ctx, tx, user.ID, model.SubscriptionStatusPaymentFailed); err != nil {
			return err
		}
		return u.mandates.SetActive(ctx, tx, m.ID, false)
	})
	if err != nil {
		return err
	}
	metrics.IncTransaction(string(model.TransactionStatusFailed), "mit")
	metrics.IncMandateDeactivated("declined")
	return nil
}

// deactivateAfterFailure is the non-transactional fallback when the gateway
// call itself errored and there is no response to record.
func (u *renewalUC) deactivateAfterFailure(ctx context.Context, m *model.RecurringMandate, user *model.User, reason string) {
	if err := u.mandates.SetActive(ctx, nil, m.ID, false); err != nil {
		u.log.Error().Err(err).Str("mandate_id", m.ID).Msg("mandate deactivation failed")
	}
	if err := u.users.UpdateSubscriptionStatus(ctx, nil, user.ID, model.SubscriptionStatusPaymentFailed); err != nil {
		u.log.Error().Err(err).Str("user_id", user.ID).Msg("status update failed")
	}
	metrics.IncMandateDeactivated(reason)
	u.notifyFailure(user)
}

func (u *renewalUC) notifyFailure(user *model.User) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := u.mailer.SendPaymentFailedEmail(sendCtx, user.Email, user.FirstName); err != nil {
			u.log.Warn().Err(err).Str("user_id", user.ID).Msg("payment failed email failed")
		}
	}()
}

func mitTransaction(m *model.RecurringMandate, user *model.User, merchantPaymentID string, resp adapter.MITSaleResponse, status model.TransactionStatus, now time.Time) *model.Transaction {
	userID := user.ID
	t := &model.Transaction{
		ID:                uuid.NewString(),
		UserID:            &userID,
		CourseID:          m.CourseID,
		MerchantPaymentID: merchantPaymentID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            status,
		ResponseCode:      resp.ResponseCode,
		ResponseMsg:       resp.ResponseMsg,
		RawContext:        map[string]any{"kind": "renewal", "mandateId": m.ID},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if resp.PGTranID != "" {
		t.PGTranID = &resp.PGTranID
	}
	if resp.PGOrderID != "" {
		t.PGOrderID = &resp.PGOrderID
	}
	if resp.PGTranApprCode != "" {
		t.PGTranApprCode = &resp.PGTranApprCode
	}
	return t
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
