package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/repository"
	"motion-akademija-billing/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// AccessInfo is returned when the gate lets a user through.
type AccessInfo struct {
	Status        model.SubscriptionStatus
	ExpiresAt     time.Time
	DaysRemaining int
}

// SubscriptionDetails is the account-page view of a subscription.
type SubscriptionDetails struct {
	Status        model.SubscriptionStatus
	ExpiresAt     *time.Time
	AutoRenewal   bool
	NextBillingAt *time.Time
	Amount        float64
	Currency      string
}

type SubscriptionUseCase interface {
	// Check decides whether the user may access paid content right now.
	// A stored active status past its expiry is flipped to expired on read.
	Check(ctx context.Context, userID string) (*AccessInfo, error)
	Details(ctx context.Context, userID string) (*SubscriptionDetails, error)
	// Cancel deactivates the active mandate. Access continues until the
	// already-paid period runs out.
	Cancel(ctx context.Context, userID string) error
	// Reactivate re-enables the most recent inactive mandate without
	// charging; the next scheduled billing resumes from its stored date.
	Reactivate(ctx context.Context, userID string) error
	// ExpireOverdue bulk-flips lapsed subscriptions and reports users whose
	// access ends within the warning window.
	ExpireOverdue(ctx context.Context, warnWindow time.Duration) (expired int, expiring []*model.User, err error)
}

type subscriptionUC struct {
	users    repository.UserRepository
	mandates repository.MandateRepository
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	users repository.UserRepository,
	mandates repository.MandateRepository,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{users: users, mandates: mandates, log: &l}
}

func (u *subscriptionUC) Check(ctx context.Context, userID string) (*AccessInfo, error) {
	user, err := u.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user.SubscriptionExpiresAt == nil {
		metrics.IncAccessCheck("denied")
		return nil, domain.ErrNoSubscription
	}

	now := time.Now()
	if now.After(*user.SubscriptionExpiresAt) {
		if user.SubscriptionStatus != model.SubscriptionStatusExpired {
			if err := u.users.UpdateSubscriptionStatus(ctx, nil, userID, model.SubscriptionStatusExpired); err != nil {
				u.log.Warn().Err(err).Str("user_id", userID).Msg("lazy expiry flip failed")
			}
		}
		metrics.IncAccessCheck("denied")
		return nil, domain.ErrSubscriptionExpired
	}

	switch user.SubscriptionStatus {
	case model.SubscriptionStatusActive, model.SubscriptionStatusCancelled:
		// cancelled keeps access until the paid period ends
	default:
		metrics.IncAccessCheck("denied")
		return nil, domain.ErrSubscriptionNotActive
	}

	metrics.IncAccessCheck("granted")
	return &AccessInfo{
		Status:        user.SubscriptionStatus,
		ExpiresAt:     *user.SubscriptionExpiresAt,
		DaysRemaining: int(math.Ceil(time.Until(*user.SubscriptionExpiresAt).Hours() / 24)),
	}, nil
}

func (u *subscriptionUC) Details(ctx context.Context, userID string) (*SubscriptionDetails, error) {
	user, err := u.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	d := &SubscriptionDetails{
		Status:    user.SubscriptionStatus,
		ExpiresAt: user.SubscriptionExpiresAt,
	}
	m, err := u.mandates.FindActiveByUser(ctx, nil, userID)
	switch {
	case err == nil:
		d.AutoRenewal = true
		next := m.NextBillingAt
		d.NextBillingAt = &next
		d.Amount = m.Amount
		d.Currency = m.Currency
	case errors.Is(err, domain.ErrNotFound):
		// no auto renewal
	default:
		return nil, err
	}
	return d, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID string) error {
	m, err := u.mandates.FindActiveByUser(ctx, nil, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNoActiveMandate
	}
	if err != nil {
		return err
	}
	if err := u.mandates.SetActive(ctx, nil, m.ID, false); err != nil {
		return err
	}
	if err := u.users.UpdateSubscriptionStatus(ctx, nil, userID, model.SubscriptionStatusCancelled); err != nil {
		return err
	}
	metrics.IncMandateDeactivated("cancelled")
	u.log.Info().Str("user_id", userID).Str("mandate_id", m.ID).Msg("subscription cancelled")
	return nil
}

func (u *subscriptionUC) Reactivate(ctx context.Context, userID string) error {
	if _, err := u.mandates.FindActiveByUser(ctx, nil, userID); err == nil {
		return domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	m, err := u.mandates.FindLatestInactiveByUser(ctx, nil, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNoInactiveMandate
	}
	if err != nil {
		return err
	}
	if err := u.mandates.SetActive(ctx, nil, m.ID, true); err != nil {
		return err
	}
	if err := u.users.UpdateSubscriptionStatus(ctx, nil, userID, model.SubscriptionStatusActive); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Str("mandate_id", m.ID).Msg("subscription reactivated")
	return nil
}

func (u *subscriptionUC) ExpireOverdue(ctx context.Context, warnWindow time.Duration) (int, []*model.User, error) {
	now := time.Now()
	expired, err := u.users.ExpireOverdue(ctx, nil, now)
	if err != nil {
		return 0, nil, err
	}
	if expired > 0 {
		metrics.IncSubscriptionsExpired(expired)
	}
	expiring, err := u.users.ListExpiringWithin(ctx, nil, now, warnWindow)
	if err != nil {
		return expired, nil, err
	}
	return expired, expiring, nil
}
