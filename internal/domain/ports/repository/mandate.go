package repository

import (
	"context"
	"time"

	"motion-akademija-billing/internal/domain/model"
)

// -----------------------------
// Recurring mandates
// -----------------------------

type MandateRepository interface {
	Save(ctx context.Context, tx Tx, m *model.RecurringMandate) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.RecurringMandate, error)
	// FindActiveByUser returns the user's active mandate or domain.ErrNotFound.
	// At most one active mandate per user is an application-level check, not a
	// storage constraint.
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.RecurringMandate, error)
	FindLatestInactiveByUser(ctx context.Context, tx Tx, userID string) (*model.RecurringMandate, error)
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.RecurringMandate, error)
	// ListDue returns active mandates with next_billing_at <= now, earliest
	// due first. The renewal scheduler relies on that ordering.
	ListDue(ctx context.Context, tx Tx, now time.Time) ([]*model.RecurringMandate, error)
	// AdvanceBilling records a successful charge: last billing now, next
	// billing at the given time.
	AdvanceBilling(ctx context.Context, tx Tx, id string, nextBillingAt time.Time) error
	SetActive(ctx context.Context, tx Tx, id string, active bool) error
}

// -----------------------------
// Purchases / courses
// -----------------------------

type PurchaseRepository interface {
	// Save inserts the purchase association; inserting a duplicate
	// (user, course) pair returns nil without touching the row.
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
}

type CourseRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Course, error)
}
