package repository

import (
	"context"
	"time"

	"motion-akademija-billing/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	// UpdateSubscription sets both subscription fields in one statement.
	UpdateSubscription(ctx context.Context, tx Tx, userID string, expiresAt time.Time, status model.SubscriptionStatus) error
	UpdateSubscriptionStatus(ctx context.Context, tx Tx, userID string, status model.SubscriptionStatus) error
	// ExpireOverdue bulk-flips active users whose expiry passed; returns the
	// number of rows touched. Used by the daily cleanup worker.
	ExpireOverdue(ctx context.Context, tx Tx, now time.Time) (int, error)
	// ListExpiringWithin returns active users whose subscription ends inside
	// the window, for the cleanup worker's advance-warning report.
	ListExpiringWithin(ctx context.Context, tx Tx, now time.Time, window time.Duration) ([]*model.User, error)
}
