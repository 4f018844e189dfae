package model

import (
	"time"

	"github.com/google/uuid"

	"motion-akademija-billing/internal/domain"
)

// RecurringMandate is a stored card-on-file billing agreement: the tokenized
// card plus the gateway trace id needed to authorize merchant-initiated
// charges, and the monthly schedule. Mandates are never deleted, only flagged
// inactive.
type RecurringMandate struct {
	ID                 string // UUID
	UserID             string
	CourseID           string
	CardToken          string // stored encrypted at rest
	TraceID            string // gateway reference required for MIT charges
	Amount             float64
	Currency           string
	SubscriptionMonths int // months granted per successful charge
	IsActive           bool
	NextBillingAt      time.Time
	LastBillingAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewRecurringMandate creates an active monthly mandate whose first scheduled
// charge falls one subscription period from now.
func NewRecurringMandate(userID, courseID, cardToken, traceID string, amount float64, currency string, months int) (*RecurringMandate, error) {
	if userID == "" || cardToken == "" || traceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if months <= 0 {
		months = 1
	}
	now := time.Now()
	return &RecurringMandate{
		ID:                 uuid.NewString(),
		UserID:             userID,
		CourseID:           courseID,
		CardToken:          cardToken,
		TraceID:            traceID,
		Amount:             amount,
		Currency:           currency,
		SubscriptionMonths: months,
		IsActive:           true,
		NextBillingAt:      now.AddDate(0, months, 0),
		LastBillingAt:      &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
