package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"motion-akademija-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusNone          SubscriptionStatus = "none"
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
	SubscriptionStatusPaymentFailed SubscriptionStatus = "payment_failed"
)

// User carries the subscription fields the billing core mutates. Users are
// created through registration or implicitly by the callback reconciler when a
// guest checkout approves.
type User struct {
	ID                    string // UUID
	FirstName             string
	LastName              string
	Email                 string
	PasswordHash          string
	Role                  string
	SubscriptionExpiresAt *time.Time
	SubscriptionStatus    SubscriptionStatus
	CreatedAt             time.Time
}

// NewGuestUser builds a user row for a guest checkout. The customer name is
// split on the first whitespace run; a single token doubles as the last name.
func NewGuestUser(email, customerName, passwordHash string) (*User, error) {
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	first, last := SplitCustomerName(customerName)
	return &User{
		ID:                 uuid.NewString(),
		FirstName:          first,
		LastName:           last,
		Email:              email,
		PasswordHash:       passwordHash,
		Role:               "customer",
		SubscriptionStatus: SubscriptionStatusNone,
		CreatedAt:          time.Now(),
	}, nil
}

func SplitCustomerName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "Korisnik", "Korisnik"
	case 1:
		return fields[0], fields[0]
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
