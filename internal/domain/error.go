package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound              = errors.New("entity not found")
	ErrAlreadyExists         = errors.New("entity already exists")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrOperationFailed       = errors.New("operation failed")
	ErrInvalidExecContext    = errors.New("invalid execution context")
	ErrReadDatabaseRow       = errors.New("failed to read database row")
	ErrNoSubscription        = errors.New("no subscription")
	ErrSubscriptionExpired   = errors.New("subscription has expired")
	ErrSubscriptionNotActive = errors.New("subscription not active")
	ErrNoActiveMandate       = errors.New("no active recurring mandate")
	ErrNoInactiveMandate     = errors.New("no inactive recurring mandate")
	ErrGatewayDeclined       = errors.New("payment gateway declined")
)
