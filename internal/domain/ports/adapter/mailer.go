package adapter

import (
	"context"
	"time"
)

// Mailer delivers transactional mail. Every send is best-effort: callers log
// failures and never propagate them as request errors.
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, email, plaintextPassword, firstName string) error
	SendRenewalEmail(ctx context.Context, email, firstName string, newExpiry time.Time, amount float64) error
	SendPaymentFailedEmail(ctx context.Context, email, firstName string) error
}
