package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"  // session created; awaiting gateway callback
	TransactionStatusApproved TransactionStatus = "APPROVED" // gateway answered with response code "00"
	TransactionStatusFailed   TransactionStatus = "FAILED"   // any other response code
)

// Transaction records one gateway payment attempt, either the interactive
// first charge (CIT) or a scheduled renewal charge (MIT). The merchant payment
// id is generated on our side and is the join key between session creation and
// the gateway callback.
type Transaction struct {
	ID                string  // UUID
	UserID            *string // nil until guest checkout resolves a user
	CourseID          string  // course the payment grants access to
	MerchantPaymentID string  // unique, caller generated (ORDER_... / RENEW_...)
	SessionToken      string  // gateway hosted-payment-page session token (CIT only)
	Amount            float64
	Currency          string // "RSD"
	Status            TransactionStatus
	ResponseCode      string
	ResponseMsg       string
	PGTranID          *string // gateway transaction id, set by callback
	PGOrderID         *string
	PGTranApprCode    *string
	RawContext        map[string]any // opaque context blob, see MergeContext
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MergeContext merges a callback payload into the context stored at session
// creation. Callback fields win, but customer email/name and the package
// descriptor captured at checkout must survive if the callback does not carry
// them: guest user creation reads them from the merged blob.
func MergeContext(original, callback map[string]any) map[string]any {
	merged := make(map[string]any, len(original)+len(callback))
	for k, v := range original {
		merged[k] = v
	}
	for k, v := range callback {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}
