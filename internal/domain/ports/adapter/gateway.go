package adapter

import "context"

// OrderItem is one line of the order sent to the gateway's hosted page.
type OrderItem struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Amount      float64 `json:"amount"`
}

// CITSessionRequest describes the customer-initiated first charge, where the
// card is saved for later merchant-initiated billing.
type CITSessionRequest struct {
	CustomerID        string
	CustomerEmail     string
	CustomerName      string
	CustomerPhone     string
	MerchantPaymentID string
	Amount            float64
	OrderItems        []OrderItem
	ReturnURL         string
}

// SessionResponse is the gateway's answer to a session-token request.
// ResponseCode "00" is the sole success sentinel.
type SessionResponse struct {
	ResponseCode string `json:"responseCode"`
	ResponseMsg  string `json:"responseMsg"`
	SessionToken string `json:"sessionToken"`
}

// MITSaleRequest is a scheduled, non-interactive charge against a saved card.
// TraceID is the gateway reference issued with the original CIT charge.
type MITSaleRequest struct {
	CustomerID        string
	MerchantPaymentID string
	Amount            float64
	CardToken         string
	TraceID           string
}

type MITSaleResponse struct {
	ResponseCode   string `json:"responseCode"`
	ResponseMsg    string `json:"responseMsg"`
	PGTranID       string `json:"pgTranId"`
	PGOrderID      string `json:"pgOrderId"`
	PGTranApprCode string `json:"pgTranApprCode"`
}

// Approved reports whether the gateway accepted the charge.
func (r MITSaleResponse) Approved() bool { return r.ResponseCode == "00" }

// PaymentGateway is the port for the MSU payment provider. The gateway is an
// opaque external HTTP API; only the session/sale contracts are modeled.
type PaymentGateway interface {
	Name() string
	CreateCITSession(ctx context.Context, req CITSessionRequest) (SessionResponse, error)
	ExecuteMITSale(ctx context.Context, req MITSaleRequest) (MITSaleResponse, error)
	// HostedPageURL maps a session token to the hosted-payment-page redirect.
	HostedPageURL(sessionToken string) string
}
