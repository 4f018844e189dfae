package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"motion-akademija-billing/internal/config"
	"motion-akademija-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MSUGateway)(nil)

// MSUGateway implements adapter.PaymentGateway against the MSU
// (MerchantSafe Unipay) form-encoded API. All configuration is carried on the
// struct; nothing is read from the environment at call time.
type MSUGateway struct {
	apiURL       string
	hppURL       string
	merchant     string
	merchantUser string
	merchantPass string
	client       *http.Client
}

func NewMSUGateway(cfg config.MSUConfig) (*MSUGateway, error) {
	if cfg.APIURL == "" || cfg.HPPURL == "" {
		return nil, errors.New("msu api/hpp url empty")
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid msu api url: %w", err)
	}
	return &MSUGateway{
		apiURL:       cfg.APIURL,
		hppURL:       cfg.HPPURL,
		merchant:     cfg.MerchantName,
		merchantUser: cfg.MerchantUser,
		merchantPass: cfg.MerchantPassword,
		client:       &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *MSUGateway) Name() string { return "msu" }

// HostedPageURL maps a session token to the hosted-payment-page redirect.
func (g *MSUGateway) HostedPageURL(sessionToken string) string {
	return g.hppURL + sessionToken
}

// CreateCITSession requests a PAYMENTSESSION token for the customer-initiated
// first charge. The EXTRA block asks the gateway to save the card and mark the
// charge as the opening of a subscription, which is what later yields the
// card token and trace id on the callback.
func (g *MSUGateway) CreateCITSession(ctx context.Context, req adapter.CITSessionRequest) (adapter.SessionResponse, error) {
	items, err := json.Marshal(req.OrderItems)
	if err != nil {
		return adapter.SessionResponse{}, fmt.Errorf("marshal order items: %w", err)
	}
	extra, _ := json.Marshal(map[string]string{
		"saveCard":      "YES",
		"SALE":          "YES",
		"RecurringType": "Subscription",
		"Recurring":     "C", // C = customer initiated (first transaction)
	})

	form := url.Values{
		"ACTION":            {"SESSIONTOKEN"},
		"MERCHANTUSER":      {g.merchantUser},
		"MERCHANTPASSWORD":  {g.merchantPass},
		"MERCHANT":          {g.merchant},
		"CUSTOMER":          {req.CustomerID},
		"SESSIONTYPE":       {"PAYMENTSESSION"},
		"MERCHANTPAYMENTID": {req.MerchantPaymentID},
		"AMOUNT":            {fmt.Sprintf("%.2f", req.Amount)},
		"CURRENCY":          {"RSD"},
		"CUSTOMEREMAIL":     {req.CustomerEmail},
		"CUSTOMERNAME":      {req.CustomerName},
		"CUSTOMERPHONE":     {req.CustomerPhone},
		"RETURNURL":         {req.ReturnURL},
		"SESSIONEXPIRY":     {"1h"},
		"ORDERITEMS":        {string(items)},
		"EXTRA":             {string(extra)},
	}

	var out adapter.SessionResponse
	if err := g.post(ctx, form, &out); err != nil {
		return adapter.SessionResponse{}, err
	}
	return out, nil
}

// ExecuteMITSale charges a saved card without cardholder interaction, using
// the trace id issued with the original CIT charge.
func (g *MSUGateway) ExecuteMITSale(ctx context.Context, req adapter.MITSaleRequest) (adapter.MITSaleResponse, error) {
	extra, _ := json.Marshal(map[string]string{
		"Recurring":     "R", // R = recurring (scheduled MIT)
		"RecurringType": "Subscription",
		"TraceID":       req.TraceID,
	})

	form := url.Values{
		"ACTION":            {"SALE"},
		"MERCHANTUSER":      {g.merchantUser},
		"MERCHANTPASSWORD":  {g.merchantPass},
		"MERCHANT":          {g.merchant},
		"MERCHANTPAYMENTID": {req.MerchantPaymentID},
		"AMOUNT":            {fmt.Sprintf("%.2f", req.Amount)},
		"CUSTOMER":          {req.CustomerID},
		"CURRENCY":          {"RSD"},
		"CARDTOKEN":         {req.CardToken},
		"EXTRA":             {string(extra)},
	}

	var out adapter.MITSaleResponse
	if err := g.post(ctx, form, &out); err != nil {
		return adapter.MITSaleResponse{}, err
	}
	return out, nil
}

func (g *MSUGateway) post(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("msu request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("msu http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("msu decode: %w", err)
	}
	return nil
}

// ExtractTraceID digs the TRACEID out of the bankResponseExtras callback
// field: a URL-encoded JSON object. Any decode or parse failure yields an
// empty trace id rather than an error; the caller simply skips mandate
// creation in that case.
func ExtractTraceID(bankResponseExtras string) string {
	if bankResponseExtras == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(bankResponseExtras)
	if err != nil {
		decoded = bankResponseExtras
	}
	var extras map[string]any
	if err := json.Unmarshal([]byte(decoded), &extras); err != nil {
		return ""
	}
	if v, ok := extras["TRACEID"].(string); ok {
		return v
	}
	return ""
}
