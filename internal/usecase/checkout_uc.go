package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/adapter"
	"motion-akademija-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CreateSessionInput is what the storefront sends to start a checkout.
// Either CourseID or Package must be set. UserID is empty for guest checkout.
type CreateSessionInput struct {
	UserID        string
	CourseID      string
	Package       *model.PackageDescriptor
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
}

type CreateSessionResult struct {
	RedirectURL       string
	MerchantPaymentID string
	SessionToken      string
}

// TransactionSnapshot is the status-endpoint view of a transaction.
type TransactionSnapshot struct {
	MerchantPaymentID string
	Status            model.TransactionStatus
	Amount            float64
	Currency          string
	CourseName        string
	ResponseCode      string
	ResponseMsg       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CheckoutUseCase interface {
	// CreateSession builds a CIT hosted-payment-page session with the gateway,
	// persists a PENDING transaction and returns the redirect URL.
	CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error)
	// Status returns the snapshot polled by the frontend result page.
	Status(ctx context.Context, merchantPaymentID string) (*TransactionSnapshot, error)
}

type checkoutUC struct {
	transactions repository.TransactionRepository
	users        repository.UserRepository
	courses      repository.CourseRepository
	gateway      adapter.PaymentGateway
	returnURL    string
	log          *zerolog.Logger
}

func NewCheckoutUseCase(
	transactions repository.TransactionRepository,
	users repository.UserRepository,
	courses repository.CourseRepository,
	gateway adapter.PaymentGateway,
	returnURL string,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		transactions: transactions,
		users:        users,
		courses:      courses,
		gateway:      gateway,
		returnURL:    returnURL,
		log:          &l,
	}
}

// packageCourseID is the course every package grants access to.
const packageCourseID = "1"

func (u *checkoutUC) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	if in.CustomerEmail == "" || in.CustomerName == "" {
		return nil, domain.ErrInvalidArgument
	}

	var (
		items    []adapter.OrderItem
		amount   float64
		itemID   string
		itemType string
		courseID string
	)
	switch {
	case in.CourseID != "":
		course, err := u.courses.FindByID(ctx, nil, in.CourseID)
		if err != nil {
			return nil, err
		}
		courseID = course.ID
		itemID = course.ID
		itemType = "course"
		amount = course.Price
		desc := course.Description
		if desc == "" {
			desc = course.Name
		}
		items = []adapter.OrderItem{{
			Code:        course.ID,
			Name:        course.Name,
			Description: desc,
			Quantity:    1,
			Amount:      amount,
		}}
	case in.Package != nil:
		itemID = in.Package.ID
		itemType = "package"
		amount = in.Package.Amount
		// packages always grant access to the flagship course
		courseID = packageCourseID
		code := in.Package.Code
		if code == "" {
			code = itemID
		}
		desc := in.Package.Description
		if desc == "" {
			desc = in.Package.Name
		}
		items = []adapter.OrderItem{{
			Code:        code,
			Name:        in.Package.Name,
			Description: desc,
			Quantity:    1,
			Amount:      amount,
		}}
	default:
		return nil, domain.ErrInvalidArgument
	}

	merchantPaymentID := fmt.Sprintf("ORDER_%s_%s", ulid.Make(), itemID)

	customerID := in.UserID
	if customerID == "" {
		customerID = in.CustomerEmail
	}
	resp, err := u.gateway.CreateCITSession(ctx, adapter.CITSessionRequest{
		CustomerID:        customerID,
		CustomerEmail:     in.CustomerEmail,
		CustomerName:      in.CustomerName,
		CustomerPhone:     in.CustomerPhone,
		MerchantPaymentID: merchantPaymentID,
		Amount:            amount,
		OrderItems:        items,
		ReturnURL:         u.returnURL,
	})
	if err != nil {
		return nil, err
	}
	if resp.ResponseCode != "00" {
		u.log.Error().
			Str("merchant_payment_id", merchantPaymentID).
			Str("response_code", resp.ResponseCode).
			Str("response_msg", resp.ResponseMsg).
			Msg("session creation declined by gateway")
		return nil, domain.ErrGatewayDeclined
	}

	// Guest checkout may still belong to a known account; matching up front
	// spares the reconciler an email lookup later.
	userID := in.UserID
	if userID == "" {
		if existing, err := u.users.FindByEmail(ctx, nil, in.CustomerEmail); err == nil {
			userID = existing.ID
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	t := &model.Transaction{
		ID:                uuid.NewString(),
		CourseID:          courseID,
		MerchantPaymentID: merchantPaymentID,
		SessionToken:      resp.SessionToken,
		Amount:            amount,
		Currency:          "RSD",
		Status:            model.TransactionStatusPending,
		ResponseCode:      resp.ResponseCode,
		ResponseMsg:       resp.ResponseMsg,
		RawContext: map[string]any{
			"customerEmail": in.CustomerEmail,
			"customerName":  in.CustomerName,
			"itemType":      itemType,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if userID != "" {
		t.UserID = &userID
	}
	if in.Package != nil {
		t.RawContext["packageData"] = map[string]any{
			"id":     in.Package.ID,
			"code":   in.Package.Code,
			"name":   in.Package.Name,
			"amount": in.Package.Amount,
		}
	}
	if err := u.transactions.Save(ctx, nil, t); err != nil {
		return nil, err
	}

	return &CreateSessionResult{
		RedirectURL:       u.gateway.HostedPageURL(resp.SessionToken),
		MerchantPaymentID: merchantPaymentID,
		SessionToken:      resp.SessionToken,
	}, nil
}

func (u *checkoutUC) Status(ctx context.Context, merchantPaymentID string) (*TransactionSnapshot, error) {
	t, err := u.transactions.FindByMerchantPaymentID(ctx, nil, merchantPaymentID)
	if err != nil {
		return nil, err
	}
	snap := &TransactionSnapshot{
		MerchantPaymentID: t.MerchantPaymentID,
		Status:            t.Status,
		Amount:            t.Amount,
		Currency:          t.Currency,
		ResponseCode:      t.ResponseCode,
		ResponseMsg:       t.ResponseMsg,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if course, err := u.courses.FindByID(ctx, nil, t.CourseID); err == nil {
		snap.CourseName = course.Name
	}
	return snap, nil
}
