package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/adapter"
	"motion-akademija-billing/internal/domain/ports/repository"
	"motion-akademija-billing/internal/infra/logging"
	"motion-akademija-billing/internal/infra/metrics"
	"motion-akademija-billing/internal/infra/security"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// CallbackInput is the normalized gateway callback. The web layer merges query
// and form parameters and pre-extracts TraceID from bankResponseExtras before
// handing the payload over.
type CallbackInput struct {
	MerchantPaymentID string
	SessionToken      string
	ResponseCode      string
	ResponseMsg       string
	PGTranID          string
	PGOrderID         string
	PGTranApprCode    string
	CardToken         string
	TraceID           string
	Raw               map[string]any
}

type CallbackOutcome string

const (
	CallbackApproved CallbackOutcome = "approved"
	CallbackFailed   CallbackOutcome = "failed"
	CallbackError    CallbackOutcome = "error"
)

// Error codes surfaced to the redirect layer.
const (
	ErrCodeMissingPaymentID    = "missing_payment_id"
	ErrCodeTransactionNotFound = "transaction_not_found"
	ErrCodeServerError         = "server_error"
)

type CallbackResult struct {
	Outcome           CallbackOutcome
	MerchantPaymentID string
	Message           string
	ErrCode           string
	Replay            bool
}

type ReconcileUseCase interface {
	// ProcessCallback reconciles one gateway callback against the stored
	// transaction. A redelivered callback is detected via the processed
	// ledger and answered from stored state without side effects.
	ProcessCallback(ctx context.Context, in CallbackInput) *CallbackResult
}

type reconcileUC struct {
	tm           repository.TransactionManager
	transactions repository.TransactionRepository
	ledger       repository.CallbackLedger
	users        repository.UserRepository
	mandates     repository.MandateRepository
	purchases    repository.PurchaseRepository
	mailer       adapter.Mailer
	log          *zerolog.Logger
}

func NewReconcileUseCase(
	tm repository.TransactionManager,
	transactions repository.TransactionRepository,
	ledger repository.CallbackLedger,
	users repository.UserRepository,
	mandates repository.MandateRepository,
	purchases repository.PurchaseRepository,
	mailer adapter.Mailer,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		tm:           tm,
		transactions: transactions,
		ledger:       ledger,
		users:        users,
		mandates:     mandates,
		purchases:    purchases,
		mailer:       mailer,
		log:          &l,
	}
}

// provisioned carries post-commit work out of the transaction closure.
type provisioned struct {
	welcomeEmail string
	welcomeName  string
	password     string
}

func (u *reconcileUC) ProcessCallback(ctx context.Context, in CallbackInput) *CallbackResult {
	base := logging.With(ctx, u.log)
	mpid, err := u.resolveMerchantPaymentID(ctx, in)
	if err != nil {
		base.Error().Err(err).Msg("callback payment id resolution failed")
		metrics.IncCallback("error")
		return &CallbackResult{Outcome: CallbackError, ErrCode: ErrCodeServerError}
	}
	if mpid == "" {
		base.Warn().
			Str("pg_tran_id", in.PGTranID).
			Str("session_token", in.SessionToken).
			Msg("callback carries no resolvable merchant payment id")
		metrics.IncCallback("error")
		return &CallbackResult{Outcome: CallbackError, ErrCode: ErrCodeMissingPaymentID}
	}

	log := base.With().Str("merchant_payment_id", mpid).Logger()

	var (
		result CallbackResult
		post   *provisioned
	)
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t, err := u.transactions.FindByMerchantPaymentID(ctx, tx, mpid)
		if errors.Is(err, domain.ErrNotFound) {
			u.logUnknownCallback(ctx, tx, mpid)
			result = CallbackResult{Outcome: CallbackError, MerchantPaymentID: mpid, ErrCode: ErrCodeTransactionNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		first, err := u.ledger.MarkProcessed(ctx, tx, mpid, in.PGTranID, time.Now())
		if err != nil {
			return err
		}
		if !first {
			log.Info().Str("pg_tran_id", in.PGTranID).Msg("callback replay, answering from stored state")
			metrics.IncCallbackReplay()
			result = u.resultFromStored(t)
			result.Replay = true
			return nil
		}

		approved := in.ResponseCode == "00"
		if approved {
			t.Status = model.TransactionStatusApproved
		} else {
			t.Status = model.TransactionStatusFailed
		}
		t.ResponseCode = in.ResponseCode
		t.ResponseMsg = in.ResponseMsg
		if in.PGTranID != "" {
			t.PGTranID = &in.PGTranID
		}
		if in.PGOrderID != "" {
			t.PGOrderID = &in.PGOrderID
		}
		if in.PGTranApprCode != "" {
			t.PGTranApprCode = &in.PGTranApprCode
		}
		t.RawContext = model.MergeContext(t.RawContext, in.Raw)
		if err := u.transactions.UpdateFromCallback(ctx, tx, t); err != nil {
			return err
		}

		if !approved {
			log.Info().
				Str("response_code", in.ResponseCode).
				Str("response_msg", in.ResponseMsg).
				Msg("payment declined")
			result = CallbackResult{Outcome: CallbackFailed, MerchantPaymentID: mpid, Message: in.ResponseMsg}
			return nil
		}

		post, err = u.applyApproval(ctx, tx, t, in)
		if err != nil {
			return err
		}
		result = CallbackResult{Outcome: CallbackApproved, MerchantPaymentID: mpid}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("callback reconciliation failed")
		metrics.IncCallback("error")
		return &CallbackResult{Outcome: CallbackError, MerchantPaymentID: mpid, ErrCode: ErrCodeServerError}
	}

	if !result.Replay {
		metrics.IncCallback(string(result.Outcome))
	}
	if post != nil {
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := u.mailer.SendWelcomeEmail(sendCtx, post.welcomeEmail, post.password, post.welcomeName); err != nil {
				u.log.Warn().Err(err).Msg("welcome email failed")
			}
		}()
	}
	return &result
}

// resolveMerchantPaymentID falls back to gateway-side identifiers when the
// callback omits the merchant payment id.
func (u *reconcileUC) resolveMerchantPaymentID(ctx context.Context, in CallbackInput) (string, error) {
	if in.MerchantPaymentID != "" {
		return in.MerchantPaymentID, nil
	}
	if in.PGTranID != "" {
		t, err := u.transactions.FindByPGTranID(ctx, nil, in.PGTranID)
		if err == nil {
			return t.MerchantPaymentID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	if in.SessionToken != "" {
		t, err := u.transactions.FindBySessionToken(ctx, nil, in.SessionToken)
		if err == nil {
			return t.MerchantPaymentID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}

func (u *reconcileUC) resultFromStored(t *model.Transaction) CallbackResult {
	switch t.Status {
	case model.TransactionStatusApproved:
		return CallbackResult{Outcome: CallbackApproved, MerchantPaymentID: t.MerchantPaymentID}
	case model.TransactionStatusFailed:
		return CallbackResult{Outcome: CallbackFailed, MerchantPaymentID: t.MerchantPaymentID, Message: t.ResponseMsg}
	default:
		return CallbackResult{Outcome: CallbackFailed, MerchantPaymentID: t.MerchantPaymentID, Message: "transakcija nije dovršena"}
	}
}

// logUnknownCallback dumps the most recent pending transactions so an operator
// can line a stray callback up against open checkouts.
func (u *reconcileUC) logUnknownCallback(ctx context.Context, tx repository.Tx, mpid string) {
	pending, err := u.transactions.ListRecentPending(ctx, tx, 5)
	if err != nil {
		u.log.Warn().Str("merchant_payment_id", mpid).Msg("callback for unknown transaction")
		return
	}
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.MerchantPaymentID)
	}
	u.log.Warn().
		Str("merchant_payment_id", mpid).
		Strs("recent_pending", ids).
		Msg("callback for unknown transaction")
}

// applyApproval provisions access for an approved first charge: resolve or
// create the user, extend the subscription, record the purchase and store the
// recurring mandate when the gateway returned a saved card.
func (u *reconcileUC) applyApproval(ctx context.Context, tx repository.Tx, t *model.Transaction, in CallbackInput) (*provisioned, error) {
	months := subscriptionMonths(t.RawContext)
	now := time.Now()
	expiry := now.AddDate(0, months, 0)

	var post *provisioned

	var user *model.User
	if t.UserID != nil {
		var err error
		user, err = u.users.FindByID(ctx, tx, *t.UserID)
		if err != nil {
			return nil, err
		}
		if err := u.users.UpdateSubscription(ctx, tx, user.ID, expiry, model.SubscriptionStatusActive); err != nil {
			return nil, err
		}
	} else {
		email := contextString(t.RawContext, "customerEmail")
		if email == "" {
			return nil, fmt.Errorf("approved transaction %s has no user and no customer email: %w", t.MerchantPaymentID, domain.ErrOperationFailed)
		}
		var err error
		user, err = u.users.FindByEmail(ctx, tx, email)
		switch {
		case err == nil:
			if err := u.users.UpdateSubscription(ctx, tx, user.ID, expiry, model.SubscriptionStatusActive); err != nil {
				return nil, err
			}
		case errors.Is(err, domain.ErrNotFound):
			user, post, err = u.createGuestUser(ctx, tx, email, contextString(t.RawContext, "customerName"), expiry)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
		if err := u.transactions.SetUserID(ctx, tx, t.MerchantPaymentID, user.ID); err != nil {
			return nil, err
		}
	}

	purchase := &model.Purchase{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		CourseID:      t.CourseID,
		TransactionID: t.ID,
		CreatedAt:     now,
	}
	if err := u.purchases.Save(ctx, tx, purchase); err != nil {
		return nil, err
	}

	if in.CardToken != "" && in.TraceID != "" {
		if err := u.storeMandate(ctx, tx, user.ID, t, in, months); err != nil {
			return nil, err
		}
	}

	metrics.IncTransaction(string(model.TransactionStatusApproved), "cit")
	metrics.AddRevenue(t.Currency, t.Amount)
	return post, nil
}

func (u *reconcileUC) createGuestUser(ctx context.Context, tx repository.Tx, email, customerName string, expiry time.Time) (*model.User, *provisioned, error) {
	password, err := security.GeneratePassword(12)
	if err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}
	user, err := model.NewGuestUser(email, customerName, string(hash))
	if err != nil {
		return nil, nil, err
	}
	user.SubscriptionExpiresAt = &expiry
	user.SubscriptionStatus = model.SubscriptionStatusActive
	if err := u.users.Save(ctx, tx, user); err != nil {
		return nil, nil, err
	}
	u.log.Info().
		Str("user_id", user.ID).
		Str("email", logging.Redact(email)).
		Msg("guest user provisioned from approved checkout")
	return user, &provisioned{welcomeEmail: email, welcomeName: user.FirstName, password: password}, nil
}

// storeMandate records the saved card for scheduled billing. An existing
// active mandate wins; the new card token is ignored in that case.
func (u *reconcileUC) storeMandate(ctx context.Context, tx repository.Tx, userID string, t *model.Transaction, in CallbackInput, months int) error {
	_, err := u.mandates.FindActiveByUser(ctx, tx, userID)
	if err == nil {
		u.log.Info().Str("user_id", userID).Msg("active mandate already present, keeping it")
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	m, err := model.NewRecurringMandate(userID, t.CourseID, in.CardToken, in.TraceID, t.Amount, t.Currency, months)
	if err != nil {
		return err
	}
	return u.mandates.Save(ctx, tx, m)
}

// subscriptionMonths derives the subscription length from the checkout
// context: packages encode their duration in the package id, a plain course
// purchase runs one month.
func subscriptionMonths(rawContext map[string]any) int {
	if contextString(rawContext, "itemType") == "package" {
		if pd, ok := rawContext["packageData"].(map[string]any); ok {
			if id, ok := pd["id"].(string); ok {
				return model.DurationMonths(id)
			}
		}
	}
	return 1
}

func contextString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
