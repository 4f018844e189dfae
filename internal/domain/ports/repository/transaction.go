package repository

import (
	"context"
	"time"

	"motion-akademija-billing/internal/domain/model"
)

// -----------------------------
// Gateway transactions
// -----------------------------

type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByMerchantPaymentID(ctx context.Context, tx Tx, merchantPaymentID string) (*model.Transaction, error)
	// FindByPGTranID and FindBySessionToken back the callback fallback
	// resolution when the gateway omits the merchant payment id.
	FindByPGTranID(ctx context.Context, tx Tx, pgTranID string) (*model.Transaction, error)
	FindBySessionToken(ctx context.Context, tx Tx, sessionToken string) (*model.Transaction, error)
	// UpdateFromCallback persists status, gateway ids, response code/message
	// and the merged raw context onto the stored row.
	UpdateFromCallback(ctx context.Context, tx Tx, t *model.Transaction) error
	SetUserID(ctx context.Context, tx Tx, merchantPaymentID, userID string) error
	// ListRecentPending is an operator aid emitted when a callback references
	// an unknown transaction.
	ListRecentPending(ctx context.Context, tx Tx, limit int) ([]*model.Transaction, error)
}

// -----------------------------
// Processed-callback ledger
// -----------------------------

// CallbackLedger keys every mutating callback effect off of
// (merchant payment id, gateway transaction id). MarkProcessed reports false
// when the pair was already recorded, which makes a redelivered callback a
// read-only replay.
type CallbackLedger interface {
	MarkProcessed(ctx context.Context, tx Tx, merchantPaymentID, pgTranID string, at time.Time) (bool, error)
}
