package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionCols = `id, user_id, course_id, merchant_payment_id, session_token, amount, currency, status, response_code, response_msg, pg_tran_id, pg_order_id, pg_tran_appr_code, raw_context, created_at, updated_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	raw, err := json.Marshal(t.RawContext)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO msu_transactions (` + transactionCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (merchant_payment_id) DO UPDATE SET
  user_id=$2, status=$8, response_code=$9, response_msg=$10,
  pg_tran_id=$11, pg_order_id=$12, pg_tran_appr_code=$13, raw_context=$14, updated_at=$16;`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.UserID, t.CourseID, t.MerchantPaymentID, t.SessionToken, t.Amount, t.Currency,
		t.Status, t.ResponseCode, t.ResponseMsg, t.PGTranID, t.PGOrderID, t.PGTranApprCode,
		raw, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByMerchantPaymentID(ctx context.Context, tx repository.Tx, merchantPaymentID string) (*model.Transaction, error) {
	return r.findBy(ctx, tx, `merchant_payment_id`, merchantPaymentID)
}

func (r *transactionRepo) FindByPGTranID(ctx context.Context, tx repository.Tx, pgTranID string) (*model.Transaction, error) {
	return r.findBy(ctx, tx, `pg_tran_id`, pgTranID)
}

func (r *transactionRepo) FindBySessionToken(ctx context.Context, tx repository.Tx, sessionToken string) (*model.Transaction, error) {
	return r.findBy(ctx, tx, `session_token`, sessionToken)
}

func (r *transactionRepo) findBy(ctx context.Context, tx repository.Tx, col, val string) (*model.Transaction, error) {
	q := `SELECT ` + transactionCols + ` FROM msu_transactions WHERE ` + col + `=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += ` FOR UPDATE`
	}
	q += `;`
	row, err := pickRow(ctx, r.pool, tx, q, val)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) UpdateFromCallback(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	raw, err := json.Marshal(t.RawContext)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE msu_transactions
   SET pg_tran_id=$2, pg_order_id=$3, pg_tran_appr_code=$4,
       status=$5, response_code=$6, response_msg=$7,
       raw_context=$8, updated_at=NOW()
 WHERE merchant_payment_id=$1;`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.MerchantPaymentID, t.PGTranID, t.PGOrderID, t.PGTranApprCode,
		t.Status, t.ResponseCode, t.ResponseMsg, raw)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) SetUserID(ctx context.Context, tx repository.Tx, merchantPaymentID, userID string) error {
	const q = `UPDATE msu_transactions SET user_id=$2, updated_at=NOW() WHERE merchant_payment_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, merchantPaymentID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) ListRecentPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT ` + transactionCols + ` FROM msu_transactions WHERE status='PENDING' ORDER BY created_at DESC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	var raw []byte
	err := row.Scan(&t.ID, &t.UserID, &t.CourseID, &t.MerchantPaymentID, &t.SessionToken,
		&t.Amount, &t.Currency, &t.Status, &t.ResponseCode, &t.ResponseMsg,
		&t.PGTranID, &t.PGOrderID, &t.PGTranApprCode, &raw, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.RawContext); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return t, nil
}

// -----------------------------
// Processed-callback ledger
// -----------------------------

var _ repository.CallbackLedger = (*callbackLedger)(nil)

type callbackLedger struct{ pool *pgxpool.Pool }

func NewCallbackLedger(pool *pgxpool.Pool) *callbackLedger {
	return &callbackLedger{pool: pool}
}

// MarkProcessed inserts the (merchant payment id, gateway tran id) pair.
// Zero rows affected means the pair was already recorded: the caller is
// handling a redelivered callback and must not re-apply its effects.
func (l *callbackLedger) MarkProcessed(ctx context.Context, tx repository.Tx, merchantPaymentID, pgTranID string, at time.Time) (bool, error) {
	const q = `
INSERT INTO processed_callbacks (merchant_payment_id, pg_tran_id, processed_at)
VALUES ($1,$2,$3)
ON CONFLICT (merchant_payment_id, pg_tran_id) DO NOTHING;`
	tag, err := execSQL(ctx, l.pool, tx, q, merchantPaymentID, pgTranID, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}
