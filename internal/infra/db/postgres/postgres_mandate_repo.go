package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"motion-akademija-billing/internal/domain"
	"motion-akademija-billing/internal/domain/model"
	"motion-akademija-billing/internal/domain/ports/repository"
	"motion-akademija-billing/internal/infra/security"
)

var _ repository.MandateRepository = (*mandateRepo)(nil)

// mandateRepo persists recurring mandates. Card tokens are encrypted before
// they hit the row and decrypted on the way out; nothing else sees ciphertext.
type mandateRepo struct {
	pool *pgxpool.Pool
	enc  *security.EncryptionService
}

func NewMandateRepo(pool *pgxpool.Pool, enc *security.EncryptionService) *mandateRepo {
	return &mandateRepo{pool: pool, enc: enc}
}

const mandateCols = `id, user_id, course_id, card_token, trace_id, amount, currency, subscription_months, is_active, next_billing_at, last_billing_at, created_at, updated_at`

func (r *mandateRepo) Save(ctx context.Context, tx repository.Tx, m *model.RecurringMandate) error {
	token, err := r.enc.Encrypt(m.CardToken)
	if err != nil {
		return domain.ErrOperationFailed
	}
	const q = `
INSERT INTO recurring_mandates (` + mandateCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  card_token=$4, trace_id=$5, amount=$6, currency=$7, subscription_months=$8,
  is_active=$9, next_billing_at=$10, last_billing_at=$11, updated_at=$13;`
	_, err = execSQL(ctx, r.pool, tx, q,
		m.ID, m.UserID, m.CourseID, token, m.TraceID, m.Amount, m.Currency,
		m.SubscriptionMonths, m.IsActive, m.NextBillingAt, m.LastBillingAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mandateRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RecurringMandate, error) {
	return r.findOne(ctx, tx, `WHERE id=$1`, id)
}

func (r *mandateRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	return r.findOne(ctx, tx, `WHERE user_id=$1 AND is_active ORDER BY created_at DESC`, userID)
}

func (r *mandateRepo) FindLatestInactiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	return r.findOne(ctx, tx, `WHERE user_id=$1 AND NOT is_active ORDER BY created_at DESC`, userID)
}

func (r *mandateRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.RecurringMandate, error) {
	return r.findOne(ctx, tx, `WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *mandateRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...interface{}) (*model.RecurringMandate, error) {
	q := `SELECT ` + mandateCols + ` FROM recurring_mandates ` + where + ` LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return r.scanMandate(row)
}

func (r *mandateRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.RecurringMandate, error) {
	const q = `
SELECT ` + mandateCols + ` FROM recurring_mandates
 WHERE is_active AND next_billing_at <= $1
 ORDER BY next_billing_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.RecurringMandate
	for rows.Next() {
		m, err := r.scanMandate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *mandateRepo) AdvanceBilling(ctx context.Context, tx repository.Tx, id string, nextBillingAt time.Time) error {
	const q = `
UPDATE recurring_mandates
   SET last_billing_at=NOW(), next_billing_at=$2, updated_at=NOW()
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, nextBillingAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mandateRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	const q = `UPDATE recurring_mandates SET is_active=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, active)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *mandateRepo) scanMandate(row pgx.Row) (*model.RecurringMandate, error) {
	m := &model.RecurringMandate{}
	var token string
	err := row.Scan(&m.ID, &m.UserID, &m.CourseID, &token, &m.TraceID, &m.Amount, &m.Currency,
		&m.SubscriptionMonths, &m.IsActive, &m.NextBillingAt, &m.LastBillingAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	plain, err := r.enc.Decrypt(token)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	m.CardToken = plain
	return m, nil
}
