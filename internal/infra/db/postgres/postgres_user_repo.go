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
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userCols = `id, first_name, last_name, email, password_hash, role, subscription_expires_at, subscription_status, created_at`

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  first_name=$2, last_name=$3, email=$4, password_hash=$5, role=$6,
  subscription_expires_at=$7, subscription_status=$8;`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role,
		u.SubscriptionExpiresAt, u.SubscriptionStatus, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.findBy(ctx, tx, `id`, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return r.findBy(ctx, tx, `email`, email)
}

func (r *userRepo) findBy(ctx context.Context, tx repository.Tx, col, val string) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE ` + col + `=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += ` FOR UPDATE`
	}
	q += `;`
	row, err := pickRow(ctx, r.pool, tx, q, val)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role,
		&u.SubscriptionExpiresAt, &u.SubscriptionStatus, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

func (r *userRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, expiresAt time.Time, status model.SubscriptionStatus) error {
	const q = `UPDATE users SET subscription_expires_at=$2, subscription_status=$3 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, expiresAt, status)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) UpdateSubscriptionStatus(ctx context.Context, tx repository.Tx, userID string, status model.SubscriptionStatus) error {
	const q = `UPDATE users SET subscription_status=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID, status)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE users SET subscription_status='expired'
 WHERE subscription_expires_at < $1 AND subscription_status='active';`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func (r *userRepo) ListExpiringWithin(ctx context.Context, tx repository.Tx, now time.Time, window time.Duration) ([]*model.User, error) {
	const q = `
SELECT ` + userCols + ` FROM users
 WHERE subscription_expires_at BETWEEN $1 AND $2
   AND subscription_status='active'
 ORDER BY subscription_expires_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, now.Add(window))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role,
			&u.SubscriptionExpiresAt, &u.SubscriptionStatus, &u.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
