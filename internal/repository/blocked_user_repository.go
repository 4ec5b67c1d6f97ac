package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/modmail-bridge/internal/domain"
)

// BlockedUserRepository manages the ticket blocklist.
type BlockedUserRepository interface {
	Get(ctx context.Context, userID string) (*domain.BlockedUser, error)
	Create(ctx context.Context, blocked *domain.BlockedUser) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]domain.BlockedUser, error)
	Count(ctx context.Context) (int64, error)
}

type blockedUserRepository struct {
	pool *pgxpool.Pool
}

// NewBlockedUserRepository builds repository.
func NewBlockedUserRepository(pool *pgxpool.Pool) BlockedUserRepository {
	return &blockedUserRepository{pool: pool}
}

func (r *blockedUserRepository) Get(ctx context.Context, userID string) (*domain.BlockedUser, error) {
	const query = `SELECT user_id, blocked_by, reason, created_at FROM blocked_users WHERE user_id=$1`
	var blocked domain.BlockedUser
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&blocked.UserID,
		&blocked.BlockedBy,
		&blocked.Reason,
		&blocked.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &blocked, nil
}

func (r *blockedUserRepository) Create(ctx context.Context, blocked *domain.BlockedUser) error {
	const query = `
        INSERT INTO blocked_users (user_id, blocked_by, reason)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id) DO UPDATE SET blocked_by=EXCLUDED.blocked_by, reason=EXCLUDED.reason
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		blocked.UserID,
		blocked.BlockedBy,
		blocked.Reason,
	).Scan(&blocked.CreatedAt)
}

func (r *blockedUserRepository) Delete(ctx context.Context, userID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM blocked_users WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *blockedUserRepository) List(ctx context.Context) ([]domain.BlockedUser, error) {
	const query = `SELECT user_id, blocked_by, reason, created_at FROM blocked_users ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BlockedUser
	for rows.Next() {
		var blocked domain.BlockedUser
		if err := rows.Scan(
			&blocked.UserID,
			&blocked.BlockedBy,
			&blocked.Reason,
			&blocked.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, blocked)
	}
	return result, rows.Err()
}

func (r *blockedUserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocked_users`).Scan(&count)
	return count, err
}
