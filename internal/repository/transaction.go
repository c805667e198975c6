package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// TransactionRepository handles the coin grant ledger. Records are
// append-only: there is no update or delete.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create appends a grant record stamped at.
func (r *TransactionRepository) Create(ctx context.Context, userID, courseID string, coinsAwarded int64, at time.Time) (*model.CoinTransaction, error) {
	const query = `
		INSERT INTO coin_transactions (user_id, course_id, coins_awarded, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, course_id, coins_awarded, created_at
	`

	var tx model.CoinTransaction
	err := executor(ctx, r.pool).QueryRow(ctx, query, userID, courseID, coinsAwarded, at).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.CourseID,
		&tx.CoinsAwarded,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coin transaction: %w", err)
	}

	return &tx, nil
}

// GetByUserID retrieves a user's grants, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	const query = `
		SELECT id, user_id, course_id, coins_awarded, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get coin transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.CoinTransaction
	for rows.Next() {
		var tx model.CoinTransaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.CourseID,
			&tx.CoinsAwarded,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coin transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin transactions: %w", err)
	}

	return transactions, nil
}

// SumByUserID returns the total coins ever granted to a user.
func (r *TransactionRepository) SumByUserID(ctx context.Context, userID string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(coins_awarded), 0)
		FROM coin_transactions
		WHERE user_id = $1
	`

	var total int64
	if err := executor(ctx, r.pool).QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum coin transactions: %w", err)
	}
	return total, nil
}
