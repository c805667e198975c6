package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const userColumns = `id, display_name, email, coins, created_at, updated_at`

// UserRepository handles user data persistence. Coins only change through
// AddCoins and DebitCoins.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.Coins,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user with a zero balance.
func (r *UserRepository) Create(ctx context.Context, id, displayName, email string) (*model.User, error) {
	const query = `
		INSERT INTO users (id, display_name, email, coins, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(executor(ctx, r.pool).QueryRow(ctx, query, id, displayName, email))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetForUpdate reads a user and locks the row until the surrounding
// transaction ends. Must be called inside Transactor.RunAtomic.
func (r *UserRepository) GetForUpdate(ctx context.Context, id string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by ID, creating one if it doesn't exist.
// The boolean reports whether the user was created.
func (r *UserRepository) GetOrCreate(ctx context.Context, id, displayName, email string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, id, displayName, email)
	if err != nil {
		// another request may have created the user first
		if isUniqueViolation(err) {
			user, err = r.GetByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			return user, false, nil
		}
		return nil, false, err
	}

	return user, true, nil
}

// UpdateProfile updates the display name and email of a user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, displayName, email string) error {
	const query = `
		UPDATE users
		SET display_name = $2, email = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := executor(ctx, r.pool).Exec(ctx, query, id, displayName, email)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddCoins adds a non-negative amount to the user's balance and returns the
// new balance.
func (r *UserRepository) AddCoins(ctx context.Context, id string, amount int64) (int64, error) {
	const query = `
		UPDATE users
		SET coins = coins + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING coins
	`

	var coins int64
	err := executor(ctx, r.pool).QueryRow(ctx, query, id, amount).Scan(&coins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to add coins: %w", err)
	}
	return coins, nil
}

// DebitCoins subtracts amount from the user's balance. The balance is never
// allowed to go negative; ErrInsufficientBalance is returned instead.
func (r *UserRepository) DebitCoins(ctx context.Context, id string, amount int64) (int64, error) {
	const query = `
		UPDATE users
		SET coins = coins - $2, updated_at = NOW()
		WHERE id = $1 AND coins >= $2
		RETURNING coins
	`

	var coins int64
	err := executor(ctx, r.pool).QueryRow(ctx, query, id, amount).Scan(&coins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := r.Exists(ctx, id)
			if existsErr != nil {
				return 0, existsErr
			}
			if !exists {
				return 0, ErrUserNotFound
			}
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("failed to debit coins: %w", err)
	}
	return coins, nil
}

// Exists checks if a user with the given ID exists.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	err := executor(ctx, r.pool).QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
