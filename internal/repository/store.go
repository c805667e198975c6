package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// ErrItemNotFound is returned when a store item does not exist.
var ErrItemNotFound = errors.New("store item not found")

const itemColumns = `id, title, description, image_url, price, stock, available`

// StoreRepository handles store items and both halves of the redemption
// audit trail.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository creates a new StoreRepository instance.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

func scanItem(row pgx.Row) (*model.StoreItem, error) {
	var item model.StoreItem
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.ImageURL,
		&item.Price,
		&item.Stock,
		&item.Available,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts a store item. Used by seeding and tests.
func (r *StoreRepository) CreateItem(ctx context.Context, item *model.StoreItem) error {
	const query = `
		INSERT INTO store_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		item.ID, item.Title, item.Description, item.ImageURL, item.Price, item.Stock, item.Available,
	)
	if err != nil {
		return fmt.Errorf("failed to create store item: %w", err)
	}
	return nil
}

// GetItem retrieves a store item by ID.
func (r *StoreRepository) GetItem(ctx context.Context, id string) (*model.StoreItem, error) {
	const query = `SELECT ` + itemColumns + ` FROM store_items WHERE id = $1`

	item, err := scanItem(executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get store item: %w", err)
	}
	return item, nil
}

// GetItemForUpdate reads a store item and locks the row until the
// surrounding transaction ends.
func (r *StoreRepository) GetItemForUpdate(ctx context.Context, id string) (*model.StoreItem, error) {
	const query = `SELECT ` + itemColumns + ` FROM store_items WHERE id = $1 FOR UPDATE`

	item, err := scanItem(executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to lock store item: %w", err)
	}
	return item, nil
}

// ListAvailable returns the items that can currently be redeemed.
func (r *StoreRepository) ListAvailable(ctx context.Context) ([]*model.StoreItem, error) {
	const query = `
		SELECT ` + itemColumns + `
		FROM store_items
		WHERE available AND stock > 0
		ORDER BY price, id
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list store items: %w", err)
	}
	defer rows.Close()

	var items []*model.StoreItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating store items: %w", err)
	}

	return items, nil
}

// UpdateStock writes the stock and availability of an item.
func (r *StoreRepository) UpdateStock(ctx context.Context, id string, stock int, available bool) error {
	const query = `UPDATE store_items SET stock = $2, available = $3 WHERE id = $1`

	result, err := executor(ctx, r.pool).Exec(ctx, query, id, stock, available)
	if err != nil {
		return fmt.Errorf("failed to update item stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// NewRedemptionStamp asks the database for a fresh transaction id and the
// server time shared by both halves of one redemption.
func (r *StoreRepository) NewRedemptionStamp(ctx context.Context) (uuid.UUID, time.Time, error) {
	var (
		id uuid.UUID
		at time.Time
	)
	err := executor(ctx, r.pool).QueryRow(ctx, `SELECT gen_random_uuid(), NOW()`).Scan(&id, &at)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	return id, at, nil
}

// CreateUserRedemption inserts the user-side redemption record.
func (r *StoreRepository) CreateUserRedemption(ctx context.Context, rec *model.UserRedemption) error {
	const query = `
		INSERT INTO user_redemptions (
			transaction_id, user_id, item_id, title, description, image_url,
			price, stock, available, redeemed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		rec.TransactionID, rec.UserID, rec.ItemID, rec.Title, rec.Description, rec.ImageURL,
		rec.Price, rec.Stock, rec.Available, rec.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record user redemption: %w", err)
	}
	return nil
}

// CreateItemRedemption inserts the item-side redemption record.
func (r *StoreRepository) CreateItemRedemption(ctx context.Context, rec *model.ItemRedemption) error {
	const query = `
		INSERT INTO item_redemptions (transaction_id, item_id, user_id, price, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		rec.TransactionID, rec.ItemID, rec.UserID, rec.Price, rec.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record item redemption: %w", err)
	}
	return nil
}

// ListUserRedemptions returns the items a user redeemed, newest first.
func (r *StoreRepository) ListUserRedemptions(ctx context.Context, userID string) ([]*model.UserRedemption, error) {
	const query = `
		SELECT transaction_id, user_id, item_id, title, description, image_url,
		       price, stock, available, redeemed_at
		FROM user_redemptions
		WHERE user_id = $1
		ORDER BY redeemed_at DESC
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user redemptions: %w", err)
	}
	defer rows.Close()

	var recs []*model.UserRedemption
	for rows.Next() {
		var rec model.UserRedemption
		err := rows.Scan(
			&rec.TransactionID, &rec.UserID, &rec.ItemID, &rec.Title, &rec.Description, &rec.ImageURL,
			&rec.Price, &rec.Stock, &rec.Available, &rec.RedeemedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user redemption: %w", err)
		}
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user redemptions: %w", err)
	}

	return recs, nil
}

// ListItemRedemptions returns the redemptions recorded under an item,
// newest first.
func (r *StoreRepository) ListItemRedemptions(ctx context.Context, itemID string) ([]*model.ItemRedemption, error) {
	const query = `
		SELECT transaction_id, item_id, user_id, price, redeemed_at
		FROM item_redemptions
		WHERE item_id = $1
		ORDER BY redeemed_at DESC
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item redemptions: %w", err)
	}
	defer rows.Close()

	var recs []*model.ItemRedemption
	for rows.Next() {
		var rec model.ItemRedemption
		if err := rows.Scan(&rec.TransactionID, &rec.ItemID, &rec.UserID, &rec.Price, &rec.RedeemedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item redemption: %w", err)
		}
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item redemptions: %w", err)
	}

	return recs, nil
}

// SumSpentByUser returns the total coins a user spent in the store.
func (r *StoreRepository) SumSpentByUser(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(price), 0) FROM user_redemptions WHERE user_id = $1`

	var total int64
	if err := executor(ctx, r.pool).QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum redemptions: %w", err)
	}
	return total, nil
}
