package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/model"
)

// MsgRedeemed is the message shown after a successful redemption.
const MsgRedeemed = "Item redeemed successfully."

// Outcome is the result of RedeemItem in the shape the clients expect.
type Outcome struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	NewCoins      int64            `json:"newCoins"`
	UpdatedItem   *model.StoreItem `json:"updatedItem,omitempty"`
	TransactionID *uuid.UUID       `json:"transactionId,omitempty"`

	// Err is the typed failure behind Message, nil on success.
	Err error `json:"-"`
}

// RedemptionService exchanges coins for store items.
type RedemptionService struct {
	tx    Transactor
	users UserStore
	items ItemStore
}

// NewRedemptionService creates a new RedemptionService instance.
func NewRedemptionService(tx Transactor, users UserStore, items ItemStore) *RedemptionService {
	return &RedemptionService{
		tx:    tx,
		users: users,
		items: items,
	}
}

// NextStock returns the stock and availability an item has after one unit
// is sold. An item that reaches zero stock is never left available.
func NextStock(stock int, available bool) (int, bool) {
	next := stock - 1
	return next, next > 0 && available
}

// Redeemable reports whether an item can be sold right now.
func Redeemable(item *model.StoreItem) bool {
	return item.Available && item.Stock > 0
}

// Redeem buys one unit of itemID for userID.
//
// Item and user are re-read inside the transaction and locked, so the checks
// run against current state and not whatever the client last displayed.
// Stock, balance and both redemption records are written in the same
// transaction under one store-generated id and one server timestamp. Any
// failure leaves nothing behind.
func (s *RedemptionService) Redeem(ctx context.Context, userID, itemID string) (*model.Redemption, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if itemID == "" {
		return nil, ErrMissingItemID
	}

	var out *model.Redemption
	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		item, err := s.items.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !Redeemable(item) {
			return ErrItemUnavailable
		}

		user, err := s.users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user.Coins < item.Price {
			return ErrInsufficientBalance
		}

		stock, available := NextStock(item.Stock, item.Available)

		txID, at, err := s.items.NewRedemptionStamp(ctx)
		if err != nil {
			return err
		}

		if err := s.items.UpdateStock(ctx, item.ID, stock, available); err != nil {
			return err
		}
		coins, err := s.users.DebitCoins(ctx, userID, item.Price)
		if err != nil {
			return err
		}

		err = s.items.CreateUserRedemption(ctx, &model.UserRedemption{
			TransactionID: txID,
			UserID:        userID,
			ItemID:        item.ID,
			Title:         item.Title,
			Description:   item.Description,
			ImageURL:      item.ImageURL,
			Price:         item.Price,
			Stock:         stock,
			Available:     available,
			RedeemedAt:    at,
		})
		if err != nil {
			return err
		}
		err = s.items.CreateItemRedemption(ctx, &model.ItemRedemption{
			TransactionID: txID,
			ItemID:        item.ID,
			UserID:        userID,
			Price:         item.Price,
			RedeemedAt:    at,
		})
		if err != nil {
			return err
		}

		updated := *item
		updated.Stock = stock
		updated.Available = available
		out = &model.Redemption{
			TransactionID: txID,
			UserID:        userID,
			Item:          updated,
			NewCoins:      coins,
			RedeemedAt:    at,
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict) {
			log.Error().
				Err(err).
				Str("user_id", userID).
				Str("item_id", itemID).
				Msg("Redemption failed")
		}
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("item_id", itemID).
		Str("transaction_id", out.TransactionID.String()).
		Int64("price", out.Item.Price).
		Int64("new_coins", out.NewCoins).
		Int("stock", out.Item.Stock).
		Msg("Item redeemed")

	return out, nil
}

// RedeemItem wraps Redeem and reports the result as an Outcome with the
// human readable message for the client.
func (s *RedemptionService) RedeemItem(ctx context.Context, userID, itemID string) Outcome {
	r, err := s.Redeem(ctx, userID, itemID)
	if err != nil {
		return Outcome{Message: Message(err), Err: err}
	}

	item := r.Item
	txID := r.TransactionID
	return Outcome{
		Success:       true,
		Message:       MsgRedeemed,
		NewCoins:      r.NewCoins,
		UpdatedItem:   &item,
		TransactionID: &txID,
	}
}

// ListAvailable returns the items that can be redeemed now.
func (s *RedemptionService) ListAvailable(ctx context.Context) ([]*model.StoreItem, error) {
	items, err := s.items.ListAvailable(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// ListRedeemed returns the user's redemptions, newest first.
func (s *RedemptionService) ListRedeemed(ctx context.Context, userID string) ([]*model.UserRedemption, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	recs, err := s.items.ListUserRedemptions(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return recs, nil
}
