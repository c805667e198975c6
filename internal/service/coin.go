package service

import (
	"context"
	"time"

	"edu-coin-engine/internal/model"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 50

// CoinService mutates balances and keeps the grant ledger.
type CoinService struct {
	tx     Transactor
	users  UserStore
	ledger LedgerStore
}

// NewCoinService creates a new CoinService instance.
func NewCoinService(tx Transactor, users UserStore, ledger LedgerStore) *CoinService {
	return &CoinService{
		tx:     tx,
		users:  users,
		ledger: ledger,
	}
}

// AddCoins atomically adds delta to the user's balance and returns the new
// balance. Concurrent calls for the same user are serialized on the user row
// so no increment is lost. A negative delta is rejected.
func (s *CoinService) AddCoins(ctx context.Context, userID string, delta int64) (int64, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	if delta < 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetForUpdate(ctx, userID); err != nil {
			return err
		}
		var err error
		balance, err = s.users.AddCoins(ctx, userID, delta)
		return err
	})
	if err != nil {
		return 0, translate(err)
	}
	return balance, nil
}

// LogGrant appends one grant record to the ledger, stamped at. Callers pass
// the same trusted time they stamped the triggering event with.
func (s *CoinService) LogGrant(ctx context.Context, userID, courseID string, coins int64, at time.Time) (*model.CoinTransaction, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if coins < 0 {
		return nil, ErrInvalidAmount
	}

	rec, err := s.ledger.Create(ctx, userID, courseID, coins, at)
	if err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// Grant credits coins and records the ledger entry in one transaction, so a
// balance change never exists without its record. Called inside an open
// transaction it joins it.
func (s *CoinService) Grant(ctx context.Context, userID, courseID string, coins int64, at time.Time) (int64, *model.CoinTransaction, error) {
	var (
		balance int64
		rec     *model.CoinTransaction
	)
	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if balance, err = s.AddCoins(ctx, userID, coins); err != nil {
			return err
		}
		rec, err = s.LogGrant(ctx, userID, courseID, coins, at)
		return err
	})
	if err != nil {
		return 0, nil, translate(err)
	}
	return balance, rec, nil
}

// History returns the user's most recent grants, newest first.
func (s *CoinService) History(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	recs, err := s.ledger.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return recs, nil
}
