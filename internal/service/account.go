package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/model"
)

// Balance is a user's current coins with lifetime totals.
type Balance struct {
	Coins  int64 `json:"coins"`
	Earned int64 `json:"earned"`
	Spent  int64 `json:"spent"`
}

// AccountService handles user account operations.
type AccountService struct {
	users  UserStore
	ledger LedgerStore
	items  ItemStore
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, ledger LedgerStore, items ItemStore) *AccountService {
	return &AccountService{
		users:  users,
		ledger: ledger,
		items:  items,
	}
}

// EnsureUser ensures a user exists, creating one with zero coins if
// necessary. Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, userID, displayName, email string) (*model.User, bool, error) {
	if userID == "" {
		return nil, false, ErrUnauthenticated
	}
	displayName = strings.TrimSpace(displayName)
	email = strings.TrimSpace(email)

	user, created, err := s.users.GetOrCreate(ctx, userID, displayName, email)
	if err != nil {
		return nil, false, translate(err)
	}

	if created {
		log.Info().Str("user_id", userID).Msg("User registered")
		return user, true, nil
	}

	// Update profile if it changed
	changed := (displayName != "" && displayName != user.DisplayName) ||
		(email != "" && email != user.Email)
	if changed {
		if displayName == "" {
			displayName = user.DisplayName
		}
		if email == "" {
			email = user.Email
		}
		if err := s.users.UpdateProfile(ctx, userID, displayName, email); err != nil {
			// the account exists, a stale profile is not fatal
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		} else {
			user.DisplayName = displayName
			user.Email = email
		}
	}

	return user, false, nil
}

// GetUser retrieves a user by ID.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// GetBalance retrieves a user's current balance with what they earned from
// exams and spent in the store.
func (s *AccountService) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	earned, err := s.ledger.SumByUserID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	spent, err := s.items.SumSpentByUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	return &Balance{Coins: user.Coins, Earned: earned, Spent: spent}, nil
}
