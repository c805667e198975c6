package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"edu-coin-engine/internal/model"
)

// Transactor runs fn atomically. Store calls made with the context handed to
// fn take part in the same transaction; nested calls join the outer one.
type Transactor interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore is the user persistence used by the services.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetForUpdate(ctx context.Context, id string) (*model.User, error)
	GetOrCreate(ctx context.Context, id, displayName, email string) (*model.User, bool, error)
	UpdateProfile(ctx context.Context, id, displayName, email string) error
	AddCoins(ctx context.Context, id string, amount int64) (int64, error)
	DebitCoins(ctx context.Context, id string, amount int64) (int64, error)
}

// CourseStore reads course reward policies.
type CourseStore interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
}

// PassHistory answers the questions the reward policy asks about past exams.
type PassHistory interface {
	CountPasses(ctx context.Context, userID, courseID string) (int, error)
	CountPassesBetween(ctx context.Context, userID, courseID string, from, to time.Time) (int, error)
}

// ExamStore records exam results.
type ExamStore interface {
	PassHistory
	Create(ctx context.Context, userID, courseID string, score int, passed bool, at time.Time) (*model.ExamResult, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.ExamResult, error)
}

// LedgerStore is the append-only coin grant log.
type LedgerStore interface {
	Create(ctx context.Context, userID, courseID string, coinsAwarded int64, at time.Time) (*model.CoinTransaction, error)
	GetByUserID(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error)
	SumByUserID(ctx context.Context, userID string) (int64, error)
}

// ItemStore holds store items and the redemption audit trail.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*model.StoreItem, error)
	GetItemForUpdate(ctx context.Context, id string) (*model.StoreItem, error)
	ListAvailable(ctx context.Context) ([]*model.StoreItem, error)
	UpdateStock(ctx context.Context, id string, stock int, available bool) error
	NewRedemptionStamp(ctx context.Context) (uuid.UUID, time.Time, error)
	CreateUserRedemption(ctx context.Context, rec *model.UserRedemption) error
	CreateItemRedemption(ctx context.Context, rec *model.ItemRedemption) error
	ListUserRedemptions(ctx context.Context, userID string) ([]*model.UserRedemption, error)
	SumSpentByUser(ctx context.Context, userID string) (int64, error)
}

// ReportStore holds user reports.
type ReportStore interface {
	Create(ctx context.Context, userID, reportType, message string, at time.Time) (*model.Report, error)
	CountBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}
