// Package model defines the data models for the coin economy.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an account owned by the identity provider. Coins is the single
// shared balance and is never negative.
type User struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Email       string    `db:"email" json:"email"`
	Coins       int64     `db:"coins" json:"coins"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Course carries the reward policy for its exam.
type Course struct {
	ID              string `db:"id" json:"id"`
	Title           string `db:"title" json:"title"`
	PassingScore    int    `db:"passing_score" json:"passingScore"`
	FirstPassReward int64  `db:"first_pass_reward" json:"firstPassReward"` // coins for the first-ever pass
	BonusReward     int64  `db:"bonus_reward" json:"bonusReward"`          // coins for later passes, capped per day
	Published       bool   `db:"published" json:"published"`
}

// ExamResult is written once per exam submission and never mutated.
type ExamResult struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	CourseID  string    `db:"course_id" json:"courseId"`
	Score     int       `db:"score" json:"score"`
	Passed    bool      `db:"passed" json:"passed"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CoinTransaction is the append-only audit record of a coin grant.
type CoinTransaction struct {
	ID           int64     `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"userId"`
	CourseID     string    `db:"course_id" json:"courseId"`
	CoinsAwarded int64     `db:"coins_awarded" json:"coinsAwarded"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// StoreItem is a redeemable item. Available is false whenever Stock is zero
// and may also be cleared by an administrator while stock remains.
type StoreItem struct {
	ID          string `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	ImageURL    string `db:"image_url" json:"imageUrl"`
	Price       int64  `db:"price" json:"price"`
	Stock       int    `db:"stock" json:"stock"`
	Available   bool   `db:"available" json:"available"`
}

// UserRedemption is the user-side half of a redemption, with a snapshot of
// the item as it was right after the purchase.
type UserRedemption struct {
	TransactionID uuid.UUID `db:"transaction_id" json:"transactionId"`
	UserID        string    `db:"user_id" json:"-"`
	ItemID        string    `db:"item_id" json:"itemId"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	ImageURL      string    `db:"image_url" json:"imageUrl"`
	Price         int64     `db:"price" json:"price"`
	Stock         int       `db:"stock" json:"stock"`
	Available     bool      `db:"available" json:"available"`
	RedeemedAt    time.Time `db:"redeemed_at" json:"redeemedAt"`
}

// ItemRedemption is the item-side half of a redemption.
type ItemRedemption struct {
	TransactionID uuid.UUID `db:"transaction_id" json:"transactionId"`
	ItemID        string    `db:"item_id" json:"itemId"`
	UserID        string    `db:"user_id" json:"userId"`
	Price         int64     `db:"price" json:"price"`
	RedeemedAt    time.Time `db:"redeemed_at" json:"timestamp"`
}

// Redemption is the result of one committed purchase.
type Redemption struct {
	TransactionID uuid.UUID
	UserID        string
	Item          StoreItem // state after the purchase
	NewCoins      int64
	RedeemedAt    time.Time
}

// Report is a suggestion or incident report sent by a user.
type Report struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      string    `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Report types and statuses.
const (
	ReportTypeSuggestion = "suggestion"
	ReportTypeIncident   = "incident"

	ReportStatusOpen = "open"
)

// ValidReportType reports whether t is a known report type.
func ValidReportType(t string) bool {
	return t == ReportTypeSuggestion || t == ReportTypeIncident
}
