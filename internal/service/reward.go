package service

import (
	"context"
	"fmt"
	"time"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/pkg/clock"
)

// DefaultDailyBonusLimit is the number of same-day passes per (user, course)
// that still earn the bonus reward.
const DefaultDailyBonusLimit = 5

// RewardKind explains how a reward was decided.
type RewardKind int

const (
	// RewardFirstPass is the one-time reward for the first pass ever.
	RewardFirstPass RewardKind = iota + 1
	// RewardBonus is the reward for a later pass under the daily cap.
	RewardBonus
	// RewardCapped means the daily cap was reached and nothing is owed.
	RewardCapped
)

// Reward is the outcome of the reward policy for one passing exam.
type Reward struct {
	Coins int64
	Kind  RewardKind
}

// RewardFor applies the reward policy to counts taken before the current
// submission is recorded: totalPasses across all time and todayPasses on
// the current trusted day.
func RewardFor(course *model.Course, totalPasses, todayPasses, dailyLimit int) Reward {
	if totalPasses == 0 {
		return Reward{Coins: course.FirstPassReward, Kind: RewardFirstPass}
	}
	if todayPasses < dailyLimit {
		return Reward{Coins: course.BonusReward, Kind: RewardBonus}
	}
	return Reward{Coins: 0, Kind: RewardCapped}
}

// RewardPolicy computes how many coins a passing exam earns. It only reads.
type RewardPolicy struct {
	history    PassHistory
	calendar   *clock.Calendar
	dailyLimit int
}

// NewRewardPolicy creates a new RewardPolicy. A negative limit falls back
// to DefaultDailyBonusLimit.
func NewRewardPolicy(history PassHistory, calendar *clock.Calendar, dailyLimit int) *RewardPolicy {
	if dailyLimit < 0 {
		dailyLimit = DefaultDailyBonusLimit
	}
	return &RewardPolicy{
		history:    history,
		calendar:   calendar,
		dailyLimit: dailyLimit,
	}
}

// DailyLimit returns the configured daily bonus limit.
func (p *RewardPolicy) DailyLimit() int {
	return p.dailyLimit
}

// ComputeReward returns the coins owed to userID for a passing exam of
// course, using the trusted clock for "today". A failed query is returned
// as an error, never as a zero reward.
func (p *RewardPolicy) ComputeReward(ctx context.Context, userID string, course *model.Course) (int64, error) {
	now, err := p.calendar.Now(ctx)
	if err != nil {
		return 0, translate(err)
	}
	reward, err := p.Evaluate(ctx, userID, course, now)
	if err != nil {
		return 0, err
	}
	return reward.Coins, nil
}

// Evaluate decides the reward for a pass happening at now.
func (p *RewardPolicy) Evaluate(ctx context.Context, userID string, course *model.Course, now time.Time) (Reward, error) {
	total, err := p.history.CountPasses(ctx, userID, course.ID)
	if err != nil {
		return Reward{}, translate(err)
	}
	if total == 0 {
		return RewardFor(course, 0, 0, p.dailyLimit), nil
	}

	start, end := clock.DayRange(now, p.calendar.Location())
	today, err := p.history.CountPassesBetween(ctx, userID, course.ID, start, end)
	if err != nil {
		return Reward{}, translate(err)
	}

	return RewardFor(course, total, today, p.dailyLimit), nil
}

// String implements fmt.Stringer.
func (k RewardKind) String() string {
	switch k {
	case RewardFirstPass:
		return "first_pass"
	case RewardBonus:
		return "bonus"
	case RewardCapped:
		return "capped"
	default:
		return fmt.Sprintf("RewardKind(%d)", int(k))
	}
}
