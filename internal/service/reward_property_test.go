package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"edu-coin-engine/internal/model"
)

func genCourse(t *rapid.T) *model.Course {
	return &model.Course{
		ID:              "course",
		PassingScore:    rapid.IntRange(0, 100).Draw(t, "passingScore"),
		FirstPassReward: rapid.Int64Range(0, 1000).Draw(t, "firstPassReward"),
		BonusReward:     rapid.Int64Range(0, 1000).Draw(t, "bonusReward"),
		Published:       true,
	}
}

// TestRewardForFirstPassProperty: with no recorded pass the first-pass
// reward is paid, whatever today's count says.
func TestRewardForFirstPassProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		course := genCourse(t)
		limit := rapid.IntRange(0, 20).Draw(t, "limit")

		r := RewardFor(course, 0, 0, limit)
		if r.Coins != course.FirstPassReward || r.Kind != RewardFirstPass {
			t.Fatalf("expected first pass reward %d, got %+v", course.FirstPassReward, r)
		}
	})
}

// TestRewardForDailyCapProperty: after the first pass the bonus is paid
// while today's count is under the limit and nothing after.
func TestRewardForDailyCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		course := genCourse(t)
		limit := rapid.IntRange(0, 20).Draw(t, "limit")
		today := rapid.IntRange(0, 40).Draw(t, "today")
		total := rapid.IntRange(today+1, today+100).Draw(t, "total")

		r := RewardFor(course, total, today, limit)
		switch {
		case today < limit:
			if r.Coins != course.BonusReward || r.Kind != RewardBonus {
				t.Fatalf("expected bonus %d for today=%d limit=%d, got %+v", course.BonusReward, today, limit, r)
			}
		default:
			if r.Coins != 0 || r.Kind != RewardCapped {
				t.Fatalf("expected capped for today=%d limit=%d, got %+v", today, limit, r)
			}
		}
	})
}

// TestSubmitFirstPassOnceProperty drives passes of one course through
// ExamService over several days and checks that the first-pass reward is
// paid exactly once and the bonus never exceeds the daily limit.
func TestSubmitFirstPassOnceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newTestEnv()
		course := testCourse("c1")
		course.FirstPassReward = 1000 // distinguishable from the bonus
		e.db.addCourse(course)
		e.db.addUser("u1", 0)

		ctx := context.Background()
		days := rapid.IntRange(1, 3).Draw(t, "days")
		firstPaid := 0
		var want int64
		for d := 0; d < days; d++ {
			passes := rapid.IntRange(0, 9).Draw(t, "passes")
			bonuses := 0
			for i := 0; i < passes; i++ {
				res, err := e.exams.Submit(ctx, "u1", course.ID, 100)
				if err != nil {
					t.Fatalf("submit: %v", err)
				}
				switch res.CoinsAwarded {
				case course.FirstPassReward:
					firstPaid++
				case course.BonusReward:
					bonuses++
				case 0:
				default:
					t.Fatalf("unexpected reward %d", res.CoinsAwarded)
				}
				want += res.CoinsAwarded
				e.advance(time.Minute)
			}
			if bonuses > DefaultDailyBonusLimit {
				t.Fatalf("day %d paid %d bonuses, limit %d", d, bonuses, DefaultDailyBonusLimit)
			}
			e.advance(24 * time.Hour)
		}

		if firstPaid > 1 {
			t.Fatalf("first pass reward paid %d times", firstPaid)
		}
		if got := e.db.coins("u1"); got != want {
			t.Fatalf("balance %d, awarded %d", got, want)
		}
	})
}

func TestComputeReward_FirstPassThenBonus(t *testing.T) {
	e := newTestEnv()
	course := testCourse("c1")
	e.db.addCourse(course)
	e.db.addUser("u1", 0)
	ctx := context.Background()

	coins, err := e.policy.ComputeReward(ctx, "u1", &course)
	require.NoError(t, err)
	assert.Equal(t, int64(10), coins)

	res, err := e.exams.Submit(ctx, "u1", course.ID, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.CoinsAwarded)

	res, err = e.exams.Submit(ctx, "u1", course.ID, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CoinsAwarded)
	assert.Equal(t, int64(12), res.Balance)
}

func TestComputeReward_CappedAfterDailyLimit(t *testing.T) {
	e := newTestEnv()
	course := testCourse("c1")
	e.db.addCourse(course)
	e.db.addUser("u1", 0)
	ctx := context.Background()

	// one pass on an earlier day, then five today
	e.db.exams = append(e.db.exams, model.ExamResult{
		UserID: "u1", CourseID: course.ID, Score: 100, Passed: true,
		CreatedAt: testNow.Add(-48 * time.Hour),
	})
	for i := 0; i < DefaultDailyBonusLimit; i++ {
		e.db.exams = append(e.db.exams, model.ExamResult{
			UserID: "u1", CourseID: course.ID, Score: 100, Passed: true,
			CreatedAt: testNow.Add(-time.Duration(i+1) * time.Minute),
		})
	}

	coins, err := e.policy.ComputeReward(ctx, "u1", &course)
	require.NoError(t, err)
	assert.Zero(t, coins)

	res, err := e.exams.Submit(ctx, "u1", course.ID, 100)
	require.NoError(t, err)
	assert.Zero(t, res.CoinsAwarded)
	assert.True(t, res.DailyLimitReached)
	assert.Zero(t, e.db.coins("u1"))
	assert.Empty(t, e.db.ledger)
}

func TestComputeReward_ResetsAtDayBoundary(t *testing.T) {
	e := newTestEnv()
	course := testCourse("c1")
	e.db.addCourse(course)
	e.db.addUser("u1", 0)
	ctx := context.Background()

	for i := 0; i <= DefaultDailyBonusLimit; i++ {
		_, err := e.exams.Submit(ctx, "u1", course.ID, 100)
		require.NoError(t, err)
	}
	coins, err := e.policy.ComputeReward(ctx, "u1", &course)
	require.NoError(t, err)
	assert.Zero(t, coins)

	// 10:00 -> 00:00 next day
	e.advance(14 * time.Hour)
	coins, err = e.policy.ComputeReward(ctx, "u1", &course)
	require.NoError(t, err)
	assert.Equal(t, course.BonusReward, coins)
}

func TestComputeReward_QueryFailureIsTyped(t *testing.T) {
	e := newTestEnv()
	course := testCourse("c1")
	e.db.setFail("exams.CountPasses", errors.New("connection reset"))

	coins, err := e.policy.ComputeReward(context.Background(), "u1", &course)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Zero(t, coins)
}

func TestComputeReward_DoesNotWrite(t *testing.T) {
	e := newTestEnv()
	course := testCourse("c1")
	e.db.addUser("u1", 0)
	before := e.db.lockedSnapshot()

	_, err := e.policy.ComputeReward(context.Background(), "u1", &course)
	require.NoError(t, err)
	assert.Equal(t, before, e.db.lockedSnapshot())
}
