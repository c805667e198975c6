package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/pkg/clock"
)

// SubmitResult is what a user gets back after submitting an exam.
type SubmitResult struct {
	Result            *model.ExamResult `json:"result"`
	CoinsAwarded      int64             `json:"coinsAwarded"`
	Balance           int64             `json:"balance"`
	DailyLimitReached bool              `json:"dailyLimitReached"`
}

// ExamService records exam results and pays out their rewards.
type ExamService struct {
	tx       Transactor
	users    UserStore
	courses  CourseStore
	exams    ExamStore
	coins    *CoinService
	policy   *RewardPolicy
	calendar *clock.Calendar
}

// NewExamService creates a new ExamService instance.
func NewExamService(
	tx Transactor,
	users UserStore,
	courses CourseStore,
	exams ExamStore,
	coins *CoinService,
	policy *RewardPolicy,
	calendar *clock.Calendar,
) *ExamService {
	return &ExamService{
		tx:       tx,
		users:    users,
		courses:  courses,
		exams:    exams,
		coins:    coins,
		policy:   policy,
		calendar: calendar,
	}
}

// Submit records a score for a course and grants the reward it earns.
//
// The reward is decided from the passes recorded before this one. The user
// row is locked for the whole transaction, so two concurrent submissions for
// the same user are decided one after the other: the first-pass reward is
// paid once and the daily cap holds. The exam result, the balance change and
// the ledger entry commit together or not at all.
func (s *ExamService) Submit(ctx context.Context, userID, courseID string, score int) (*SubmitResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if courseID == "" {
		return nil, ErrCourseNotFound
	}
	if score < 0 || score > 100 {
		return nil, ErrInvalidScore
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, translate(err)
	}
	if !course.Published {
		return nil, ErrCourseNotFound
	}
	passed := score >= course.PassingScore

	var out *SubmitResult
	err = s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		user, err := s.users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		now, err := s.calendar.Now(ctx)
		if err != nil {
			return err
		}

		var reward Reward
		if passed {
			if reward, err = s.policy.Evaluate(ctx, userID, course, now); err != nil {
				return err
			}
		}

		result, err := s.exams.Create(ctx, userID, course.ID, score, passed, now)
		if err != nil {
			return err
		}

		out = &SubmitResult{
			Result:            result,
			Balance:           user.Coins,
			DailyLimitReached: reward.Kind == RewardCapped,
		}
		if reward.Coins <= 0 {
			return nil
		}

		balance, _, err := s.coins.Grant(ctx, userID, course.ID, reward.Coins, now)
		if err != nil {
			return err
		}
		out.CoinsAwarded = reward.Coins
		out.Balance = balance
		return nil
	})
	if err != nil {
		err = translate(err)
		if !errors.Is(err, ErrNotFound) {
			log.Error().
				Err(err).
				Str("user_id", userID).
				Str("course_id", courseID).
				Msg("Exam submission failed")
		}
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("course_id", courseID).
		Int("score", score).
		Bool("passed", passed).
		Int64("coins_awarded", out.CoinsAwarded).
		Msg("Exam submitted")

	return out, nil
}

// Results returns the user's most recent exam results, newest first.
func (s *ExamService) Results(ctx context.Context, userID string, limit int) ([]*model.ExamResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	results, err := s.exams.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return results, nil
}
