package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// ExamRepository handles exam result persistence. Results are write-once.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository instance.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create records an exam result at the given (trusted) time. The id is
// generated by the database.
func (r *ExamRepository) Create(ctx context.Context, userID, courseID string, score int, passed bool, at time.Time) (*model.ExamResult, error) {
	const query = `
		INSERT INTO exam_results (user_id, course_id, score, passed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, course_id, score, passed, created_at
	`

	var res model.ExamResult
	err := executor(ctx, r.pool).QueryRow(ctx, query, userID, courseID, score, passed, at).Scan(
		&res.ID,
		&res.UserID,
		&res.CourseID,
		&res.Score,
		&res.Passed,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exam result: %w", err)
	}

	return &res, nil
}

// CountPasses counts passing results of a user for a course across all time.
func (r *ExamRepository) CountPasses(ctx context.Context, userID, courseID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM exam_results
		WHERE user_id = $1 AND course_id = $2 AND passed
	`

	var n int
	if err := executor(ctx, r.pool).QueryRow(ctx, query, userID, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passes: %w", err)
	}
	return n, nil
}

// CountPassesBetween counts passing results of a user for a course with
// from <= created_at < to.
func (r *ExamRepository) CountPassesBetween(ctx context.Context, userID, courseID string, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM exam_results
		WHERE user_id = $1 AND course_id = $2 AND passed
		  AND created_at >= $3
		  AND created_at < $4
	`

	var n int
	if err := executor(ctx, r.pool).QueryRow(ctx, query, userID, courseID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passes for day: %w", err)
	}
	return n, nil
}

// ListByUser returns a user's exam results, newest first.
func (r *ExamRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.ExamResult, error) {
	const query = `
		SELECT id, user_id, course_id, score, passed, created_at
		FROM exam_results
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := executor(ctx, r.pool).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam results: %w", err)
	}
	defer rows.Close()

	var results []*model.ExamResult
	for rows.Next() {
		var res model.ExamResult
		if err := rows.Scan(&res.ID, &res.UserID, &res.CourseID, &res.Score, &res.Passed, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exam result: %w", err)
		}
		results = append(results, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exam results: %w", err)
	}

	return results, nil
}
