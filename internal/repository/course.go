package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// ErrCourseNotFound is returned when a course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// CourseRepository handles course persistence. Courses are authored
// elsewhere; the engine only reads their reward policy.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository instance.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// Create inserts a course. Used by seeding and tests.
func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	const query = `
		INSERT INTO courses (id, title, passing_score, first_pass_reward, bonus_reward, published)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := executor(ctx, r.pool).Exec(ctx, query,
		c.ID, c.Title, c.PassingScore, c.FirstPassReward, c.BonusReward, c.Published,
	)
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

// GetByID retrieves a course by ID.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*model.Course, error) {
	const query = `
		SELECT id, title, passing_score, first_pass_reward, bonus_reward, published
		FROM courses
		WHERE id = $1
	`

	var c model.Course
	err := executor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&c.PassingScore,
		&c.FirstPassReward,
		&c.BonusReward,
		&c.Published,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}
