package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"edu-coin-engine/internal/model"
)

// ReportRepository handles user reports.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository instance.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Create stores a report at the given (trusted) time.
func (r *ReportRepository) Create(ctx context.Context, userID, reportType, message string, at time.Time) (*model.Report, error) {
	const query = `
		INSERT INTO reports (user_id, type, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, type, message, status, created_at
	`

	var rep model.Report
	err := executor(ctx, r.pool).QueryRow(ctx, query, userID, reportType, message, model.ReportStatusOpen, at).Scan(
		&rep.ID,
		&rep.UserID,
		&rep.Type,
		&rep.Message,
		&rep.Status,
		&rep.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	return &rep, nil
}

// CountBetween counts a user's reports with from <= created_at < to.
func (r *ReportRepository) CountBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reports
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	var n int
	if err := executor(ctx, r.pool).QueryRow(ctx, query, userID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}
