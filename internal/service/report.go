package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/pkg/clock"
)

// Report limits.
const (
	DefaultReportDailyLimit = 20
	MaxReportLength         = 2000
)

// ReportService accepts suggestions and incident reports from users.
type ReportService struct {
	tx         Transactor
	users      UserStore
	reports    ReportStore
	calendar   *clock.Calendar
	dailyLimit int
}

// NewReportService creates a new ReportService instance. A limit below one
// falls back to DefaultReportDailyLimit.
func NewReportService(tx Transactor, users UserStore, reports ReportStore, calendar *clock.Calendar, dailyLimit int) *ReportService {
	if dailyLimit < 1 {
		dailyLimit = DefaultReportDailyLimit
	}
	return &ReportService{
		tx:         tx,
		users:      users,
		reports:    reports,
		calendar:   calendar,
		dailyLimit: dailyLimit,
	}
}

// Submit stores a report unless the user already sent dailyLimit reports
// today. Concurrent submissions by one user are serialized on the user row.
func (s *ReportService) Submit(ctx context.Context, userID, reportType, message string) (*model.Report, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	message = strings.TrimSpace(message)
	if !model.ValidReportType(reportType) || message == "" || utf8.RuneCountInString(message) > MaxReportLength {
		return nil, ErrInvalidReport
	}

	var rep *model.Report
	err := s.tx.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetForUpdate(ctx, userID); err != nil {
			return err
		}

		now, start, end, err := s.calendar.Today(ctx)
		if err != nil {
			return err
		}
		n, err := s.reports.CountBetween(ctx, userID, start, end)
		if err != nil {
			return err
		}
		if n >= s.dailyLimit {
			return ErrDailyLimitReached
		}

		rep, err = s.reports.Create(ctx, userID, reportType, message, now)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().
		Str("user_id", userID).
		Str("report_id", rep.ID.String()).
		Str("type", reportType).
		Msg("Report submitted")

	return rep, nil
}
