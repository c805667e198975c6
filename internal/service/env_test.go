package service

import (
	"sync"
	"time"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/pkg/clock"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// testEnv wires every service to one in-memory store and a settable clock.
type testEnv struct {
	db *memDB

	mu  sync.Mutex
	now time.Time

	calendar    *clock.Calendar
	policy      *RewardPolicy
	coins       *CoinService
	exams       *ExamService
	redemptions *RedemptionService
	accounts    *AccountService
	reports     *ReportService
}

func newTestEnv() *testEnv {
	e := &testEnv{db: newMemDB(testNow), now: testNow}
	e.wire(clock.Func(e.clockNow))
	return e
}

// wire (re)builds the services on top of e.db, reading time from c.
func (e *testEnv) wire(c clock.Clock) {
	e.calendar = clock.NewCalendar(c, time.UTC)

	tx := e.db.tx()
	users := e.db.userStore()
	e.policy = NewRewardPolicy(e.db.examStore(), e.calendar, DefaultDailyBonusLimit)
	e.coins = NewCoinService(tx, users, e.db.ledgerStore())
	e.exams = NewExamService(tx, users, e.db.courseStore(), e.db.examStore(), e.coins, e.policy, e.calendar)
	e.redemptions = NewRedemptionService(tx, users, e.db.itemStore())
	e.accounts = NewAccountService(users, e.db.ledgerStore(), e.db.itemStore())
	e.reports = NewReportService(tx, users, e.db.reportStore(), e.calendar, DefaultReportDailyLimit)
}

func (e *testEnv) clockNow() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func testCourse(id string) model.Course {
	return model.Course{
		ID:              id,
		Title:           "Course " + id,
		PassingScore:    70,
		FirstPassReward: 10,
		BonusReward:     2,
		Published:       true,
	}
}
