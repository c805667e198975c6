package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/repository"
)

// memDB is an in-memory stand-in for the Postgres ledger store. A
// transaction holds the global mutex for its whole run and restores a
// snapshot when fn fails, which gives the same all-or-nothing behaviour as
// a serializable transaction.
type memDB struct {
	mu sync.Mutex

	users    map[string]model.User
	courses  map[string]model.Course
	exams    []model.ExamResult
	ledger   []model.CoinTransaction
	items    map[string]model.StoreItem
	userReds []model.UserRedemption
	itemReds []model.ItemRedemption
	reports  []model.Report

	now    time.Time
	nextID int64

	// fail makes the named method return an error.
	fail map[string]error
}

type memTxKey struct{}

func newMemDB(now time.Time) *memDB {
	return &memDB{
		users:   make(map[string]model.User),
		courses: make(map[string]model.Course),
		items:   make(map[string]model.StoreItem),
		now:     now,
		fail:    make(map[string]error),
	}
}

func (db *memDB) tx() *memTx               { return &memTx{db: db} }
func (db *memDB) userStore() *memUsers     { return &memUsers{db} }
func (db *memDB) courseStore() *memCourses { return &memCourses{db} }
func (db *memDB) examStore() *memExams     { return &memExams{db} }
func (db *memDB) ledgerStore() *memLedger  { return &memLedger{db} }
func (db *memDB) itemStore() *memItems     { return &memItems{db} }
func (db *memDB) reportStore() *memReports { return &memReports{db} }

// do runs fn under the mutex unless ctx is inside a transaction that
// already holds it.
func (db *memDB) do(ctx context.Context, method string, fn func() error) error {
	if ctx.Value(memTxKey{}) == nil {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	if err := db.fail[method]; err != nil {
		return err
	}
	return fn()
}

func (db *memDB) setFail(method string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail[method] = err
}

func (db *memDB) addUser(id string, coins int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = model.User{ID: id, Coins: coins, CreatedAt: db.now, UpdatedAt: db.now}
}

func (db *memDB) addCourse(c model.Course) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.courses[c.ID] = c
}

func (db *memDB) addItem(item model.StoreItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.items[item.ID] = item
}

func (db *memDB) coins(id string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.users[id].Coins
}

func (db *memDB) item(id string) model.StoreItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.items[id]
}

type memSnapshot struct {
	users    map[string]model.User
	courses  map[string]model.Course
	exams    []model.ExamResult
	ledger   []model.CoinTransaction
	items    map[string]model.StoreItem
	userReds []model.UserRedemption
	itemReds []model.ItemRedemption
	reports  []model.Report
}

// snapshot must be called with the mutex held.
func (db *memDB) snapshot() memSnapshot {
	s := memSnapshot{
		users:    make(map[string]model.User, len(db.users)),
		courses:  make(map[string]model.Course, len(db.courses)),
		items:    make(map[string]model.StoreItem, len(db.items)),
		exams:    append([]model.ExamResult(nil), db.exams...),
		ledger:   append([]model.CoinTransaction(nil), db.ledger...),
		userReds: append([]model.UserRedemption(nil), db.userReds...),
		itemReds: append([]model.ItemRedemption(nil), db.itemReds...),
		reports:  append([]model.Report(nil), db.reports...),
	}
	for k, v := range db.users {
		s.users[k] = v
	}
	for k, v := range db.courses {
		s.courses[k] = v
	}
	for k, v := range db.items {
		s.items[k] = v
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.users = s.users
	db.courses = s.courses
	db.items = s.items
	db.exams = s.exams
	db.ledger = s.ledger
	db.userReds = s.userReds
	db.itemReds = s.itemReds
	db.reports = s.reports
}

// lockedSnapshot takes a snapshot for before/after comparisons in tests.
func (db *memDB) lockedSnapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.snapshot()
}

type memTx struct {
	db *memDB
}

func (t *memTx) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	snap := t.db.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memUsers struct{ db *memDB }

func (s *memUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	var out *model.User
	err := s.db.do(ctx, "users.GetByID", func() error {
		u, ok := s.db.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (s *memUsers) GetForUpdate(ctx context.Context, id string) (*model.User, error) {
	var out *model.User
	err := s.db.do(ctx, "users.GetForUpdate", func() error {
		u, ok := s.db.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (s *memUsers) GetOrCreate(ctx context.Context, id, displayName, email string) (*model.User, bool, error) {
	var (
		out     *model.User
		created bool
	)
	err := s.db.do(ctx, "users.GetOrCreate", func() error {
		u, ok := s.db.users[id]
		if !ok {
			u = model.User{ID: id, DisplayName: displayName, Email: email, CreatedAt: s.db.now, UpdatedAt: s.db.now}
			s.db.users[id] = u
			created = true
		}
		out = &u
		return nil
	})
	return out, created, err
}

func (s *memUsers) UpdateProfile(ctx context.Context, id, displayName, email string) error {
	return s.db.do(ctx, "users.UpdateProfile", func() error {
		u, ok := s.db.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		u.DisplayName, u.Email = displayName, email
		s.db.users[id] = u
		return nil
	})
}

func (s *memUsers) AddCoins(ctx context.Context, id string, amount int64) (int64, error) {
	var coins int64
	err := s.db.do(ctx, "users.AddCoins", func() error {
		u, ok := s.db.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		u.Coins += amount
		s.db.users[id] = u
		coins = u.Coins
		return nil
	})
	return coins, err
}

func (s *memUsers) DebitCoins(ctx context.Context, id string, amount int64) (int64, error) {
	var coins int64
	err := s.db.do(ctx, "users.DebitCoins", func() error {
		u, ok := s.db.users[id]
		if !ok {
			return repository.ErrUserNotFound
		}
		if u.Coins < amount {
			return repository.ErrInsufficientBalance
		}
		u.Coins -= amount
		s.db.users[id] = u
		coins = u.Coins
		return nil
	})
	return coins, err
}

type memCourses struct{ db *memDB }

func (s *memCourses) GetByID(ctx context.Context, id string) (*model.Course, error) {
	var out *model.Course
	err := s.db.do(ctx, "courses.GetByID", func() error {
		c, ok := s.db.courses[id]
		if !ok {
			return repository.ErrCourseNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

type memExams struct{ db *memDB }

func (s *memExams) CountPasses(ctx context.Context, userID, courseID string) (int, error) {
	var n int
	err := s.db.do(ctx, "exams.CountPasses", func() error {
		for _, r := range s.db.exams {
			if r.UserID == userID && r.CourseID == courseID && r.Passed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *memExams) CountPassesBetween(ctx context.Context, userID, courseID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.do(ctx, "exams.CountPassesBetween", func() error {
		for _, r := range s.db.exams {
			if r.UserID == userID && r.CourseID == courseID && r.Passed &&
				!r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *memExams) Create(ctx context.Context, userID, courseID string, score int, passed bool, at time.Time) (*model.ExamResult, error) {
	var out *model.ExamResult
	err := s.db.do(ctx, "exams.Create", func() error {
		r := model.ExamResult{
			ID:        uuid.New(),
			UserID:    userID,
			CourseID:  courseID,
			Score:     score,
			Passed:    passed,
			CreatedAt: at,
		}
		s.db.exams = append(s.db.exams, r)
		out = &r
		return nil
	})
	return out, err
}

func (s *memExams) ListByUser(ctx context.Context, userID string, limit int) ([]*model.ExamResult, error) {
	var out []*model.ExamResult
	err := s.db.do(ctx, "exams.ListByUser", func() error {
		for i := len(s.db.exams) - 1; i >= 0 && len(out) < limit; i-- {
			if r := s.db.exams[i]; r.UserID == userID {
				out = append(out, &r)
			}
		}
		return nil
	})
	return out, err
}

// memClock reads the time through the store like the database clock does,
// so outside the caller's transaction it waits for the store lock.
type memClock struct{ db *memDB }

func (c memClock) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := c.db.do(ctx, "clock.Now", func() error {
		now = c.db.now
		return nil
	})
	return now, err
}

type memLedger struct{ db *memDB }

func (s *memLedger) Create(ctx context.Context, userID, courseID string, coinsAwarded int64, at time.Time) (*model.CoinTransaction, error) {
	var out *model.CoinTransaction
	err := s.db.do(ctx, "ledger.Create", func() error {
		s.db.nextID++
		rec := model.CoinTransaction{
			ID:           s.db.nextID,
			UserID:       userID,
			CourseID:     courseID,
			CoinsAwarded: coinsAwarded,
			CreatedAt:    at,
		}
		s.db.ledger = append(s.db.ledger, rec)
		out = &rec
		return nil
	})
	return out, err
}

func (s *memLedger) GetByUserID(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	var out []*model.CoinTransaction
	err := s.db.do(ctx, "ledger.GetByUserID", func() error {
		for i := len(s.db.ledger) - 1; i >= 0 && len(out) < limit; i-- {
			if rec := s.db.ledger[i]; rec.UserID == userID {
				out = append(out, &rec)
			}
		}
		return nil
	})
	return out, err
}

func (s *memLedger) SumByUserID(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.do(ctx, "ledger.SumByUserID", func() error {
		for _, rec := range s.db.ledger {
			if rec.UserID == userID {
				total += rec.CoinsAwarded
			}
		}
		return nil
	})
	return total, err
}

type memItems struct{ db *memDB }

func (s *memItems) GetItem(ctx context.Context, id string) (*model.StoreItem, error) {
	var out *model.StoreItem
	err := s.db.do(ctx, "items.GetItem", func() error {
		item, ok := s.db.items[id]
		if !ok {
			return repository.ErrItemNotFound
		}
		out = &item
		return nil
	})
	return out, err
}

func (s *memItems) GetItemForUpdate(ctx context.Context, id string) (*model.StoreItem, error) {
	var out *model.StoreItem
	err := s.db.do(ctx, "items.GetItemForUpdate", func() error {
		item, ok := s.db.items[id]
		if !ok {
			return repository.ErrItemNotFound
		}
		out = &item
		return nil
	})
	return out, err
}

func (s *memItems) ListAvailable(ctx context.Context) ([]*model.StoreItem, error) {
	var out []*model.StoreItem
	err := s.db.do(ctx, "items.ListAvailable", func() error {
		for _, item := range s.db.items {
			if item.Available && item.Stock > 0 {
				item := item
				out = append(out, &item)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Price != out[j].Price {
				return out[i].Price < out[j].Price
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

func (s *memItems) UpdateStock(ctx context.Context, id string, stock int, available bool) error {
	return s.db.do(ctx, "items.UpdateStock", func() error {
		item, ok := s.db.items[id]
		if !ok {
			return repository.ErrItemNotFound
		}
		if available && stock <= 0 {
			return fmt.Errorf("check constraint: item %s available with stock %d", id, stock)
		}
		item.Stock, item.Available = stock, available
		s.db.items[id] = item
		return nil
	})
}

func (s *memItems) NewRedemptionStamp(ctx context.Context) (uuid.UUID, time.Time, error) {
	var (
		id uuid.UUID
		at time.Time
	)
	err := s.db.do(ctx, "items.NewRedemptionStamp", func() error {
		id, at = uuid.New(), s.db.now
		return nil
	})
	return id, at, err
}

func (s *memItems) CreateUserRedemption(ctx context.Context, rec *model.UserRedemption) error {
	return s.db.do(ctx, "items.CreateUserRedemption", func() error {
		s.db.userReds = append(s.db.userReds, *rec)
		return nil
	})
}

func (s *memItems) CreateItemRedemption(ctx context.Context, rec *model.ItemRedemption) error {
	return s.db.do(ctx, "items.CreateItemRedemption", func() error {
		s.db.itemReds = append(s.db.itemReds, *rec)
		return nil
	})
}

func (s *memItems) ListUserRedemptions(ctx context.Context, userID string) ([]*model.UserRedemption, error) {
	var out []*model.UserRedemption
	err := s.db.do(ctx, "items.ListUserRedemptions", func() error {
		for i := len(s.db.userReds) - 1; i >= 0; i-- {
			if rec := s.db.userReds[i]; rec.UserID == userID {
				out = append(out, &rec)
			}
		}
		return nil
	})
	return out, err
}

func (s *memItems) SumSpentByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.do(ctx, "items.SumSpentByUser", func() error {
		for _, rec := range s.db.userReds {
			if rec.UserID == userID {
				total += rec.Price
			}
		}
		return nil
	})
	return total, err
}

type memReports struct{ db *memDB }

func (s *memReports) Create(ctx context.Context, userID, reportType, message string, at time.Time) (*model.Report, error) {
	var out *model.Report
	err := s.db.do(ctx, "reports.Create", func() error {
		rep := model.Report{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      reportType,
			Message:   message,
			Status:    model.ReportStatusOpen,
			CreatedAt: at,
		}
		s.db.reports = append(s.db.reports, rep)
		out = &rep
		return nil
	})
	return out, err
}

func (s *memReports) CountBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.do(ctx, "reports.CountBetween", func() error {
		for _, rep := range s.db.reports {
			if rep.UserID == userID && !rep.CreatedAt.Before(from) && rep.CreatedAt.Before(to) {
				n++
			}
		}
		return nil
	})
	return n, err
}
