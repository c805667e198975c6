// Package handler exposes the coin economy over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/model"
	"edu-coin-engine/internal/service"
)

// Accounts is the account API used by the handlers.
type Accounts interface {
	EnsureUser(ctx context.Context, userID, displayName, email string) (*model.User, bool, error)
	GetBalance(ctx context.Context, userID string) (*service.Balance, error)
}

// Exams is the exam submission API.
type Exams interface {
	Submit(ctx context.Context, userID, courseID string, score int) (*service.SubmitResult, error)
	Results(ctx context.Context, userID string, limit int) ([]*model.ExamResult, error)
}

// Coins is the coin ledger API.
type Coins interface {
	History(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error)
}

// Store is the redemption API.
type Store interface {
	RedeemItem(ctx context.Context, userID, itemID string) service.Outcome
	ListAvailable(ctx context.Context) ([]*model.StoreItem, error)
	ListRedeemed(ctx context.Context, userID string) ([]*model.UserRedemption, error)
}

// Reports is the report submission API.
type Reports interface {
	Submit(ctx context.Context, userID, reportType, message string) (*model.Report, error)
}

// Pinger checks that the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler implements the HTTP API.
type Handler struct {
	accounts Accounts
	exams    Exams
	coins    Coins
	store    Store
	reports  Reports
	db       Pinger
}

// NewHandler creates a new Handler instance.
func NewHandler(accounts Accounts, exams Exams, coins Coins, store Store, reports Reports, db Pinger) *Handler {
	return &Handler{
		accounts: accounts,
		exams:    exams,
		coins:    coins,
		store:    store,
		reports:  reports,
		db:       db,
	}
}

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type profileResponse struct {
	User    *model.User `json:"user"`
	Created bool        `json:"created"`
}

type submitRequest struct {
	Score *int `json:"score"`
}

type redeemRequest struct {
	ItemID string `json:"itemId"`
}

type reportRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, service.ErrBusy) {
		return http.StatusTooManyRequests
	}
	switch service.KindOf(err) {
	case service.KindNone:
		return http.StatusOK
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindInvalidArgument:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindPrecondition:
		return http.StatusPreconditionFailed
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   service.KindOf(err).String(),
		Message: service.Message(err),
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed request body: %v", service.ErrInvalidArgument, err)
	}
	return nil
}

// Profile creates the caller's account on first contact and refreshes the
// profile fields afterwards.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req profileRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, created, err := h.accounts.EnsureUser(r.Context(), userID, req.DisplayName, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, profileResponse{User: user, Created: created})
}

// Balance returns the caller's coins.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	bal, err := h.accounts.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// SubmitExam records the caller's score for a course and pays the reward.
func (h *Handler) SubmitExam(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	courseID := chi.URLParam(r, "courseID")

	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Score == nil {
		writeError(w, r, service.ErrInvalidScore)
		return
	}

	res, err := h.exams.Submit(r.Context(), userID, courseID, *req.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryLimit reads the optional ?limit parameter. Zero means the default.
func queryLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", service.ErrInvalidArgument)
	}
	return n, nil
}

// ExamResults returns the caller's exam results, newest first.
func (h *Handler) ExamResults(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := h.exams.Results(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*model.ExamResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// CoinHistory returns the caller's grant ledger, newest first.
func (h *Handler) CoinHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := h.coins.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*model.CoinTransaction{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// StoreItems lists the items that can be redeemed now.
func (h *Handler) StoreItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAvailable(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*model.StoreItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Redeemed lists the caller's redemptions.
func (h *Handler) Redeemed(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	recs, err := h.store.ListRedeemed(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*model.UserRedemption{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// RedeemItem buys one unit of an item for the caller. The user id always
// comes from the verified token.
func (h *Handler) RedeemItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req redeemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out := h.store.RedeemItem(r.Context(), userID, req.ItemID)
	if !out.Success {
		if statusFor(out.Err) == http.StatusServiceUnavailable {
			log.Error().
				Err(out.Err).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Redemption failed")
		}
		writeJSON(w, statusFor(out.Err), errorResponse{
			Success: false,
			Error:   service.KindOf(out.Err).String(),
			Message: out.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitReport stores a suggestion or incident report from the caller.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req reportRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rep, err := h.reports.Submit(r.Context(), userID, req.Type, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
