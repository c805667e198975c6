package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"edu-coin-engine/internal/config"
	"edu-coin-engine/internal/pkg/lock"
	"edu-coin-engine/internal/service"
)

type contextKey string

const userIDKey contextKey = "userID"

// ErrInvalidToken is returned for a bearer token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator verifies identity provider tokens. The token subject is the
// acting user's id.
type Authenticator struct {
	secret []byte
	issuer string
	opts   []jwt.ParserOption
}

// NewAuthenticator creates an Authenticator for HS256 tokens signed with
// cfg.JWTSecret. Issuer and audience are checked when configured.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		opts:   opts,
	}
}

// Verify parses a token and returns its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Sign issues a token for userID. Used by tests and local tooling; in
// production tokens come from the identity provider.
func (a *Authenticator) Sign(userID string, ttl time.Duration, audience ...string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		Audience:  audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and puts the
// user id into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, service.ErrUnauthenticated)
			return
		}

		userID, err := a.Verify(token)
		if err != nil {
			log.Debug().
				Err(err).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Rejected bearer token")
			writeError(w, r, service.ErrUnauthenticated)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// OnePerUser lets a single economic request per user run at a time. With a
// zero wait a second concurrent request gets 429 at once; otherwise it may
// queue for up to wait before being rejected.
func OnePerUser(locks *lock.UserLock, wait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, r, service.ErrUnauthenticated)
				return
			}

			if wait <= 0 {
				if !locks.TryLock(userID) {
					rejectBusy(w, r, userID)
					return
				}
				defer locks.Unlock(userID)
				next.ServeHTTP(w, r)
				return
			}

			err := locks.WithLock(r.Context(), userID, wait, func() error {
				next.ServeHTTP(w, r)
				return nil
			})
			switch {
			case errors.Is(err, lock.ErrLockTimeout):
				rejectBusy(w, r, userID)
			case err != nil:
				// client went away while queued
				log.Debug().Err(err).Str("user_id", userID).Msg("Abandoned queued request")
			}
		})
	}
}

func rejectBusy(w http.ResponseWriter, r *http.Request, userID string) {
	log.Debug().
		Str("user_id", userID).
		Str("path", r.URL.Path).
		Msg("Rejected concurrent request")
	writeError(w, r, service.ErrBusy)
}

// Logging logs every request with its status and duration.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

// Recovery turns a panic in a handler into a 500 response. chi's
// middleware.Recoverer is not used because it writes a bare 500 and prints to
// stderr; clients expect the JSON error body and logs go through zerolog.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Interface("panic", rec).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Recovered from panic in handler")
				writeJSON(w, http.StatusInternalServerError, errorResponse{
					Success: false,
					Error:   "internal",
					Message: "Something went wrong, please try again.",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
