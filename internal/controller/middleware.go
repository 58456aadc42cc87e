package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
)

type ctxKey int

const userKey ctxKey = iota

const (
	HeaderUserID   = "X-User-ID"
	HeaderTimezone = "X-Timezone"
)

// RequireUser takes the caller identity from X-User-ID, which the upstream
// authentication layer sets. Requests without it are rejected.
func RequireUser(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				log.Warn("missing caller identity", "path", r.URL.Path)
				writeError(w, r, log, appErrors.ErrUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the caller set by RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// callerLocation resolves X-Timezone, falling back to def.
func callerLocation(r *http.Request, def *time.Location) (*time.Location, error) {
	name := strings.TrimSpace(r.Header.Get(HeaderTimezone))
	if name == "" {
		return def, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.ErrInvalidInput, "unknown time zone "+name)
	}
	return loc, nil
}

// RequestLogger logs one line per request.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
