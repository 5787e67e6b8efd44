package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// UserStats is the result of GET /api/users/{id}/stats.
type UserStats struct {
	User *models.User     `json:"user"`
	Quiz models.QuizStats `json:"quiz"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.st.Open(r.Context())
	if err != nil {
		slog.Error("Server.healthHandler: store unavailable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse("Store unavailable"))
		return
	}
	sess.Close()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"store": "ok"}))
}

func (s *Server) userStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("Invalid user id"))
		return
	}

	sess, err := s.st.Open(r.Context())
	if err != nil {
		slog.Error("Server.userStatsHandler: failed to open store session", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse("Store unavailable"))
		return
	}
	defer sess.Close()

	u, err := sess.GetUser(r.Context(), id)
	if errors.Is(err, models.ErrUserNotFound) {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("User not found"))
		return
	}
	if err != nil {
		slog.Error("Server.userStatsHandler: failed to load user", "user_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Failed to load user"))
		return
	}
	qs, err := sess.QuizStats(r.Context(), u, r.URL.Query().Get("topic"))
	if err != nil {
		slog.Error("Server.userStatsHandler: failed to load quiz stats", "user_id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Failed to load quiz stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(UserStats{User: u, Quiz: qs}))
}

// bearerAuth rejects requests without the admin token. An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				slog.Warn("Server.bearerAuth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeJSONResponse(w, http.StatusUnauthorized, errorResponse("Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Server request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}
