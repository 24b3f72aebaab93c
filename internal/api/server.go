package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"coinrush/internal/auth"
	"coinrush/internal/config"
	"coinrush/internal/leaderboard"
	"coinrush/internal/season"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

var seasonKeyRE = regexp.MustCompile(`^\d{6}$`)

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     *auth.SupabaseClient
	engine   *leaderboard.Engine
	machine  *season.Machine
	rollover *leaderboard.Rollover
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient *auth.SupabaseClient, engine *leaderboard.Engine, machine *season.Machine, rollover *leaderboard.Rollover) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     authClient,
		engine:   engine,
		machine:  machine,
		rollover: rollover,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/season", s.handleSeason)

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/leaderboard/rebuild", s.handleRebuild)
			r.Post("/season/lock", s.handleSeasonLock)
			r.Post("/season/close", s.handleSeasonClose)
			r.Post("/season/open", s.handleSeasonOpen)
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		if !s.isAdmin(user) {
			writeError(w, http.StatusForbidden, "not an admin")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) isAdmin(user auth.SupabaseUser) bool {
	for _, a := range s.cfg.AdminActors {
		if strings.EqualFold(a, user.Email) || a == user.ID {
			return true
		}
	}
	return false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleLeaderboard serves both the live board and closed-season snapshots.
// season=current (or absent) reads the live view, refreshing it when empty;
// season=YYYYMM reads that season's frozen snapshot.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, s.cfg.TopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))

	seasonKey := strings.TrimSpace(r.URL.Query().Get("season"))
	if seasonKey == "" || seasonKey == "current" {
		board, err := s.engine.Current(r.Context(), limit, actor)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
		return
	}
	if !seasonKeyRE.MatchString(seasonKey) {
		writeError(w, http.StatusBadRequest, "season must be 'current' or YYYYMM")
		return
	}
	board, err := s.engine.Closed(r.Context(), seasonKey, limit, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	st, err := s.machine.Current(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, s.cfg.TopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.engine.Refresh(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"season": v.Season, "topPlayers": v.TopPlayers})
}

func (s *Server) handleSeasonLock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Minutes == 0 {
		in.Minutes = season.DefaultLockMinutes
	}
	st, err := s.machine.EnterLock(r.Context(), in.Minutes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSeasonClose(w http.ResponseWriter, r *http.Request) {
	out, err := s.rollover.CloseCurrent(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeasonOpen(w http.ResponseWriter, r *http.Request) {
	out, err := s.rollover.OpenNewSeason(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// limitParam parses ?limit. Absent falls back to the configured default;
// a present value must be an integer and is clamped into [1, MaxLimit].
func limitParam(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		if def <= 0 {
			def = leaderboard.DefaultLimit
		}
		return leaderboard.ClampLimit(def), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	return leaderboard.ClampLimit(n), nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leaderboard.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
