// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the account and session operations over HTTP.
// Responses are JSON; login and signup set the session token as an
// HttpOnly cookie.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samber/oops"

	"github.com/gatehouseapp/gatehouse/internal/identity"
	"github.com/gatehouseapp/gatehouse/internal/observability"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session_id"

// Server serves the account/session HTTP API on top of the identity service.
type Server struct {
	svc     *identity.Service
	metrics *observability.Metrics
	log     *slog.Logger
}

// NewServer creates an API server. metrics may be nil; request counters are
// then skipped.
func NewServer(svc *identity.Service, metrics *observability.Metrics, log *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTPAPI_INVALID_DEPS").Errorf("identity service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, metrics: metrics, log: log}, nil
}

// Handler returns the route table for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/create", s.instrument("/user/create", s.handleCreateUser))
	mux.HandleFunc("POST /user/login", s.instrument("/user/login", s.handleLogin))
	mux.HandleFunc("GET /user/delete", s.instrument("/user/delete", s.handleDeleteUser))
	mux.HandleFunc("GET /user/get_by_username", s.instrument("/user/get_by_username", s.handleGetByUsername))
	mux.HandleFunc("GET /user/get_by_session_id", s.instrument("/user/get_by_session_id", s.handleGetBySessionID))
	mux.HandleFunc("GET /user/count", s.instrument("/user/count", s.handleCount))
	return mux
}

// userPayload is the public view of an account. The password hash never
// leaves the backend.
type userPayload struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Newsletter bool   `json:"newsletter"`
}

func publicUser(a *identity.Account) *userPayload {
	if a == nil {
		return nil
	}
	return &userPayload{
		UserID:     a.UserID,
		Username:   a.Username,
		Email:      a.Email,
		Newsletter: a.Newsletter,
	}
}

// userResult is the envelope for lookup and delete responses.
type userResult struct {
	Success bool         `json:"success"`
	Reason  string       `json:"reason"`
	User    *userPayload `json:"user,omitempty"`
}

// handleCreateUser registers an account and logs it in. The session token
// is set as a cookie on success; the body is the JSON-encoded failure
// reason (empty on success).
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	email := r.FormValue("email")
	newsletter := parseNewsletter(r.FormValue("newsletter"))

	token, err := s.svc.CreateAccount(r.Context(), username, password, email, newsletter)
	if err != nil {
		s.log.ErrorContext(r.Context(), "create user failed", "username", username, "error", err)
		writeJSON(w, statusFor(err), err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.SignupsTotal.Inc()
	}
	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, "")
}

// handleLogin authenticates and sets the session cookie. A request already
// carrying a session token keeps it unchanged; re-login never rotates
// tokens.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	token := requestSession(r)
	if token == "" {
		var err error
		token, err = s.svc.CreateSession(r.Context(), username, password)
		if err != nil {
			s.log.ErrorContext(r.Context(), "login failed", "username", username, "error", err)
			s.recordLogin(loginOutcome(err))
			status := statusFor(err)
			if errors.Is(err, identity.ErrUserNotFound) {
				// Login does not disclose whether the username or the
				// password was wrong at the status level.
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, err.Error())
			return
		}
	}

	s.recordLogin("ok")
	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, "")
}

// handleDeleteUser removes an account by username. The account's session,
// if any, is left behind.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")

	if err := s.svc.DeleteAccount(r.Context(), username); err != nil {
		s.log.ErrorContext(r.Context(), "delete user failed", "username", username, "error", err)
		writeJSON(w, statusFor(err), userResult{Success: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, userResult{Success: true})
}

func (s *Server) handleGetByUsername(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")

	account, err := s.svc.GetAccount(r.Context(), username)
	if err != nil {
		writeJSON(w, statusFor(err), userResult{Success: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, userResult{Success: true, User: publicUser(account)})
}

// handleGetBySessionID resolves a session token to its user. An unknown
// token is an expected case: 200 with a null user, not an error status.
func (s *Server) handleGetBySessionID(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("session_id")

	account, err := s.svc.ResolveSession(r.Context(), token)
	if err != nil {
		s.log.ErrorContext(r.Context(), "resolve session failed", "error", err)
		writeJSON(w, statusFor(err), userResult{Success: false, Reason: err.Error()})
		return
	}
	if account == nil {
		writeJSON(w, http.StatusOK, userResult{Success: false, Reason: "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, userResult{Success: true, User: publicUser(account)})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.CountAccounts(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), userResult{Success: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// instrument wraps a handler to record the route/status request counter.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	}
}

func (s *Server) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestSession extracts a session token already carried by the request,
// either as a cookie or an explicit parameter. The literal "none" means
// absent.
func requestSession(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" && c.Value != "none" {
		return c.Value
	}
	if v := r.FormValue("session_id"); v != "" && v != "none" {
		return v
	}
	return ""
}

func parseNewsletter(v string) bool {
	return v == "True" || v == "true" || v == "1" || v == "on"
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, identity.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrInvalidUsername):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
