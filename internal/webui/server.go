// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed assets/*.svg
var assetsFS embed.FS

// Server renders the HTML frontend. All pages are composed from embedded
// templates; form posts are proxied to the backend and the resulting
// partial is swapped in by htmx.
type Server struct {
	client *Client
	tmpl   *template.Template
	log    *slog.Logger
}

// NewServer parses the embedded templates and returns a frontend server.
func NewServer(client *Client, log *slog.Logger) (*Server, error) {
	if client == nil {
		return nil, oops.Code("WEBUI_INVALID_DEPS").Errorf("backend client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, oops.Code("WEBUI_TEMPLATES_FAILED").Wrap(err)
	}

	return &Server{client: client, tmpl: tmpl, log: log}, nil
}

// Handler returns the frontend route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /about", s.handleAbout)
	mux.HandleFunc("GET /user/signupform", s.handleSignupForm)
	mux.HandleFunc("GET /user/loginform", s.handleLoginForm)
	mux.HandleFunc("POST /user/create", s.handleCreate)
	mux.HandleFunc("POST /user/login", s.handleLogin)
	mux.HandleFunc("GET /imgs/spin", s.serveAsset("assets/spin.svg"))
	mux.HandleFunc("GET /imgs/bars", s.serveAsset("assets/bars.svg"))
	return mux
}

// viewData is the single context type passed to every template.
type viewData struct {
	Username string
	Error    *viewError
}

// viewError carries the backend failure shown by the failure partial.
type viewError struct {
	StatusCode int
	Response   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", viewData{})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "about.html", viewData{})
}

// handleSignupForm shows the signup form, or the logged-in partial when the
// request already carries a session the backend recognizes.
func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	if username := s.sessionUsername(r); username != "" {
		s.render(w, r, "logged_in.html", viewData{Username: username})
		return
	}
	s.render(w, r, "signup_form.html", viewData{})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if username := s.sessionUsername(r); username != "" {
		s.render(w, r, "logged_in.html", viewData{Username: username})
		return
	}
	s.render(w, r, "login_form.html", viewData{})
}

// handleCreate proxies the signup to the backend. On success the backend's
// session cookie is copied onto the frontend response.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	email := r.FormValue("email")
	newsletter := r.FormValue("newsletter") != ""

	result, err := s.client.CreateUser(r.Context(), username, password, email, newsletter)
	if err != nil {
		s.log.ErrorContext(r.Context(), "signup call failed", "username", username, "error", err)
		s.render(w, r, "failure.html", viewData{Error: &viewError{Response: "backend unavailable"}})
		return
	}
	if !result.OK {
		s.render(w, r, "failure.html", viewData{Error: &viewError{
			StatusCode: result.StatusCode,
			Response:   result.Reason,
		}})
		return
	}

	setSessionCookie(w, result.Token)
	s.render(w, r, "success.html", viewData{Username: username})
}

// handleLogin proxies the login to the backend, forwarding any session
// cookie already held so the token stays stable across re-logins.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	existing := ""
	if c, err := r.Cookie("session_id"); err == nil {
		existing = c.Value
	}

	result, err := s.client.Login(r.Context(), username, password, existing)
	if err != nil {
		s.log.ErrorContext(r.Context(), "login call failed", "username", username, "error", err)
		s.render(w, r, "failure.html", viewData{Error: &viewError{Response: "backend unavailable"}})
		return
	}
	if !result.OK {
		s.render(w, r, "failure.html", viewData{Error: &viewError{
			StatusCode: result.StatusCode,
			Response:   result.Reason,
		}})
		return
	}

	setSessionCookie(w, result.Token)
	s.render(w, r, "logged_in.html", viewData{Username: username})
}

// sessionUsername resolves the request's session cookie through the
// backend. Any failure means "not logged in"; the frontend never blocks a
// page on backend trouble.
func (s *Server) sessionUsername(r *http.Request) string {
	c, err := r.Cookie("session_id")
	if err != nil || c.Value == "" {
		return ""
	}
	username, err := s.client.UsernameForSession(r.Context(), c.Value)
	if err != nil {
		s.log.ErrorContext(r.Context(), "session lookup failed", "error", err)
		return ""
	}
	return username
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data viewData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.ErrorContext(r.Context(), "template render failed", "template", name, "error", err)
	}
}

func (s *Server) serveAsset(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := assetsFS.ReadFile(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		//nolint:errcheck // asset write error means the client went away
		w.Write(body)
	}
}

func setSessionCookie(w http.ResponseWriter, token string) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}
