package gate

import (
	"crypto/subtle"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wires the authorization gate and distribution proxy into the
// HTTP surface: a PEP 503 style simple index plus download streaming.
type Server struct {
	auth     *Authorizer
	proxy    *Proxy
	sessions *SessionStore
	devToken string
}

// NewServer constructs a Server. devToken enables the /auth/dev
// endpoint when non-empty.
func NewServer(auth *Authorizer, proxy *Proxy, sessions *SessionStore, devToken string) *Server {
	return &Server{
		auth:     auth,
		proxy:    proxy,
		sessions: sessions,
		devToken: devToken,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handleHealth)
	r.Post("/auth/dev", s.handleDevSession)
	r.Get("/simple/", s.handlePackageIndex)
	r.Get("/simple/{package}/", s.handlePackageFiles)
	r.Get("/simple/{package}/{file}", s.handleDownload)

	return r
}

// loggingMiddleware logs each request with its status and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

// unauthorized answers 401 with a basic-auth challenge.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="pkggate"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// handleDevSession issues a developer session cookie in exchange for
// the configured bootstrap token. An OAuth2 login flow fronting the
// gateway would call SessionStore.Issue the same way.
func (s *Server) handleDevSession(w http.ResponseWriter, r *http.Request) {
	if s.devToken == "" {
		http.NotFound(w, r)
		return
	}

	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.devToken)) != 1 {
		unauthorized(w)
		return
	}

	token := s.sessions.Issue()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handlePackageIndex lists the packages visible to the principal.
func (s *Server) handlePackageIndex(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		unauthorized(w)
		return
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, name := range s.proxy.ListPackages(principal) {
		fmt.Fprintf(&b, "<a href=%q>%s</a><br/>",
			url.PathEscape(name)+"/", html.EscapeString(name))
	}
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}

// handlePackageFiles lists the files of one visible package.
func (s *Server) handlePackageFiles(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		unauthorized(w)
		return
	}

	pkg := chi.URLParam(r, "package")
	files, err := s.proxy.ListFiles(principal, pkg)
	if err != nil {
		// Invisible and nonexistent packages answer identically.
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, file := range files {
		fmt.Fprintf(&b, "<a href=%q>%s</a><br/>",
			url.PathEscape(file.Name), html.EscapeString(file.Name))
	}
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}

// handleDownload streams one file's bytes to the requester.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		unauthorized(w)
		return
	}

	pkg := chi.URLParam(r, "package")
	name := chi.URLParam(r, "file")

	stream, err := s.proxy.Open(r.Context(), principal, pkg, name)
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("distribution failure", "package", pkg, "file", name, "error", err)
		http.Error(w, "distribution failure", http.StatusBadGateway)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Warn("failed to close file stream", "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, stream); err != nil {
		// Headers are already written; all we can do is log.
		slog.Error("download aborted", "package", pkg, "file", name, "error", err)
	}
}
