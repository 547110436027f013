package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
)

type contextKey string

const currentUserKey contextKey = "currentUser"

// userCache defers access-token parsing until a handler actually asks for the
// user, and guarantees it happens at most once per request. The cache lives in
// the request context only, never across requests.
type userCache struct {
	once sync.Once
	load func() *models.User
	user *models.User
}

func (c *userCache) get() *models.User {
	c.once.Do(func() { c.user = c.load() })
	return c.user
}

// withCurrentUser plants a lazy current-user resolver into the request
// context. Handlers read it through currentUser(r).
func (s *Server) withCurrentUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := cookieValue(r, accessCookieName)
		cache := &userCache{load: func() *models.User { return s.service.CurrentUser(token) }}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), currentUserKey, cache)))
	})
}

// currentUser resolves the requester, or nil when unauthenticated. Safe to
// call repeatedly within one request.
func currentUser(r *http.Request) *models.User {
	cache, ok := r.Context().Value(currentUserKey).(*userCache)
	if !ok {
		return nil
	}
	return cache.get()
}

// refreshGate recovers page navigations whose access cookie expired while the
// refresh cookie is still good: it refreshes in-process, sets the new cookie
// pair and redirects the browser to the same URL so the page loads
// authenticated. Any failure falls through to the page unauthenticated.
func (s *Server) refreshGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookieValue(r, accessCookieName) != "" {
			next.ServeHTTP(w, r)
			return
		}
		refreshToken := cookieValue(r, refreshCookieName)
		if refreshToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		_, pair, err := s.service.Refresh(r.Context(), refreshToken)
		if err != nil {
			s.logger.Warn(r.Context(), "token refresh at gate failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		s.setAuthCookies(w, pair)
		http.Redirect(w, r, r.URL.RequestURI(), http.StatusTemporaryRedirect)
	})
}

// requireAdmin guards admin surfaces. Page routes redirect to the login form
// with a back-link; API routes answer 401.
func (s *Server) requireAdmin(redirect bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.service.EnsureAdmin(currentUser(r)); err != nil {
				if redirect {
					target := "/login?redirect_url=" + url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
				respondError(w, http.StatusUnauthorized, common.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// redirectIfAuthorized keeps signed-in users off the login and register pages.
func redirectIfAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
