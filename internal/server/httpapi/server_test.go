package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/dbx"
	"github.com/dgavrilenko/shopkeeper/internal/logging"
	"github.com/dgavrilenko/shopkeeper/internal/server/auth"
	"github.com/dgavrilenko/shopkeeper/internal/server/config"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
	"github.com/dgavrilenko/shopkeeper/internal/server/passwd"
	sessionsrepo "github.com/dgavrilenko/shopkeeper/internal/server/repositories/sessions"
	usersrepo "github.com/dgavrilenko/shopkeeper/internal/server/repositories/users"
	"github.com/dgavrilenko/shopkeeper/internal/server/services"
)

const testSecret = "k"

type fakeUsersRepo struct {
	createErr error
	getOut    *models.User
	getErr    error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = 1
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) Update(context.Context, *models.User) error { return nil }
func (f *fakeUsersRepo) Delete(context.Context, int64) error        { return nil }

type fakeSessionsRepo struct {
	getOut        *models.SessionWithUser
	getErr        error
	invalidateErr error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, userID int64, ip, userAgent string) (*models.Session, error) {
	return &models.Session{ID: 1, Token: "sess-tok", UserID: userID, Valid: true, IP: ip, UserAgent: userAgent}, nil
}

func (f *fakeSessionsRepo) GetByToken(ctx context.Context, token string) (*models.SessionWithUser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeSessionsRepo) Invalidate(ctx context.Context, token string) error {
	return f.invalidateErr
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSessionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.s }

type testEnv struct {
	server *Server
	mock   sqlmock.Sqlmock
	users  *fakeUsersRepo
	sess   *fakeSessionsRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := &fakeUsersRepo{}
	sess := &fakeSessionsRepo{}
	cfg := &config.Config{
		SecretKey:                    testSecret,
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := services.NewSessionService(db, &fakeRepoManager{u: users, s: sess}, cfg, log)

	return &testEnv{
		server: NewServer("localhost:0", svc, log),
		mock:   mock,
		users:  users,
		sess:   sess,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.router().ServeHTTP(rec, req)
	return rec
}

func accessCookie(t *testing.T, user *models.User) *http.Cookie {
	t.Helper()
	tok, err := auth.SignAccessToken(user, "sess-tok", []byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken error: %v", err)
	}
	return &http.Cookie{Name: accessCookieName, Value: tok}
}

func refreshCookie(t *testing.T) *http.Cookie {
	t.Helper()
	tok, err := auth.SignRefreshToken("sess-tok", []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("SignRefreshToken error: %v", err)
	}
	return &http.Cookie{Name: refreshCookieName, Value: tok}
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func sessionForUser() *models.SessionWithUser {
	return &models.SessionWithUser{
		Session:   models.Session{ID: 1, Token: "sess-tok", UserID: 7, Valid: true},
		UserName:  "Alice",
		UserEmail: "alice@example.com",
		UserRole:  models.RoleUser,
	}
}

// --- /api/register ---

func TestRegister_Success(t *testing.T) {
	e := newTestEnv(t)
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()

	body := `{"name":"Alice","email":"alice@example.com","password":"long-enough-pw"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cookieByName(rec, accessCookieName) == nil || cookieByName(rec, refreshCookieName) == nil {
		t.Fatalf("expected both auth cookies, got %v", rec.Result().Cookies())
	}
	if strings.Contains(rec.Body.String(), "HashedPassword") && strings.Contains(rec.Body.String(), "argon2") {
		t.Fatalf("response leaks password hash: %s", rec.Body.String())
	}
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)

	body := `{"name":"","email":"alice@example.com","password":"long-enough-pw"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	e.users.createErr = common.ErrDuplicateEmail
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()

	body := `{"name":"Bob","email":"taken@example.com","password":"long-enough-pw"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

// --- /api/login ---

func TestLogin_Success(t *testing.T) {
	e := newTestEnv(t)
	hash, err := passwd.Hash("correct password")
	if err != nil {
		t.Fatalf("passwd.Hash error: %v", err)
	}
	e.users.getOut = &models.User{ID: 7, Name: "Alice", Email: "alice@example.com", Role: models.RoleUser, HashedPassword: hash}

	body := `{"email":"alice@example.com","password":"correct password"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cookieByName(rec, accessCookieName) == nil {
		t.Fatal("expected access cookie on login")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.users.getErr = common.ErrNotFound

	body := `{"email":"ghost@example.com","password":"whatever pw"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "incorrect email or password") {
		t.Fatalf("expected the generic credentials message, got %s", rec.Body.String())
	}
}

func TestLogin_LookupFailureIs500NotCredentialsError(t *testing.T) {
	e := newTestEnv(t)
	e.users.getErr = errors.New("db down")

	body := `{"email":"alice@example.com","password":"correct password"}`
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when the credential lookup itself fails", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "incorrect email or password") {
		t.Fatalf("an internal failure must not masquerade as bad credentials: %s", rec.Body.String())
	}
}

// --- /api/logout ---

func TestLogout_ClearsCookies(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, name := range []string{accessCookieName, refreshCookieName} {
		c := cookieByName(rec, name)
		if c == nil || c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", name, c)
		}
	}
}

func TestLogout_NoCookie(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// --- /api/refresh-token ---

func TestRefreshToken_MissingCookie(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/refresh-token", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRefreshToken_Success(t *testing.T) {
	e := newTestEnv(t)
	e.sess.getOut = sessionForUser()

	req := httptest.NewRequest(http.MethodPost, "/api/refresh-token", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Refreshed token successfully") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if cookieByName(rec, accessCookieName) == nil {
		t.Fatal("expected a fresh access cookie")
	}
}

func TestRefreshToken_FailureStillAnswers200(t *testing.T) {
	e := newTestEnv(t)
	e.sess.getErr = common.ErrNotFound

	req := httptest.NewRequest(http.MethodPost, "/api/refresh-token", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when the exchange fails", rec.Code)
	}
	if cookieByName(rec, accessCookieName) != nil {
		t.Fatal("no cookies must be set when the exchange fails")
	}
}

// --- /api/me ---

func TestMe(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unauthenticated /api/me: status = %d, want 204", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(accessCookie(t, &models.User{ID: 7, Name: "Alice", Email: "alice@example.com", Role: models.RoleUser}))
	rec = e.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated /api/me: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "alice@example.com") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

// --- refresh gate ---

func TestRefreshGate_RedirectsAfterRefresh(t *testing.T) {
	e := newTestEnv(t)
	e.sess.getOut = sessionForUser()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("Location = %q, want the original URL", loc)
	}
	if cookieByName(rec, accessCookieName) == nil {
		t.Fatal("expected a fresh access cookie before the redirect")
	}
}

func TestRefreshGate_PassThroughWhenRefreshFails(t *testing.T) {
	e := newTestEnv(t)
	e.sess.getErr = common.ErrNotFound

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want the page to load unauthenticated", rec.Code)
	}
}

func TestRefreshGate_SkipsWhenAccessCookiePresent(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(accessCookie(t, &models.User{ID: 7, Email: "a@example.com", Role: models.RoleUser}))
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without a redirect", rec.Code)
	}
}

func TestRefreshGate_NotAppliedToAPI(t *testing.T) {
	e := newTestEnv(t)
	e.sess.getOut = sessionForUser()

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(refreshCookie(t))
	rec := e.do(t, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, API routes must not redirect", rec.Code)
	}
}

// --- admin guard ---

func TestAdminPage_RedirectsToLoginWithBackLink(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?redirect_url=%2Fadmin" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestAdminPage_AllowsAdmin(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(accessCookie(t, &models.User{ID: 1, Name: "Root", Email: "root@example.com", Role: models.RoleAdmin}))
	rec := e.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAdminAPI_401ForNonAdmin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/ping", nil)
	req.AddCookie(accessCookie(t, &models.User{ID: 7, Email: "a@example.com", Role: models.RoleUser}))
	rec = e.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-admin: status = %d, want 401", rec.Code)
	}
}

func TestLoginPage_RedirectsAuthorizedUser(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(accessCookie(t, &models.User{ID: 7, Email: "a@example.com", Role: models.RoleUser}))
	rec := e.do(t, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

// --- current-user memoization ---

func TestUserCache_LoadsOnce(t *testing.T) {
	calls := 0
	cache := &userCache{load: func() *models.User {
		calls++
		return &models.User{ID: 1}
	}}

	for i := 0; i < 3; i++ {
		if u := cache.get(); u == nil || u.ID != 1 {
			t.Fatalf("get() = %+v", u)
		}
	}
	if calls != 1 {
		t.Fatalf("load ran %d times, want 1", calls)
	}
}
