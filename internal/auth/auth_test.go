package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("Hash() returned the plaintext")
	}
	if err := h.Compare(hash, "correct horse"); err != nil {
		t.Errorf("Compare(correct) error = %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Compare(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	if err := h.Compare("not-a-hash", "x"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Compare(malformed hash) error = %v, want non-credential error", err)
	}
}

func testSessionStore(t *testing.T, store SessionStore) {
	ctx := context.Background()
	s := &Session{ID: uuid.NewString(), AccountID: uuid.New(), Role: models.RoleCashier, ExpiresAt: time.Now().Add(time.Minute)}

	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccountID != s.AccountID || got.Role != s.Role {
		t.Errorf("Get() = %+v, want %+v", got, s)
	}
	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore(t *testing.T) {
	testSessionStore(t, NewMemorySessionStore())
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	s := &Session{ID: "s1", ExpiresAt: now.Add(time.Minute)}
	_ = store.Create(context.Background(), s)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := store.Get(context.Background(), "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(expired) error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("FACE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FACE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	testSessionStore(t, NewRedisSessionStore(client))
}

func newManager(t *testing.T) (*SessionManager, *MemorySessionStore) {
	t.Helper()
	store := NewMemorySessionStore()
	m, err := NewSessionManager(store, "test-secret", time.Hour, false)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	return m, store
}

func loginCookie(t *testing.T, m *SessionManager, acct *models.Account) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if _, err := m.Login(context.Background(), rec, acct); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("Login() did not set the session cookie")
	return nil
}

func TestNewSessionManager_RequiresSecret(t *testing.T) {
	if _, err := NewSessionManager(NewMemorySessionStore(), "", time.Hour, false); err == nil {
		t.Error("NewSessionManager() expected error for empty secret")
	}
}

func TestSessionManager_RoundTrip(t *testing.T) {
	m, _ := newManager(t)
	acct := &models.Account{ID: uuid.New(), Username: "boss", Role: models.RoleManager}
	cookie := loginCookie(t, m, acct)

	if !cookie.HttpOnly {
		t.Error("cookie is not HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	s, err := m.FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest() error = %v", err)
	}
	if s.AccountID != acct.ID || s.Role != models.RoleManager {
		t.Errorf("FromRequest() = %+v", s)
	}

	rec := httptest.NewRecorder()
	if err := m.Logout(rec, req); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := m.FromRequest(req); !errors.Is(err, ErrNoSession) {
		t.Errorf("FromRequest() after logout error = %v, want ErrNoSession", err)
	}
}

func TestSessionManager_Rejects(t *testing.T) {
	m, _ := newManager(t)
	acct := &models.Account{ID: uuid.New(), Role: models.RoleCashier}
	valid := loginCookie(t, m, acct)

	other, err := NewSessionManager(NewMemorySessionStore(), "other-secret", time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	foreign := loginCookie(t, other, acct)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"garbage", &http.Cookie{Name: CookieName, Value: "not-a-jwt"}},
		{"tampered", &http.Cookie{Name: CookieName, Value: valid.Value + "x"}},
		{"wrong secret", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if _, err := m.FromRequest(req); !errors.Is(err, ErrNoSession) {
				t.Errorf("FromRequest() error = %v, want ErrNoSession", err)
			}
		})
	}
}

func TestSessionManager_LoginUnknownRole(t *testing.T) {
	m, store := newManager(t)
	rec := httptest.NewRecorder()
	if _, err := m.Login(context.Background(), rec, &models.Account{ID: uuid.New(), Role: "owner"}); err == nil {
		t.Fatal("Login() expected error for unknown role")
	}
	if len(rec.Result().Cookies()) != 0 || len(store.sessions) != 0 {
		t.Error("no session should be created for an unknown role")
	}
}

func TestSessionManager_LogoutWithoutSession(t *testing.T) {
	m, _ := newManager(t)
	rec := httptest.NewRecorder()
	if err := m.Logout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil)); err != nil {
		t.Errorf("Logout() error = %v", err)
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		role models.Role
		cap  Capability
		want bool
	}{
		{models.RoleManager, CapDashboardView, true},
		{models.RoleManager, CapAccountsEdit, true},
		{models.RoleManager, CapRosterManage, true},
		{models.RoleCashier, CapRosterManage, true},
		{models.RoleCashier, CapDashboardView, false},
		{models.RoleCashier, CapAccountsView, false},
		{models.RoleCashier, CapEventsWatch, false},
		{models.Role("guest"), CapRosterManage, false},
	}
	for _, tt := range tests {
		if got := p.Allows(tt.role, tt.cap); got != tt.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

type accountMap map[uuid.UUID]*models.Account

func (a accountMap) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	acct, ok := a[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return acct, nil
}

func (a accountMap) add(role models.Role) *models.Account {
	acct := &models.Account{ID: uuid.New(), Role: role}
	a[acct.ID] = acct
	return acct
}

func TestRequireCapability(t *testing.T) {
	m, _ := newManager(t)
	accounts := accountMap{}
	manager := loginCookie(t, m, accounts.add(models.RoleManager))
	cashier := loginCookie(t, m, accounts.add(models.RoleCashier))

	demotedAcct := accounts.add(models.RoleManager)
	demoted := loginCookie(t, m, demotedAcct)
	demotedAcct.Role = models.RoleCashier

	promotedAcct := accounts.add(models.RoleCashier)
	promoted := loginCookie(t, m, promotedAcct)
	promotedAcct.Role = models.RoleManager

	goneAcct := accounts.add(models.RoleManager)
	gone := loginCookie(t, m, goneAcct)
	delete(accounts, goneAcct.ID)

	r := gin.New()
	r.Use(LoadSession(m, accounts))
	r.GET("/home", RequireLogin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/manager", RequireCapability(DefaultPolicy(), CapDashboardView), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name     string
		path     string
		cookie   *http.Cookie
		accept   string
		want     int
		location string
	}{
		{"home anonymous api", "/home", nil, "application/json", http.StatusUnauthorized, ""},
		{"home anonymous browser", "/home", nil, "text/html,application/xhtml+xml", http.StatusFound, "/login?next=%2Fhome"},
		{"home cashier", "/home", cashier, "", http.StatusOK, ""},
		{"dashboard manager", "/manager", manager, "", http.StatusOK, ""},
		{"dashboard cashier", "/manager", cashier, "", http.StatusForbidden, ""},
		{"dashboard anonymous", "/manager", nil, "", http.StatusUnauthorized, ""},
		{"dashboard after demotion", "/manager", demoted, "", http.StatusForbidden, ""},
		{"dashboard after promotion", "/manager", promoted, "", http.StatusOK, ""},
		{"account removed", "/manager", gone, "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), tt.location)
			}
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/v1/persons", APIKeyMiddleware("k3y"), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusForbidden},
		{"valid", "k3y", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/persons", nil)
			if tt.key != "" {
				req.Header.Set(headerName, tt.key)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddleware_Bearer(t *testing.T) {
	r := gin.New()
	r.GET("/v1/persons", APIKeyMiddleware("k3y"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/v1/persons", nil)
	req.Header.Set("Authorization", "Bearer k3y")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
