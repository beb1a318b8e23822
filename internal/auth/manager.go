package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/models"
)

const CookieName = "facerecog_session"

var ErrNoSession = errors.New("no session")

type claims struct {
	SID  string      `json:"sid"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionManager issues signed session cookies backed by a SessionStore.
type SessionManager struct {
	store  SessionStore
	secret []byte
	ttl    time.Duration
	secure bool
}

func NewSessionManager(store SessionStore, secret string, ttl time.Duration, secure bool) (*SessionManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	return &SessionManager{store: store, secret: []byte(secret), ttl: ttl, secure: secure}, nil
}

// Login creates a session for acct and sets the cookie on w.
func (m *SessionManager) Login(ctx context.Context, w http.ResponseWriter, acct *models.Account) (*Session, error) {
	if !acct.Role.Valid() {
		return nil, fmt.Errorf("account %s has unknown role %q", acct.ID, acct.Role)
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Role:      acct.Role,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SID:  s.ID,
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// FromRequest verifies the session cookie and requires the session to still
// exist in the store.
func (m *SessionManager) FromRequest(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	var c claims
	_, err = jwt.ParseWithClaims(cookie.Value, &c, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	s, err := m.store.Get(r.Context(), c.SID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: revoked or expired", ErrNoSession)
		}
		return nil, err
	}
	if s.AccountID.String() != c.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrNoSession)
	}
	return s, nil
}

// Logout deletes the session behind the request cookie, if any, and clears
// the cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	s, err := m.FromRequest(r)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	return m.store.Delete(r.Context(), s.ID)
}
