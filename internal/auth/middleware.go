package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/storage"
)

const sessionKey = "auth.session"

// AccountLookup resolves the account behind a session.
type AccountLookup interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// LoadSession attaches the request's session, if valid, to the gin context.
// The role is read from the account on every request, so a role change takes
// effect on existing sessions. It never rejects a request on its own.
func LoadSession(m *SessionManager, accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.FromRequest(c.Request)
		if err == nil {
			s, err = currentRole(c.Request.Context(), s, accounts)
		}
		switch {
		case err == nil:
			c.Set(sessionKey, s)
		case !errors.Is(err, ErrNoSession):
			slog.Error("load session", "error", err)
		}
		c.Next()
	}
}

func currentRole(ctx context.Context, s *Session, accounts AccountLookup) (*Session, error) {
	acct, err := accounts.GetAccount(ctx, s.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s no longer exists", ErrNoSession, s.AccountID)
		}
		return nil, fmt.Errorf("load session account: %w", err)
	}
	cur := *s
	cur.Role = acct.Role
	return &cur, nil
}

// CurrentSession returns the session attached by LoadSession.
func CurrentSession(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// RequireLogin rejects anonymous requests: browsers are redirected to the
// login page, API clients get 401.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			rejectAnonymous(c)
			return
		}
		c.Next()
	}
}

// RequireCapability admits sessions whose role holds want under policy.
func RequireCapability(policy Policy, want Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			rejectAnonymous(c)
			return
		}
		if !policy.Allows(s.Role, want) {
			slog.Warn("access denied", "account_id", s.AccountID, "role", s.Role, "capability", want, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "forbidden",
			})
			return
		}
		c.Next()
	}
}

func rejectAnonymous(c *gin.Context) {
	if wantsHTML(c.Request) {
		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "login required",
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
