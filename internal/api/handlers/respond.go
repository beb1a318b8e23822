package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/datauri"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/recognition"
	"github.com/your-org/facerecog/internal/storage"
	"github.com/your-org/facerecog/internal/validate"
	"github.com/your-org/facerecog/internal/vision"
)

// PersonStore is the roster surface used by the admin pages.
type PersonStore interface {
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	UpdatePerson(ctx context.Context, p *models.Person) error
	DeletePerson(ctx context.Context, id uuid.UUID) error
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	ListAccountsByRole(ctx context.Context, role models.Role) ([]models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func validationFailed(c *gin.Context, errs []validate.FieldError) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
}

// bindFailed answers a request whose body could not be bound.
func bindFailed(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondError maps service and store errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, datauri.ErrMalformed),
		errors.Is(err, datauri.ErrUnsupportedType),
		errors.Is(err, vision.ErrNoImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, recognition.ErrCapabilityUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// safeNext accepts only local absolute paths as a post-login redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
