package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/datauri"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/storage"
	"github.com/your-org/facerecog/internal/validate"
	"github.com/your-org/facerecog/pkg/dto"
)

const profilePhotoPrefix = "profile_photos/"

type PhotoUploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// AccountHandler serves staff registration, login and the manager pages.
type AccountHandler struct {
	accounts      AccountStore
	photos        PhotoUploader
	sessions      *auth.SessionManager
	hasher        *auth.Hasher
	photoURL      func(string) string
	maxImageBytes int
}

func NewAccountHandler(
	accounts AccountStore,
	photos PhotoUploader,
	sessions *auth.SessionManager,
	hasher *auth.Hasher,
	photoURL func(string) string,
	maxImageBytes int,
) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		photos:        photos,
		sessions:      sessions,
		hasher:        hasher,
		photoURL:      photoURL,
		maxImageBytes: maxImageBytes,
	}
}

func (h *AccountHandler) RegisterForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "register_user",
		"action": "/register_user",
		"fields": []gin.H{
			{"name": "username", "type": "text", "max_length": 150, "required": true},
			{"name": "password1", "type": "password", "min_length": 8, "required": true},
			{"name": "password2", "type": "password", "required": true},
			{"name": "name", "type": "text", "max_length": 100},
			{"name": "email", "type": "email", "max_length": 100},
			{"name": "phone_number", "type": "text", "max_length": 15},
			{"name": "photo_profile", "type": "file", "accept": "image/*"},
			{"name": "role", "type": "select", "options": []models.Role{models.RoleManager, models.RoleCashier}},
		},
	})
}

// Register creates an account, logs it in and redirects to the home page.
func (h *AccountHandler) Register(c *gin.Context) {
	var req dto.RegisterAccountRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if errs := validate.Struct(req); errs != nil {
		validationFailed(c, errs)
		return
	}

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleCashier
	}
	if role == models.RoleManager {
		allowed, err := h.mayCreateManager(c)
		if err != nil {
			respondError(c, err)
			return
		}
		if !allowed {
			validationFailed(c, []validate.FieldError{{Field: "role", Message: "Only a manager can create manager accounts."}})
			return
		}
	}

	hash, err := h.hasher.Hash(req.Password1)
	if err != nil {
		respondError(c, err)
		return
	}

	acct := &models.Account{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Name:         req.Name,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		Role:         role,
	}

	photo, ok := h.readProfilePhoto(c)
	if !ok {
		return
	}
	if photo != nil {
		if acct.PhotoKey, ok = h.storeProfilePhoto(c, acct.ID, photo); !ok {
			return
		}
	}

	if err := h.accounts.CreateAccount(c.Request.Context(), acct); err != nil {
		h.discardPhoto(c, acct.PhotoKey)
		if errors.Is(err, storage.ErrDuplicate) {
			validationFailed(c, []validate.FieldError{{Field: "username", Message: "A user with that username already exists."}})
			return
		}
		respondError(c, err)
		return
	}

	if _, err := h.sessions.Login(c.Request.Context(), c.Writer, acct); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("account registered", "account_id", acct.ID, "username", acct.Username, "role", acct.Role)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *AccountHandler) LoginForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "login",
		"action": "/login",
		"next":   safeNext(c.Query("next")),
	})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if errs := validate.Struct(req); errs != nil {
		validationFailed(c, errs)
		return
	}

	acct, err := h.accounts.GetAccountByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = auth.ErrInvalidCredentials
		}
		respondError(c, err)
		return
	}
	if err := h.hasher.Compare(acct.PasswordHash, req.Password); err != nil {
		slog.Warn("login failed", "username", req.Username, "ip", c.ClientIP())
		respondError(c, err)
		return
	}

	if _, err := h.sessions.Login(c.Request.Context(), c.Writer, acct); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("login", "account_id", acct.ID, "role", acct.Role)
	c.Redirect(http.StatusSeeOther, safeNext(c.Query("next")))
}

func (h *AccountHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Writer, c.Request); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// Home shows the logged-in account.
func (h *AccountHandler) Home(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	acct, err := h.accounts.GetAccount(c.Request.Context(), s.AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.accountResponse(acct)})
}

// Dashboard lists managers first, then cashiers.
func (h *AccountHandler) Dashboard(c *gin.Context) {
	users := []dto.AccountResponse{}
	for _, role := range []models.Role{models.RoleManager, models.RoleCashier} {
		accounts, err := h.accounts.ListAccountsByRole(c.Request.Context(), role)
		if err != nil {
			respondError(c, err)
			return
		}
		for i := range accounts {
			users = append(users, h.accountResponse(&accounts[i]))
		}
	}
	c.JSON(http.StatusOK, dto.DashboardResponse{Users: users})
}

func (h *AccountHandler) Detail(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	acct, err := h.accounts.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.accountResponse(acct), "action": c.Request.URL.Path})
}

// Update edits an account's profile and role, then returns to the dashboard.
func (h *AccountHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateAccountRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if errs := validate.Struct(req); errs != nil {
		validationFailed(c, errs)
		return
	}

	acct, err := h.accounts.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	photo, ok := h.readProfilePhoto(c)
	if !ok {
		return
	}
	oldKey, newKey := acct.PhotoKey, ""
	if photo != nil {
		if newKey, ok = h.storeProfilePhoto(c, acct.ID, photo); !ok {
			return
		}
		acct.PhotoKey = newKey
	}
	acct.Username = strings.TrimSpace(req.Username)
	acct.Name = req.Name
	acct.Email = req.Email
	acct.PhoneNumber = req.PhoneNumber
	acct.Role = models.Role(req.Role)

	if err := h.accounts.UpdateAccount(c.Request.Context(), acct); err != nil {
		h.discardPhoto(c, newKey)
		if errors.Is(err, storage.ErrDuplicate) {
			validationFailed(c, []validate.FieldError{{Field: "username", Message: "A user with that username already exists."}})
			return
		}
		respondError(c, err)
		return
	}

	if newKey != "" && oldKey != "" && oldKey != newKey {
		h.discardPhoto(c, oldKey)
	}

	slog.Info("account updated", "account_id", acct.ID, "role", acct.Role)
	c.Redirect(http.StatusSeeOther, "/manager")
}

// mayCreateManager allows a manager signup from a logged-in manager, or
// while no manager exists yet so the first one can bootstrap the site.
func (h *AccountHandler) mayCreateManager(c *gin.Context) (bool, error) {
	if s, ok := auth.CurrentSession(c); ok && s.Role == models.RoleManager {
		return true, nil
	}
	managers, err := h.accounts.ListAccountsByRole(c.Request.Context(), models.RoleManager)
	if err != nil {
		return false, err
	}
	return len(managers) == 0, nil
}

type profilePhoto struct {
	data []byte
	mime string
}

// readProfilePhoto reads and checks the optional photo_profile file. It
// returns nil when none was sent and writes the error response itself.
func (h *AccountHandler) readProfilePhoto(c *gin.Context) (*profilePhoto, bool) {
	fh, err := c.FormFile("photo_profile")
	if err != nil {
		return nil, true
	}
	if h.maxImageBytes > 0 && fh.Size > int64(h.maxImageBytes) {
		validationFailed(c, []validate.FieldError{{
			Field:   "photo_profile",
			Message: fmt.Sprintf("Image must be at most %d bytes.", h.maxImageBytes),
		}})
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open profile photo: %w", err))
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, fmt.Errorf("read profile photo: %w", err))
		return nil, false
	}

	mime := mimetype.Detect(data).String()
	if !datauri.IsImageType(mime) {
		validationFailed(c, []validate.FieldError{{Field: "photo_profile", Message: "Upload a valid image."}})
		return nil, false
	}
	return &profilePhoto{data: data, mime: mime}, true
}

// storeProfilePhoto uploads p under a key unique to this upload, so a failed
// account write never replaces the photo currently in use.
func (h *AccountHandler) storeProfilePhoto(c *gin.Context, id uuid.UUID, p *profilePhoto) (string, bool) {
	_, ext, _ := strings.Cut(p.mime, "/")
	key := profilePhotoPrefix + id.String() + "-" + uuid.NewString()[:8] + "." + ext
	if err := h.photos.PutObject(c.Request.Context(), key, p.data, p.mime); err != nil {
		respondError(c, err)
		return "", false
	}
	return key, true
}

func (h *AccountHandler) discardPhoto(c *gin.Context, key string) {
	if key == "" {
		return
	}
	if err := h.photos.DeleteObject(c.Request.Context(), key); err != nil {
		slog.Warn("delete profile photo", "key", key, "error", err)
	}
}

func (h *AccountHandler) accountResponse(a *models.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:           a.ID,
		Username:     a.Username,
		Name:         a.Name,
		Email:        a.Email,
		PhoneNumber:  a.PhoneNumber,
		PhotoProfile: h.photoURL(a.PhotoKey),
		Role:         string(a.Role),
		CreatedAt:    a.CreatedAt.Format(timeFormat),
	}
}
