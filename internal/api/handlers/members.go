package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/validate"
	"github.com/your-org/facerecog/pkg/dto"
)

type PhotoRemover interface {
	DeleteObject(ctx context.Context, key string) error
}

// MemberHandler is the roster administration: list, edit, delete.
type MemberHandler struct {
	persons  PersonStore
	photos   PhotoRemover
	photoURL func(string) string
}

func NewMemberHandler(persons PersonStore, photos PhotoRemover, photoURL func(string) string) *MemberHandler {
	return &MemberHandler{persons: persons, photos: photos, photoURL: photoURL}
}

// List returns the roster in enrollment order, optionally filtered by ?q=.
func (h *MemberHandler) List(c *gin.Context) {
	persons, err := h.persons.ListPersons(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	persons = models.FilterPersons(persons, c.Query("q"))

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, personResponse(&persons[i], h.photoURL))
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *MemberHandler) EditForm(c *gin.Context) {
	h.show(c, gin.H{"action": c.Request.URL.Path})
}

// Edit rewrites name and number. The embedding is not recomputed.
func (h *MemberHandler) Edit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdatePersonRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	if errs := validate.Struct(req); errs != nil {
		validationFailed(c, errs)
		return
	}

	p, err := h.persons.GetPerson(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	p.Name = req.Name
	p.Number = req.Number
	if err := h.persons.UpdatePerson(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("member updated", "person_id", p.ID)
	c.Redirect(http.StatusSeeOther, "/members")
}

// DeleteConfirm shows the person to be deleted. Nothing is removed until
// the POST.
func (h *MemberHandler) DeleteConfirm(c *gin.Context) {
	h.show(c, gin.H{"confirm": true, "action": c.Request.URL.Path})
}

func (h *MemberHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	p, err := h.persons.GetPerson(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.persons.DeletePerson(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if p.PhotoKey != "" {
		if err := h.photos.DeleteObject(c.Request.Context(), p.PhotoKey); err != nil {
			slog.Warn("delete member photo", "key", p.PhotoKey, "error", err)
		}
	}

	slog.Info("member deleted", "person_id", id)
	c.Redirect(http.StatusSeeOther, "/members")
}

func (h *MemberHandler) show(c *gin.Context, extra gin.H) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.persons.GetPerson(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	extra["member"] = personResponse(p, h.photoURL)
	c.JSON(http.StatusOK, extra)
}
