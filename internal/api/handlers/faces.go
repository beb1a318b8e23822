package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facerecog/internal/datauri"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/recognition"
	"github.com/your-org/facerecog/internal/validate"
	"github.com/your-org/facerecog/pkg/dto"
)

// FaceHandler serves enrollment, capture and recognition.
type FaceHandler struct {
	svc           *recognition.Service
	maxImageBytes int
}

func NewFaceHandler(svc *recognition.Service, maxImageBytes int) *FaceHandler {
	return &FaceHandler{svc: svc, maxImageBytes: maxImageBytes}
}

// RegisterForm describes the enrollment form.
func (h *FaceHandler) RegisterForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"form":   "register",
		"action": "/register",
		"fields": []gin.H{
			{"name": "name", "type": "text", "max_length": 100, "required": true},
			{"name": "number", "type": "text", "max_length": 15, "required": true},
			{"name": "faceimage", "type": "hidden", "format": "data:image/*;base64", "required": true},
		},
	})
}

// Register enrolls a person and redirects to the success page.
func (h *FaceHandler) Register(c *gin.Context) {
	if _, ok := h.enroll(c); !ok {
		return
	}
	c.Redirect(http.StatusSeeOther, "/success")
}

// EnrollJSON is the machine-API variant of Register.
func (h *FaceHandler) EnrollJSON(c *gin.Context) {
	p, ok := h.enroll(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, personResponse(p, h.svc.PhotoURL))
}

func (h *FaceHandler) enroll(c *gin.Context) (*models.Person, bool) {
	var req dto.EnrollRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return nil, false
	}
	if errs := validate.Struct(req); errs != nil {
		validationFailed(c, errs)
		return nil, false
	}

	uri, err := datauri.Parse(req.FaceImage)
	if err != nil {
		validationFailed(c, []validate.FieldError{{Field: "faceimage", Message: err.Error()}})
		return nil, false
	}
	if h.tooLarge(uri) {
		validationFailed(c, []validate.FieldError{{
			Field:   "faceimage",
			Message: fmt.Sprintf("Image must be at most %d bytes.", h.maxImageBytes),
		}})
		return nil, false
	}

	p, err := h.svc.Enroll(c.Request.Context(), recognition.EnrollInput{
		Name:   req.Name,
		Number: req.Number,
		Image:  uri,
	})
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return p, true
}

func (h *FaceHandler) Success(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": dto.StatusSuccess, "message": "Registration complete."})
}

// Capture echoes the submitted data URI.
func (h *FaceHandler) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CaptureResponse{Status: dto.StatusSuccess, FaceImage: req.FaceImage})
}

func (h *FaceHandler) DetectionPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":   "face_detection",
		"action": "/face_detection",
		"fields": []gin.H{
			{"name": "faceimage", "type": "hidden", "format": "data:image/*;base64", "required": true},
		},
	})
}

// Recognize identifies the faces in a captured frame. "No face detected" and
// "Unknown face" are ordinary 200 responses; a bad payload is a 400.
func (h *FaceHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}

	uri, err := datauri.Parse(req.FaceImage)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.tooLarge(uri) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	resp, err := h.svc.Recognize(c.Request.Context(), uri.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FaceHandler) tooLarge(uri *datauri.DataURI) bool {
	return h.maxImageBytes > 0 && len(uri.Data) > h.maxImageBytes
}

func personResponse(p *models.Person, photoURL func(string) string) dto.PersonResponse {
	return dto.PersonResponse{
		ID:        p.ID,
		Name:      p.Name,
		Number:    p.Number,
		FaceImage: photoURL(p.PhotoKey),
		Embedded:  p.HasEmbedding(),
		CreatedAt: p.CreatedAt.Format(timeFormat),
		UpdatedAt: p.UpdatedAt.Format(timeFormat),
	}
}
