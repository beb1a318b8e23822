package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facerecog/internal/storage"
)

type ObjectOpener interface {
	OpenObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

// MediaHandler streams stored photos.
type MediaHandler struct {
	objects ObjectOpener
}

func NewMediaHandler(objects ObjectOpener) *MediaHandler {
	return &MediaHandler{objects: objects}
}

func (h *MediaHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}

	rc, info, err := h.objects.OpenObject(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, nil)
}
