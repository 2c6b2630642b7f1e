package handler

import (
	"errors"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
	"github.com/Gopher0727/Tavern/internal/storage"
)

// BlobHandler serves post images and profile pictures, the only blobs
// readable without a membership check. Items go through
// FileHandler.Download.
type BlobHandler struct {
	blobs storage.BlobStore
}

func NewBlobHandler(blobs storage.BlobStore) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

func (h *BlobHandler) PostImage(c *gin.Context) {
	h.serveImage(c, "posts/")
}

func (h *BlobHandler) ProfilePicture(c *gin.Context) {
	h.serveImage(c, "members/")
}

func (h *BlobHandler) serveImage(c *gin.Context, prefix string) {
	name := c.Param("name")
	data, err := h.blobs.Get(c.Request.Context(), prefix+name)
	switch {
	case errors.Is(err, storage.ErrBlobNotFound), errors.Is(err, storage.ErrInvalidBlobKey):
		c.JSON(http.StatusNotFound, service.Result[any]{Message: "image not found", Code: http.StatusNotFound})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, service.Result[any]{Message: "failed to read image", Code: http.StatusInternalServerError})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}
