package handler

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type FileHandler struct {
	fileService  service.IFileService
	maxFileBytes int64
}

func NewFileHandler(fileService service.IFileService, maxFileBytes int64) *FileHandler {
	return &FileHandler{fileService: fileService, maxFileBytes: maxFileBytes}
}

func (h *FileHandler) CreateFolder(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")
	respond(c, h.fileService.CreateFolder(c.Request.Context(), memberID, &req))
}

func (h *FileHandler) ListFolder(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.fileService.ListFolder(c.Request.Context(), memberID, c.Param("id")))
}

// Upload stores the multipart "file" field in the folder. An optional
// "note" form field is kept with the item.
func (h *FileHandler) Upload(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	upload, err := readUpload(c, "file", h.maxFileBytes, false)
	if err != nil {
		badRequest(c, err)
		return
	}
	var note *string
	if v, present := c.GetPostForm("note"); present {
		note = &v
	}
	respond(c, h.fileService.CreateFile(c.Request.Context(), memberID, c.Param("id"), upload, note))
}

// Download streams the item's bytes. Failures are written as JSON results.
func (h *FileHandler) Download(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	res := h.fileService.Download(c.Request.Context(), memberID, c.Param("id"))
	if !res.Success {
		respond(c, res)
		return
	}

	item := res.Data.Item
	contentType := mime.TypeByExtension(item.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.FileName()))
	c.Data(http.StatusOK, contentType, res.Data.Data)
}

func (h *FileHandler) Delete(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.fileService.DeleteFile(c.Request.Context(), memberID, c.Param("id")))
}
