package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type FeedHandler struct {
	feedService   service.IFeedService
	maxImageBytes int64
}

func NewFeedHandler(feedService service.IFeedService, maxImageBytes int64) *FeedHandler {
	return &FeedHandler{feedService: feedService, maxImageBytes: maxImageBytes}
}

// CreatePost accepts a multipart form with title, content and an optional
// image file.
func (h *FeedHandler) CreatePost(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")

	image, err := readUpload(c, "image", h.maxImageBytes, true)
	if err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.feedService.CreatePost(c.Request.Context(), memberID, &req, image))
}

func (h *FeedHandler) ListPosts(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.feedService.ListPosts(c.Request.Context(), memberID, c.Param("id")))
}

func (h *FeedHandler) ToggleLike(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.feedService.ToggleLike(c.Request.Context(), memberID, c.Param("id")))
}

func (h *FeedHandler) CreateComment(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.feedService.CreateComment(c.Request.Context(), memberID, c.Param("id"), &req))
}

func (h *FeedHandler) ListComments(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.feedService.ListComments(c.Request.Context(), memberID, c.Param("id")))
}
