package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type MemberHandler struct {
	memberService service.IMemberService
	maxImageBytes int64
}

func NewMemberHandler(memberService service.IMemberService, maxImageBytes int64) *MemberHandler {
	return &MemberHandler{memberService: memberService, maxImageBytes: maxImageBytes}
}

func (h *MemberHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.memberService.Register(c.Request.Context(), &req))
}

func (h *MemberHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.memberService.Login(c.Request.Context(), &req))
}

// Me returns the caller's profile with the taverns they belong to.
func (h *MemberHandler) Me(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.memberService.Profile(c.Request.Context(), memberID))
}

func (h *MemberHandler) ChangeUsername(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.ChangeUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.memberService.ChangeUsername(c.Request.Context(), memberID, &req))
}

// ChangePicture replaces the caller's profile picture with the multipart
// "image" file.
func (h *MemberHandler) ChangePicture(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	image, err := readUpload(c, "image", h.maxImageBytes, false)
	if err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.memberService.ChangeProfilePicture(c.Request.Context(), memberID, image))
}
