package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type TavernHandler struct {
	tavernService service.ITavernService
}

func NewTavernHandler(tavernService service.ITavernService) *TavernHandler {
	return &TavernHandler{tavernService: tavernService}
}

// CreateTavern makes the caller the tavern's DM.
func (h *TavernHandler) CreateTavern(c *gin.Context) {
	_, email, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateTavernRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.tavernService.CreateTavern(c.Request.Context(), email, &req))
}

func (h *TavernHandler) ListTaverns(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.tavernService.ListMemberTaverns(c.Request.Context(), memberID))
}

// Discover lists taverns the caller has not joined. page defaults to 1.
func (h *TavernHandler) Discover(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		badRequest(c, errors.New("page must be a number"))
		return
	}
	respond(c, h.tavernService.ListDiscoverableTaverns(c.Request.Context(), memberID, page))
}

func (h *TavernHandler) GetTavern(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.tavernService.GetTavern(c.Request.Context(), memberID, c.Param("id")))
}

func (h *TavernHandler) UpdateTavern(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.UpdateTavernRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.tavernService.UpdateTavern(c.Request.Context(), memberID, c.Param("id"), &req))
}

func (h *TavernHandler) ListMembers(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.tavernService.ListMemberships(c.Request.Context(), memberID, c.Param("id")))
}

func (h *TavernHandler) AddMember(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")
	respond(c, h.tavernService.AddUserToTavern(c.Request.Context(), memberID, &req))
}

func (h *TavernHandler) RemoveMember(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.tavernService.RemoveUserFromTavern(c.Request.Context(), memberID, c.Param("id"), c.Param("membershipId")))
}

// AskForEnter sends a join request for the tavern to the given receiver.
func (h *TavernHandler) AskForEnter(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.AskForEnterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")
	respond(c, h.tavernService.AskForEnter(c.Request.Context(), memberID, &req))
}

func (h *TavernHandler) AcceptJoinRequest(c *gin.Context) {
	_, email, ok := caller(c)
	if !ok {
		return
	}
	var req service.AcceptJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")
	respond(c, h.tavernService.AcceptUserInTavern(c.Request.Context(), email, &req))
}

type ActivityHandler struct {
	activityService service.IActivityService
}

func NewActivityHandler(activityService service.IActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// Recent accepts an optional ?limit= query parameter.
func (h *ActivityHandler) Recent(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			badRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	respond(c, h.activityService.Recent(c.Request.Context(), memberID, c.Param("id"), limit))
}
