package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/service"
)

type GameDayHandler struct {
	gameDayService service.IGameDayService
}

func NewGameDayHandler(gameDayService service.IGameDayService) *GameDayHandler {
	return &GameDayHandler{gameDayService: gameDayService}
}

func (h *GameDayHandler) Create(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.CreateGameDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TavernID = c.Param("id")
	respond(c, h.gameDayService.Create(c.Request.Context(), memberID, &req))
}

func (h *GameDayHandler) List(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.gameDayService.List(c.Request.Context(), memberID, c.Param("id")))
}

func (h *GameDayHandler) Get(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.gameDayService.Get(c.Request.Context(), memberID, c.Param("id")))
}

func (h *GameDayHandler) Reschedule(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	var req service.RescheduleGameDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.gameDayService.Reschedule(c.Request.Context(), memberID, c.Param("id"), &req))
}

func (h *GameDayHandler) Conclude(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.gameDayService.Conclude(c.Request.Context(), memberID, c.Param("id")))
}

func (h *GameDayHandler) Delete(c *gin.Context) {
	memberID, _, ok := caller(c)
	if !ok {
		return
	}
	respond(c, h.gameDayService.Delete(c.Request.Context(), memberID, c.Param("id")))
}
