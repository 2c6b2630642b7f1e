package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Tavern/internal/handler"
	"github.com/Gopher0727/Tavern/utils/ratelimit"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Member       *handler.MemberHandler
	Tavern       *handler.TavernHandler
	GameDay      *handler.GameDayHandler
	Feed         *handler.FeedHandler
	File         *handler.FileHandler
	Notification *handler.NotificationHandler
	Blob         *handler.BlobHandler
	// Activity is optional; the route is mounted only when it is set.
	Activity     *handler.ActivityHandler
}

// NewRouter builds the gin engine with global middleware and all routes.
func NewRouter(m *MiddlewareManager, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(m.TraceID(), m.Recovery(), m.Logger(), m.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Blob != nil {
		r.GET("/files/:shard/posts/:name", h.Blob.PostImage)
		r.GET("/files/:shard/members/:name", h.Blob.ProfilePicture)
	}

	RegisterRoutes(r, m, h)
	return r
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r *gin.Engine, m *MiddlewareManager, h *Handlers) {
	api := r.Group("/api/v1")

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", m.RateLimit(ratelimit.EndpointRegister), h.Member.Register)
		auth.POST("/login", m.RateLimit(ratelimit.EndpointLogin), h.Member.Login)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(m.JWTAuth(), m.RateLimit(ratelimit.EndpointAPI))

	members := protected.Group("/members")
	{
		members.GET("/me", h.Member.Me)
		members.PUT("/me/username", h.Member.ChangeUsername)
		members.PUT("/me/picture", h.Member.ChangePicture)
	}

	taverns := protected.Group("/taverns")
	{
		taverns.POST("", h.Tavern.CreateTavern)
		taverns.GET("", h.Tavern.ListTaverns)
		taverns.GET("/discover", h.Tavern.Discover)
		taverns.GET("/:id", h.Tavern.GetTavern)
		taverns.PUT("/:id", h.Tavern.UpdateTavern)

		taverns.GET("/:id/members", h.Tavern.ListMembers)
		taverns.POST("/:id/members", h.Tavern.AddMember)
		taverns.DELETE("/:id/members/:membershipId", h.Tavern.RemoveMember)
		taverns.POST("/:id/join-requests", h.Tavern.AskForEnter)
		taverns.POST("/:id/join-requests/accept", h.Tavern.AcceptJoinRequest)

		taverns.POST("/:id/gamedays", h.GameDay.Create)
		taverns.GET("/:id/gamedays", h.GameDay.List)

		taverns.POST("/:id/posts", h.Feed.CreatePost)
		taverns.GET("/:id/posts", h.Feed.ListPosts)

		taverns.POST("/:id/folders", h.File.CreateFolder)

		if h.Activity != nil {
			taverns.GET("/:id/activity", h.Activity.Recent)
		}
	}

	gameDays := protected.Group("/gamedays")
	{
		gameDays.GET("/:id", h.GameDay.Get)
		gameDays.PUT("/:id", h.GameDay.Reschedule)
		gameDays.POST("/:id/conclude", h.GameDay.Conclude)
		gameDays.DELETE("/:id", h.GameDay.Delete)
	}

	posts := protected.Group("/posts")
	{
		posts.POST("/:id/like", h.Feed.ToggleLike)
		posts.POST("/:id/comments", h.Feed.CreateComment)
		posts.GET("/:id/comments", h.Feed.ListComments)
	}

	folders := protected.Group("/folders")
	{
		folders.GET("/:id/items", h.File.ListFolder)
		folders.POST("/:id/items", h.File.Upload)
	}

	items := protected.Group("/items")
	{
		items.GET("/:id", h.File.Download)
		items.DELETE("/:id", h.File.Delete)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.Notification.List)
		notifications.POST("/:id/seen", h.Notification.MarkSeen)
	}
}
