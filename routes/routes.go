package routes

import (
	"fmt"
	"net/http"
	"time"

	"campussnap/apperr"
	"campussnap/handlers"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the cross-cutting pieces the router wires around the handlers.
type Deps struct {
	Tokens      *middleware.Tokens
	Users       store.Users
	Limiter     *middleware.IPRateLimiter
	Registry    *prometheus.Registry
	CORSOrigins []string
}

// recoverPanic answers a panicking handler with the usual error envelope.
func recoverPanic(c *gin.Context, rec any) {
	middleware.AbortWithError(c, apperr.Internal(fmt.Errorf("panic: %v", rec)))
}

func SetupRouter(h *handlers.Handler, d Deps) *gin.Engine {
	handlers.RegisterValidators()

	router := gin.New()
	router.Use(gin.CustomRecovery(recoverPanic), middleware.RequestID(), middleware.AccessLog())

	if d.Registry != nil {
		router.Use(middleware.NewMetrics(d.Registry).Instrument())
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	if d.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(d.Limiter))
	}

	// Public routes (no auth required)
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.GET("/logout", h.Logout)
	api.GET("/trending-posts", h.GetTrendingPosts)
	api.GET("/user-count", h.GetUserCount)
	api.GET("/push/vapid-public-key", h.GetVapidPublicKey)

	protected := api.Group("")
	protected.Use(middleware.Authenticate(d.Tokens, d.Users))

	// Profile
	protected.PUT("/updateProfile", h.UpdateProfile)
	protected.GET("/user/:id", h.GetUserProfile)

	// Posts
	protected.POST("/post/create", h.CreatePost)
	protected.GET("/post/:postId", h.GetPostByID)
	protected.DELETE("/post/:postId", h.DeletePost)
	protected.POST("/post/:postId/like", h.LikePost)
	protected.GET("/post/:postId/comments", h.GetPostComments)
	protected.POST("/post/:postId/comment", h.AddComment)
	protected.GET("/explore", h.GetExplorePosts)

	// Social graph
	protected.POST("/follow/:id", h.FollowUser)
	protected.POST("/unfollow/:id", h.UnfollowUser)
	protected.GET("/followers/:id", h.GetFollowers)
	protected.GET("/following/:id", h.GetFollowing)

	protected.POST("/feedback", h.SubmitFeedback)

	// Notifications
	protected.GET("/ws", h.ServeWS)
	protected.POST("/push/subscribe", h.SubscribePush)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", h.ListUsers)
	admin.POST("/block/:id", h.BlockUser)
	admin.POST("/unblock/:id", h.UnblockUser)
	admin.GET("/feedbacks", h.ListFeedback)
	admin.GET("/stats", h.DashboardStats)

	router.NoRoute(handlers.NoRoute)
	return router
}
