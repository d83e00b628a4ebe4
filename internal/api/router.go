package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ayushdsd/spotlight-sub000/internal/database"
	"github.com/ayushdsd/spotlight-sub000/internal/messaging"
	"github.com/ayushdsd/spotlight-sub000/internal/websocket"
)

// RateLimits configures the two limiter buckets
type RateLimits struct {
	MessagesPerMinute int
	Burst             int
	AuthPerMinute     int
}

// RouterOptions are the dependencies of the HTTP surface
type RouterOptions struct {
	DB             database.DBInterface
	Service        *messaging.Service
	WS             *websocket.Manager // nil disables /api/ws
	AllowedOrigins []string
	RateLimits     RateLimits
}

// Router is the configured gin engine plus the limiter stores it owns
type Router struct {
	Engine *gin.Engine

	messageLimiter *LimiterStore
	authLimiter    *LimiterStore
}

// NewRouter builds every route of the API
func NewRouter(opts RouterOptions) *Router {
	r := &Router{
		Engine:         gin.New(),
		messageLimiter: NewLimiterStore(opts.RateLimits.MessagesPerMinute, opts.RateLimits.Burst, time.Minute),
		authLimiter:    NewLimiterStore(opts.RateLimits.AuthPerMinute, opts.RateLimits.AuthPerMinute, time.Minute),
	}
	router := r.Engine
	router.Use(RequestLogger(gin.DefaultWriter), gin.Recovery())

	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	authHandler := NewAuthHandler(opts.DB)
	userHandler := NewUserHandler(opts.DB, opts.Service)
	messageHandler := NewMessageHandler(opts.Service)

	// Public routes (no authentication required)
	public := router.Group("/api/auth")
	public.Use(RateLimit(r.authLimiter, EmailKey))
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
	}

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware())
	{
		authorized.GET("/auth/me", authHandler.GetMe)

		authorized.GET("/users", userHandler.ListUsers)
		authorized.GET("/users/:userID/follow-status", userHandler.FollowStatus)
		authorized.POST("/users/:userID/follow", userHandler.Follow)
		authorized.DELETE("/users/:userID/follow", userHandler.Unfollow)
		authorized.GET("/users/:userID/conversation-state", userHandler.ConversationState)

		authorized.GET("/conversations", messageHandler.GetContacts)
		authorized.POST("/conversations", messageHandler.ResolveConversation)
		authorized.GET("/conversations/:conversationID/messages", messageHandler.GetMessages)
		authorized.POST("/conversations/:conversationID/messages",
			RateLimit(r.messageLimiter, UserKey), messageHandler.SendMessage)

		authorized.GET("/messages/contacts", messageHandler.GetContacts)
		authorized.PUT("/messages/:messageID/read", messageHandler.MarkMessageAsRead)
		authorized.PATCH("/messages/:messageID/read", messageHandler.MarkMessageAsRead)
	}

	if opts.WS != nil {
		router.GET("/api/ws", WebSocketAuthMiddleware(), opts.WS.HandleWebSocket)
	}

	router.GET("/health", healthHandler(opts.DB))

	return r
}

// Close stops the limiter cleanup goroutines
func (r *Router) Close() {
	r.messageLimiter.Stop()
	r.authLimiter.Stop()
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func healthHandler(db database.DBInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Error("Health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
