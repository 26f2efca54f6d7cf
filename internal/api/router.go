package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/ragmentor/internal/api/admin"
	"github.com/liliang-cn/ragmentor/internal/api/chat"
	"github.com/liliang-cn/ragmentor/internal/api/middleware"
	"github.com/liliang-cn/ragmentor/internal/auth"
	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/metrics"
	"github.com/liliang-cn/ragmentor/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins     []string
	RateLimitEnabled bool
	RequestsPerHour  int
}

// Services are the collaborators the routes are served by
type Services struct {
	Verifier   auth.Verifier
	Users      *service.UserService
	Chat       *service.ChatService
	Documents  *service.DocumentService
	Questions  *service.QuestionService
	Statistics *service.StatisticsService
	Topics     *classifier.Classifier
	Metrics    *metrics.Chat
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "collection": svc.Documents.CollectionInfo()})
	})
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	adminHandler := admin.NewHandler(svc.Documents, svc.Questions, svc.Statistics, svc.Topics)

	public := r.Group("/api")
	if cfg.RateLimitEnabled {
		public.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RequestsPerHour)))
	}
	adminHandler.RegisterPublicRoutes(public)

	authed := r.Group("/api")
	authed.Use(middleware.Auth(svc.Verifier, logger))

	chatHandler := chat.NewHandler(svc.Chat)
	chatGroup := authed.Group("")
	if cfg.RateLimitEnabled {
		chatGroup.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RequestsPerHour)))
	}
	chatHandler.RegisterRoutes(chatGroup)

	users := authed.Group("")
	users.Use(middleware.RequireUser(svc.Users))
	chatHandler.RegisterUserRoutes(users)

	adminHandler.RegisterRoutes(users)

	admins := users.Group("")
	admins.Use(middleware.RequireRole(domain.UserRoleAdmin))
	adminHandler.RegisterAdminRoutes(admins)

	return r
}
