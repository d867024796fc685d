package server

import (
	"net/http"
	"time"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/metrics"
	"messenger/internal/models"
	"messenger/internal/mw"
	"messenger/internal/service"
	"messenger/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// 公开路由和受保护路由分组显式列出，授权策略一目了然。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub, presence *ws.Registry) *gin.Engine {
	userSvc := service.NewUserService(db, cfg)
	chatSvc := service.NewChatService(db)
	h := NewHandler(userSvc, chatSvc, hub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_users": presence.OnlineCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	// 公开路由：注册、登录、刷新。
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.POST("/auth/logout", h.Logout)
	authed.GET("/users/profile", h.Profile)
	authed.PATCH("/users/profile", h.UpdateProfile)
	authed.GET("/users", h.ListUsers)
	authed.POST("/chat/conversations", h.CreateConversation)
	authed.GET("/chat/conversations", h.ListConversations)
	authed.GET("/chat/conversations/:id/messages", h.ListConversationMessages)

	// 管理员路由：显式角色检查。
	admin := authed.Group("/admin")
	admin.Use(auth.RequireRole(models.RoleAdmin))
	admin.GET("/users", h.AdminListUsers)

	r.GET("/ws", ws.Serve(hub, presence, chatSvc, db, cfg))

	return r
}
