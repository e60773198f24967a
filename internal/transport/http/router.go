package httptransport

import (
	"net/http"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/config"
	"zontact/backend/internal/health"
	"zontact/backend/internal/middleware"
	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/service"
	"zontact/backend/internal/storage"
	"zontact/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config            *config.Config
	SubmissionService *service.SubmissionService
	OptionsService    *service.OptionsService
	ExportService     *service.ExportService
	NonceManager      *nonce.Manager
	WebSocketHub      *websocket.Hub
	HealthChecker     *health.HealthChecker
	Store             storage.Store
	Metrics           *monitoring.Metrics
	Logger            *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if !deps.Config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics.RecordPanic))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.MetricsCollector(deps.Metrics))
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置：挂件嵌在第三方站点页面里，公开接口必须放行跨域
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	submitHandler := NewSubmitHandler(deps.SubmissionService, deps.Logger)
	widgetHandler := NewWidgetHandler(deps.OptionsService, deps.NonceManager, deps.Logger)
	adminHandler := NewAdminHandler(
		deps.SubmissionService,
		deps.OptionsService,
		deps.ExportService,
		deps.NonceManager,
		deps.WebSocketHub,
		deps.Logger,
	)

	// 提交接口限流
	submitRateLimit := middleware.RateLimitByIP(
		deps.Store,
		deps.Logger,
		deps.Metrics,
		deps.Config.Form.RateLimit,
		deps.Config.Form.RateWindow,
	)

	// 管理接口认证
	adminAuth := middleware.AdminAuth(deps.Config.Admin.APIToken)

	v1 := router.Group("/v1")
	{
		// 公开接口
		v1.GET("/widget.js", widgetHandler.Script)
		v1.GET("/widget/config", widgetHandler.Config)
		v1.POST("/contact",
			middleware.BodySizeLimit(middleware.SubmitBodyLimit),
			submitRateLimit,
			submitHandler.Submit,
		)

		// 管理接口
		admin := v1.Group("/admin", adminAuth)
		{
			admin.GET("/entries", adminHandler.ListEntries)
			admin.POST("/entries/delete", adminHandler.BulkDelete)
			admin.POST("/entries/export", adminHandler.Export)
			admin.GET("/options", adminHandler.GetOptions)
			admin.PUT("/options", adminHandler.UpdateOptions)
			admin.GET("/nonce", adminHandler.IssueNonce)
			admin.GET("/live", adminHandler.LiveEntries)
		}
	}

	// 运维端点
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/health", func(c *gin.Context) {
		results := deps.HealthChecker.CheckHealth()
		status := http.StatusOK
		for _, v := range results {
			if strings.HasPrefix(v, "ERROR") {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, results)
	})

	return router
}
