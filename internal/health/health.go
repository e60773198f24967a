package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"zontact/backend/internal/storage"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 存储层检查（数据库 + Redis 由存储实现自行聚合）
	hc.health.AddReadinessCheck("storage", func() error {
		return hc.store.Health()
	})

	// 限流计数器检查
	hc.health.AddReadinessCheck("rate_limit", func() error {
		_, err := hc.store.GetRateLimit("health_check")
		return err
	})

	hc.health.AddLivenessCheck("goroutine_threshold", healthcheck.GoroutineCountCheck(500))
}

// Handler 返回健康检查处理器（/live 和 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行一次健康检查并返回各组件状态
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}
