package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/config"
	"zontact/backend/internal/domain"
	"zontact/backend/internal/health"
	"zontact/backend/internal/mail"
	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/service"
	"zontact/backend/internal/storage/memory"
	"zontact/backend/internal/websocket"
)

// promauto 指标注册是进程级的，整个测试二进制共用一份
var testMetrics = monitoring.NewMetrics()

const (
	testNonceSecret = "test-secret-key-at-least-32-chars-long"
	testAdminToken  = "test-admin-token"
)

// testEnv 聚合一套完整的测试路由及其可直接操作的依赖
type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	nonces *nonce.Manager
}

func newTestEnv(t *testing.T, exportEnabled bool) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{SiteDomain: "example.com"},
		Form: config.FormConfig{
			AdminEmail: "admin@example.com",
			RateLimit:  1000,
			RateWindow: time.Minute,
		},
		// 端口 1 无监听者，通知邮件必然快速失败
		SMTP:  config.SMTPConfig{Host: "127.0.0.1", Port: 1},
		Admin: config.AdminConfig{APIToken: testAdminToken, ExportEnabled: exportEnabled},
		CORS:  config.CORSConfig{AllowedOrigins: []string{"*"}},
		Nonce: config.NonceConfig{Secret: testNonceSecret, Issuer: "zontact"},
	}

	log := zap.NewNop()
	store := memory.NewStore()
	nonces := nonce.NewManager(cfg.Nonce.Secret, cfg.Nonce.Issuer, time.Hour)
	mailer := mail.NewMailer(cfg.SMTP, cfg.Server.SiteDomain, log, testMetrics)
	options := service.NewOptionsService(store, cfg.Form.AdminEmail, log)
	submissions := service.NewSubmissionService(store, options, mailer, nonces, log, testMetrics)
	export := service.NewExportService(store, cfg.Admin.ExportEnabled, log, testMetrics)
	hub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	router := NewRouter(RouterDependencies{
		Config:            cfg,
		SubmissionService: submissions,
		OptionsService:    options,
		ExportService:     export,
		NonceManager:      nonces,
		WebSocketHub:      hub,
		HealthChecker:     health.NewHealthChecker(store, log),
		Store:             store,
		Metrics:           testMetrics,
		Logger:            log,
	})

	return &testEnv{router: router, store: store, nonces: nonces}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) adminJSON(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	return e.do(req)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func validForm(nonce string) url.Values {
	return url.Values{
		"name":    {"张三"},
		"email":   {"zhangsan@example.com"},
		"message": {"想咨询一下产品。"},
		"consent": {"1"},
		"nonce":   {nonce},
	}
}

func TestSubmitEndpoint(t *testing.T) {
	t.Run("正常提交返回成功消息和邮件警告", func(t *testing.T) {
		env := newTestEnv(t, false)
		token, _ := env.nonces.Issue(nonce.ActionSubmit)

		w := env.postForm("/v1/contact", validForm(token))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.NotEmpty(t, body["message"])
		// SMTP 不可达，成功响应里带警告
		assert.NotEmpty(t, body["warning"])

		count, _ := env.store.CountSubmissions("")
		assert.Equal(t, 1, count)
	})

	t.Run("令牌无效返回 403", func(t *testing.T) {
		env := newTestEnv(t, false)

		w := env.postForm("/v1/contact", validForm("bad-token"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decodeJSON(t, w)
		assert.Contains(t, body["message"], "会话已过期")
	})

	t.Run("蜜罐命中返回 400", func(t *testing.T) {
		env := newTestEnv(t, false)
		token, _ := env.nonces.Issue(nonce.ActionSubmit)

		form := validForm(token)
		form.Set("website", "http://spam.example")
		w := env.postForm("/v1/contact", form)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		count, _ := env.store.CountSubmissions("")
		assert.Equal(t, 0, count)
	})

	t.Run("字段错误返回 422 和错误映射", func(t *testing.T) {
		env := newTestEnv(t, false)
		token, _ := env.nonces.Issue(nonce.ActionSubmit)

		w := env.postForm("/v1/contact", url.Values{
			"email": {"not-an-email"},
			"nonce": {token},
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decodeJSON(t, w)
		errs, ok := body["errors"].(map[string]interface{})
		assert.True(t, ok)
		assert.Contains(t, errs, "name")
		assert.Contains(t, errs, "email")
		assert.Contains(t, errs, "message")
	})

	t.Run("JSON 请求体同样被接受", func(t *testing.T) {
		env := newTestEnv(t, false)
		token, _ := env.nonces.Issue(nonce.ActionSubmit)

		raw, _ := json.Marshal(gin.H{
			"name":    "李四",
			"email":   "lisi@example.com",
			"message": "JSON 提交",
			"consent": "1",
			"nonce":   token,
		})
		req := httptest.NewRequest(http.MethodPost, "/v1/contact", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestWidgetEndpoints(t *testing.T) {
	t.Run("配置接口下发令牌和文案", func(t *testing.T) {
		env := newTestEnv(t, false)

		w := env.do(httptest.NewRequest(http.MethodGet, "/v1/widget/config", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, true, body["enabled"])
		assert.NotEmpty(t, body["nonce"])
		assert.NotEmpty(t, body["button_text"])
		assert.NotEmpty(t, body["consent_text"])

		// 下发的令牌确实可用于提交动作
		assert.NoError(t, env.nonces.Verify(body["nonce"].(string), nonce.ActionSubmit))
	})

	t.Run("按钮关闭时只返回 enabled=false", func(t *testing.T) {
		env := newTestEnv(t, false)
		disabled := false
		assert.NoError(t, env.store.SaveOptions(&domain.Options{EnableButton: &disabled}))

		w := env.do(httptest.NewRequest(http.MethodGet, "/v1/widget/config", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, false, body["enabled"])
		assert.NotContains(t, body, "nonce")
	})

	t.Run("挂件脚本可缓存下发", func(t *testing.T) {
		env := newTestEnv(t, false)

		w := env.do(httptest.NewRequest(http.MethodGet, "/v1/widget.js", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
		assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=3600")
		assert.NotZero(t, w.Body.Len())
	})
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("缺少令牌返回 401", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/v1/admin/entries", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("令牌错误返回 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/entries", nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("正确令牌放行", func(t *testing.T) {
		w := env.adminJSON(http.MethodGet, "/v1/admin/entries", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAdminEntries(t *testing.T) {
	env := newTestEnv(t, false)
	for i := 0; i < 3; i++ {
		assert.NoError(t, env.store.InsertSubmission(&domain.Submission{
			Name: "访客", Email: "guest@example.com", Message: "留言",
		}))
	}

	t.Run("列表返回分页数据", func(t *testing.T) {
		w := env.adminJSON(http.MethodGet, "/v1/admin/entries?page=1&per_page=2", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, float64(3), body["total"])
		assert.Equal(t, float64(2), body["totalPages"])
		assert.Len(t, body["entries"], 2)
	})

	t.Run("批量删除需要操作令牌", func(t *testing.T) {
		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/delete", gin.H{
			"ids":   []int64{1},
			"nonce": "bad-token",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("批量删除返回删除条数", func(t *testing.T) {
		token, _ := env.nonces.Issue(nonce.ActionBulkEntries)

		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/delete", gin.H{
			"ids":   []int64{1, 2, 999},
			"nonce": token,
		})

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, float64(2), body["deleted"])
	})
}

func TestAdminExport(t *testing.T) {
	t.Run("未授权时返回 403", func(t *testing.T) {
		env := newTestEnv(t, false)
		token, _ := env.nonces.Issue(nonce.ActionExport)

		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/export", gin.H{"nonce": token})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		assert.Empty(t, w.Header().Get("Content-Disposition"))
	})

	t.Run("没有留言返回 404 的 JSON 错误而非 CSV 附件", func(t *testing.T) {
		env := newTestEnv(t, true)
		token, _ := env.nonces.Issue(nonce.ActionExport)

		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/export", gin.H{"nonce": token})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		assert.Empty(t, w.Header().Get("Content-Disposition"))
		body := decodeJSON(t, w)
		assert.Contains(t, body["message"], "没有可导出的留言")
	})

	t.Run("导出返回带 BOM 的 CSV 附件", func(t *testing.T) {
		env := newTestEnv(t, true)
		assert.NoError(t, env.store.InsertSubmission(&domain.Submission{
			Name: "张三", Email: "zhangsan@example.com", Message: "你好",
		}))

		token, _ := env.nonces.Issue(nonce.ActionExport)
		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/export", gin.H{"nonce": token})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "zontact-entries-")
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}))
		assert.Contains(t, w.Body.String(), "zhangsan@example.com")
	})

	t.Run("导出操作同样需要令牌", func(t *testing.T) {
		env := newTestEnv(t, true)

		w := env.adminJSON(http.MethodPost, "/v1/admin/entries/export", gin.H{"nonce": "bad-token"})

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAdminOptions(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("读取返回合并后的有效配置", func(t *testing.T) {
		w := env.adminJSON(http.MethodGet, "/v1/admin/options", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, "admin@example.com", body["recipientEmail"])
		assert.Equal(t, true, body["enableButton"])
	})

	t.Run("保存后返回新的有效配置", func(t *testing.T) {
		w := env.adminJSON(http.MethodPut, "/v1/admin/options", gin.H{
			"recipientEmail": "sales@example.com",
			"retentionDays":  90,
		})

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.Equal(t, "sales@example.com", body["recipientEmail"])
		assert.Equal(t, float64(90), body["retentionDays"])
	})

	t.Run("收件人邮箱非法返回 422", func(t *testing.T) {
		w := env.adminJSON(http.MethodPut, "/v1/admin/options", gin.H{
			"recipientEmail": "not-an-email",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("保留天数为负返回 422", func(t *testing.T) {
		w := env.adminJSON(http.MethodPut, "/v1/admin/options", gin.H{
			"retentionDays": -1,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestAdminNonce(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("为后台操作签发令牌", func(t *testing.T) {
		w := env.adminJSON(http.MethodGet, "/v1/admin/nonce?action=export", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeJSON(t, w)
		assert.NotEmpty(t, body["nonce"])
		assert.Equal(t, float64(3600), body["expires_in"])

		assert.NoError(t, env.nonces.Verify(body["nonce"].(string), nonce.ActionExport))
	})

	t.Run("未知动作返回 400", func(t *testing.T) {
		w := env.adminJSON(http.MethodGet, "/v1/admin/nonce?action=unknown", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "OK", body["storage"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/widget/config", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
