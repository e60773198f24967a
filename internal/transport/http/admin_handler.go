package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/domain"
	"zontact/backend/internal/service"
	"zontact/backend/internal/storage"
	"zontact/backend/internal/websocket"
)

// AdminHandler 后台管理接口：留言列表、批量删除、CSV 导出、站点配置
type AdminHandler struct {
	submissions *service.SubmissionService
	options     *service.OptionsService
	export      *service.ExportService
	nonces      *nonce.Manager
	hub         *websocket.Hub
	logger      *zap.Logger
}

// NewAdminHandler 创建后台管理处理器
func NewAdminHandler(
	submissions *service.SubmissionService,
	options *service.OptionsService,
	export *service.ExportService,
	nonces *nonce.Manager,
	hub *websocket.Hub,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		submissions: submissions,
		options:     options,
		export:      export,
		nonces:      nonces,
		hub:         hub,
		logger:      logger,
	}
}

// ListEntries 处理 GET /v1/admin/entries
func (h *AdminHandler) ListEntries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "30"))

	search := c.Query("s")
	if search == "" {
		search = c.Query("search")
	}

	result, err := h.submissions.List(storage.ListQuery{
		Page:    page,
		PerPage: perPage,
		Search:  search,
	})
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		Fail(c, http.StatusInternalServerError, "获取留言列表失败")
		return
	}

	OK(c, result)
}

// bulkDeleteRequest 批量删除请求体
type bulkDeleteRequest struct {
	IDs   []int64 `json:"ids" binding:"required"`
	Nonce string  `json:"nonce"`
}

// BulkDelete 处理 POST /v1/admin/entries/delete
func (h *AdminHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	if err := h.nonces.Verify(req.Nonce, nonce.ActionBulkEntries); err != nil {
		Fail(c, http.StatusForbidden, "会话已过期，请刷新页面后重试。")
		return
	}

	deleted, err := h.submissions.BulkDelete(req.IDs)
	if err != nil {
		h.logger.Error("bulk delete failed", zap.Error(err))
		Fail(c, http.StatusInternalServerError, "删除留言失败")
		return
	}

	OK(c, gin.H{"deleted": deleted})
}

// exportRequest 导出请求体（ids 为空导出全部）
type exportRequest struct {
	IDs   []int64 `json:"ids"`
	Nonce string  `json:"nonce"`
}

// Export 处理 POST /v1/admin/entries/export，流式返回 CSV
func (h *AdminHandler) Export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	if err := h.nonces.Verify(req.Nonce, nonce.ActionExport); err != nil {
		Fail(c, http.StatusForbidden, "会话已过期，请刷新页面后重试。")
		return
	}

	// 授权、空集与取数都在发送附件响应头之前完成，
	// 终止性错误以普通 JSON 响应返回
	subs, err := h.export.Fetch(req.IDs)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExportNotEntitled):
			Fail(c, http.StatusForbidden, "CSV 导出未授权")
		case errors.Is(err, storage.ErrNoEntries):
			Fail(c, http.StatusNotFound, "没有可导出的留言")
		default:
			h.logger.Error("export fetch failed", zap.Error(err))
			Fail(c, http.StatusInternalServerError, "导出失败")
		}
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+h.export.Filename()+`"`)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")

	// 响应头已经发出，此后的写入错误只能中断流
	if rows, err := h.export.Write(c.Writer, subs); err != nil {
		h.logger.Error("export stream interrupted", zap.Error(err), zap.Int("rows_written", rows))
	}
}

// GetOptions 处理 GET /v1/admin/options，返回合并后的有效配置
func (h *AdminHandler) GetOptions(c *gin.Context) {
	OK(c, h.options.Effective())
}

// UpdateOptions 处理 PUT /v1/admin/options
func (h *AdminHandler) UpdateOptions(c *gin.Context) {
	var patch domain.Options
	if err := c.ShouldBindJSON(&patch); err != nil {
		Fail(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	effective, err := h.options.Update(&patch)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRecipient):
			Fail(c, http.StatusUnprocessableEntity, "收件人邮箱格式不正确")
		case errors.Is(err, service.ErrInvalidRetention):
			Fail(c, http.StatusUnprocessableEntity, "保留天数不合法")
		default:
			h.logger.Error("failed to update options", zap.Error(err))
			Fail(c, http.StatusInternalServerError, "保存配置失败")
		}
		return
	}

	OK(c, effective)
}

// IssueNonce 处理 GET /v1/admin/nonce?action=...，为后台操作签发令牌
func (h *AdminHandler) IssueNonce(c *gin.Context) {
	var action string
	switch c.Query("action") {
	case "bulk-entries":
		action = nonce.ActionBulkEntries
	case "export":
		action = nonce.ActionExport
	default:
		Fail(c, http.StatusBadRequest, "未知的操作类型")
		return
	}

	token, err := h.nonces.Issue(action)
	if err != nil {
		h.logger.Error("failed to issue admin nonce", zap.Error(err))
		Fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	OK(c, gin.H{
		"nonce":      token,
		"expires_in": int64(h.nonces.Lifetime().Seconds()),
	})
}

// LiveEntries 处理 GET /v1/admin/live，升级为 WebSocket 实时推送新留言
func (h *AdminHandler) LiveEntries(c *gin.Context) {
	h.hub.HandleConnection(c)
}
