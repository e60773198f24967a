package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zontact/backend/internal/domain"
	"zontact/backend/internal/service"
)

// SubmitHandler 处理访客留言提交
type SubmitHandler struct {
	submissions *service.SubmissionService
	logger      *zap.Logger
}

// NewSubmitHandler 创建留言提交处理器
func NewSubmitHandler(submissions *service.SubmissionService, logger *zap.Logger) *SubmitHandler {
	return &SubmitHandler{
		submissions: submissions,
		logger:      logger,
	}
}

// submitRequest 提交表单的绑定结构，同时接受表单编码和 JSON
type submitRequest struct {
	Name    string `form:"name" json:"name"`
	Email   string `form:"email" json:"email"`
	Message string `form:"message" json:"message"`
	Website string `form:"website" json:"website"`
	Consent string `form:"consent" json:"consent"`
	Nonce   string `form:"nonce" json:"nonce"`
}

// Submit 处理 POST /v1/contact
func (h *SubmitHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBind(&req); err != nil {
		Fail(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	outcome, err := h.submissions.Submit(service.SubmitRequest{
		Input: domain.SubmissionInput{
			Name:    req.Name,
			Email:   req.Email,
			Message: req.Message,
			Website: req.Website,
			Consent: req.Consent != "" && req.Consent != "0" && req.Consent != "false",
		},
		Nonce:     req.Nonce,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})

	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.Is(err, service.ErrNonceInvalid):
			Fail(c, http.StatusForbidden, "会话已过期，请刷新页面后重试。")
		case errors.Is(err, service.ErrSpam):
			Fail(c, http.StatusBadRequest, "提交被拒绝。")
		case errors.As(err, &vErr):
			ValidationFailed(c, vErr.Fields)
		default:
			h.logger.Error("submission failed", zap.Error(err))
			Fail(c, http.StatusInternalServerError, "服务器内部错误，请稍后重试。")
		}
		return
	}

	Accepted(c, outcome.Message, outcome.Warning)
}
