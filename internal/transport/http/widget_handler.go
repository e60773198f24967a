package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zontact/backend/internal/assets"
	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/service"
)

// WidgetHandler 下发前端挂件脚本和运行时配置
type WidgetHandler struct {
	options *service.OptionsService
	nonces  *nonce.Manager
	logger  *zap.Logger
}

// NewWidgetHandler 创建挂件处理器
func NewWidgetHandler(options *service.OptionsService, nonces *nonce.Manager, logger *zap.Logger) *WidgetHandler {
	return &WidgetHandler{
		options: options,
		nonces:  nonces,
		logger:  logger,
	}
}

// widgetConfig 挂件运行时配置（字段名与前端脚本约定一致）
type widgetConfig struct {
	Enabled        bool   `json:"enabled"`
	Nonce          string `json:"nonce,omitempty"`
	FormTitle      string `json:"form_title,omitempty"`
	ButtonText     string `json:"button_text,omitempty"`
	ButtonColor    string `json:"button_color,omitempty"`
	ButtonPosition string `json:"button_position,omitempty"`
	ConsentText    string `json:"consent_text,omitempty"`
	SuccessMessage string `json:"success_message,omitempty"`
}

// Config 处理 GET /v1/widget/config。
//
// 按钮被关闭时只返回 enabled=false，不下发令牌和文案。
func (h *WidgetHandler) Config(c *gin.Context) {
	opts := h.options.Effective()

	if !opts.ButtonEnabled() {
		OK(c, widgetConfig{Enabled: false})
		return
	}

	token, err := h.nonces.Issue(nonce.ActionSubmit)
	if err != nil {
		h.logger.Error("failed to issue submit nonce", zap.Error(err))
		Fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	OK(c, widgetConfig{
		Enabled:        true,
		Nonce:          token,
		FormTitle:      opts.ButtonLabel,
		ButtonText:     opts.ButtonLabel,
		ButtonColor:    opts.AccentColor,
		ButtonPosition: string(opts.ButtonPosition),
		ConsentText:    opts.ConsentTextValue(),
		SuccessMessage: opts.SuccessMessage,
	})
}

// Script 处理 GET /v1/widget.js，原样下发嵌入式脚本
func (h *WidgetHandler) Script(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", assets.WidgetJS)
}
