package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"zontact/backend/internal/domain"
)

// 公开接口的响应形状刻意保持扁平：
//   - 成功:       {"message": "...", "warning": "...?"}
//   - 字段错误:   {"errors": {"field": "消息"}}
//   - 其余错误:   {"message": "..."}

// Accepted 留言接收成功响应（200）
func Accepted(c *gin.Context, message, warning string) {
	body := gin.H{"message": message}
	if warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}

// ValidationFailed 字段验证失败响应（422）
func ValidationFailed(c *gin.Context, errs domain.FieldErrors) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
}

// Fail 通用错误响应
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// OK 成功响应（带数据载荷）
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}
