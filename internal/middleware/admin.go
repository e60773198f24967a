package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth 管理接口的 Bearer 令牌认证。
//
// 令牌为静态配置值，比较使用常量时间算法。
// 未配置令牌时管理接口整体关闭。
func AdminAuth(apiToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": "管理接口未启用",
			})
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "缺少认证令牌",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "认证令牌无效",
			})
			return
		}

		c.Next()
	}
}
