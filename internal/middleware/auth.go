// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// PrincipalKey 是认证通过后调用方身份在 Gin 上下文中的键。
const PrincipalKey = "principal"

// AuthMiddleware 创建一个 Gin 中间件，用于 bearer token 认证。
// 它会从请求头中提取 token，交给 verifier 校验，并将 Principal 存入 Gin 的上下文中。
func AuthMiddleware(verifier token.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))

		principal, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("[Auth] token 校验失败, path=%s, err=%v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// CurrentPrincipal 返回 AuthMiddleware 写入的调用方身份，未认证时返回 nil。
func CurrentPrincipal(c *gin.Context) *token.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*token.Principal)
	return p
}
