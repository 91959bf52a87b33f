package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"freenow/pkg/jwt"
	"freenow/pkg/response"
)

// 上下文键
const (
	ScopeKey  = "scope"
	ClaimsKey = "claims"
)

// TokenBlacklist 已吊销令牌查询，*redis.Client 满足该接口
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTAuth scope 令牌认证中间件
// 从 Authorization: Bearer <token> 中提取并验证令牌；blacklist 为 nil 时跳过吊销检查
func JWTAuth(jwtMgr *jwt.Manager, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, response.CodeUnauthorized, "缺少认证头")
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			response.Unauthorized(c, response.CodeUnauthorized, "认证头格式无效")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, response.CodeUnauthorized, "Token 无效或已过期")
			c.Abort()
			return
		}

		if blacklist != nil {
			revoked, err := blacklist.IsBlacklisted(c.Request.Context(), claims.ID)
			// Redis 出错时降级放行
			if err == nil && revoked {
				response.Unauthorized(c, response.CodeUnauthorized, "Token 已吊销")
				c.Abort()
				return
			}
		}

		c.Set(ScopeKey, claims.Scope)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// WebhookSecret 校验 Telegram webhook 请求头中的密钥；secret 为空时不校验
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Forbidden(c, response.CodeForbidden, "webhook 密钥不匹配")
			c.Abort()
			return
		}
		c.Next()
	}
}
