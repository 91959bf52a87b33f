package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"freenow/pkg/response"
)

// TokenRevoker 令牌吊销，*redis.Client 满足该接口
type TokenRevoker interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthHandler 令牌信息与吊销
type AuthHandler struct {
	revoker TokenRevoker
}

// NewAuthHandler 创建 AuthHandler；revoker 为 nil 时不支持吊销
func NewAuthHandler(revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{revoker: revoker}
}

// Me 当前令牌的 scope 与有效期
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := MustGetClaims(c)
	if !ok {
		return
	}

	data := gin.H{"scope": claims.Scope, "issued_by": claims.IssuedBy}
	if claims.ExpiresAt != nil {
		data["expires_at"] = claims.ExpiresAt.Time
	}
	response.OK(c, data)
}

// Revoke 吊销当前令牌
// POST /api/v1/auth/revoke
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims, ok := MustGetClaims(c)
	if !ok {
		return
	}
	if h.revoker == nil {
		response.Error(c, http.StatusNotImplemented, response.CodeInternal, "未配置 Redis，无法吊销令牌")
		return
	}

	ttl := claims.RemainingTTL()
	if ttl <= 0 {
		response.OK(c, nil)
		return
	}
	if err := h.revoker.BlacklistToken(c.Request.Context(), claims.ID, ttl); err != nil {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}
	response.OK(c, nil)
}
