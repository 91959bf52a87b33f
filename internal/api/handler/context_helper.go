package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"freenow/internal/api/middleware"
	"freenow/pkg/jwt"
	"freenow/pkg/response"
)

// MustGetScope 从 Gin 上下文中安全提取令牌的 scope。
// 如果 JWT 中间件未正确注入 scope，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetScope(c *gin.Context) (string, bool) {
	s := c.GetString(middleware.ScopeKey)
	if s == "" {
		response.Unauthorized(c, response.CodeUnauthorized, "未认证")
		return "", false
	}
	return s, true
}

// MustGetClaims 从 Gin 上下文中安全提取令牌声明
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(middleware.ClaimsKey)
	if !exists {
		response.Unauthorized(c, response.CodeUnauthorized, "未认证")
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, response.CodeUnauthorized, "未认证")
		return nil, false
	}
	return claims, true
}

// bindJSON 解析请求体；请求体超限时交给 BodyLimit 中间件写 413
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		_ = c.Error(err)
		return false
	}
	response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeBadRequest, "参数校验失败", err.Error())
	return false
}
