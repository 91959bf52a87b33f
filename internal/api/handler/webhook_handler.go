package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"freenow/pkg/telegram"
)

// UpdateHandler 处理单条 Telegram 更新，*bot.Bot 满足该接口
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update) error
}

// WebhookHandler Telegram webhook 入口
type WebhookHandler struct {
	updates UpdateHandler
}

// NewWebhookHandler 创建 WebhookHandler
func NewWebhookHandler(updates UpdateHandler) *WebhookHandler {
	return &WebhookHandler{updates: updates}
}

// Receive 接收 Bot API 推送
// POST /webhook
//
// 始终返回 200，Telegram 对非 2xx 响应会重投同一条更新。
func (h *WebhookHandler) Receive(c *gin.Context) {
	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		_ = c.Error(err)
		c.Status(http.StatusOK)
		return
	}

	if h.updates != nil {
		// 客户端断开不应打断已开始的回复
		ctx := context.WithoutCancel(c.Request.Context())
		if err := h.updates.HandleUpdate(ctx, &u); err != nil {
			_ = c.Error(err)
		}
	}
	c.Status(http.StatusOK)
}
