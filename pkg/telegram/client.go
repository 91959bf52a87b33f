package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"freenow/config"
)

// ErrAPI Bot API 返回 ok=false
var ErrAPI = errors.New("telegram API 调用失败")

// Client Telegram Bot API 客户端
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient 创建客户端；token 为空时返回错误
func NewClient(cfg *config.TelegramConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram.token 未配置")
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	httpClient := resty.New().
		SetBaseURL(base + "/bot" + cfg.Token).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2)
	return &Client{http: httpClient, logger: logger}, nil
}

// SendMessage 发送纯文本消息
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":                  chatID,
			"text":                     text,
			"disable_web_page_preview": true,
		}).
		Post("/sendMessage")
	return c.check("sendMessage", resp, err)
}

// SendPhoto 以 multipart 上传图片
func (c *Client) SendPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	return c.upload(ctx, "sendPhoto", "photo", chatID, filename, data, caption)
}

// SendDocument 以 multipart 上传文件
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	return c.upload(ctx, "sendDocument", "document", chatID, filename, data, caption)
}

func (c *Client) upload(ctx context.Context, method, field string, chatID int64, filename string, data []byte, caption string) error {
	form := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		form["caption"] = caption
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader(field, filename, bytes.NewReader(data)).
		Post("/" + method)
	return c.check(method, resp, err)
}

// SetWebhook 注册 webhook；secret 会在每次推送时放入 X-Telegram-Bot-Api-Secret-Token
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]interface{}{
		"url":             url,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/setWebhook")
	if err := c.check("setWebhook", resp, err); err != nil {
		return err
	}
	c.logger.Info("webhook 已注册", zap.String("url", url))
	return nil
}

// DeleteWebhook 取消 webhook
func (c *Client) DeleteWebhook(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/deleteWebhook")
	return c.check("deleteWebhook", resp, err)
}

func (c *Client) check(method string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s 请求失败: %w", method, err)
	}
	var r apiResponse
	if jsonErr := json.Unmarshal(resp.Body(), &r); jsonErr != nil {
		return fmt.Errorf("%w: %s 返回 HTTP %d", ErrAPI, method, resp.StatusCode())
	}
	if !r.OK {
		c.logger.Warn("telegram API 返回错误",
			zap.String("method", method),
			zap.Int("error_code", r.ErrorCode),
			zap.String("description", r.Description),
		)
		return fmt.Errorf("%w: %s: %d %s", ErrAPI, method, r.ErrorCode, r.Description)
	}
	return nil
}
