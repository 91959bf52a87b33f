package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"freenow/internal/dto"
	"freenow/internal/intake"
	"freenow/internal/service"
	"freenow/pkg/jwt"
	"freenow/pkg/telegram"
)

// Sender 向聊天发送消息，*telegram.Client 满足该接口
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
}

// Bot 聊天命令分发
type Bot struct {
	svc    *service.Service
	intake *intake.Manager
	sender Sender
	tokens *jwt.Manager // nil 时 /token 不可用
	logger *zap.Logger
}

// New 创建 Bot
func New(svc *service.Service, intakeMgr *intake.Manager, sender Sender, tokens *jwt.Manager, logger *zap.Logger) *Bot {
	return &Bot{svc: svc, intake: intakeMgr, sender: sender, tokens: tokens, logger: logger}
}

// ScopeOf 群聊对应的数据隔离域
func ScopeOf(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

// request 单条消息的处理上下文
type request struct {
	chatID  int64
	userID  int64
	private bool
	scope   string
	args    string
}

func (r request) key() intake.Key { return intake.Key{Chat: r.chatID, User: r.userID} }

type handlerFunc func(ctx context.Context, r request) error

func (b *Bot) commands() map[string]handlerFunc {
	return map[string]handlerFunc{
		"/start":     b.handleHelp,
		"/help":      b.handleHelp,
		"/freenow":   b.handleFreeNow,
		"/freeuntil": b.handleFreeUntil,
		"/freewhen":  b.handleFreeWhen,
		"/timetable": b.handleTimetable,
		"/export":    b.handleExport,
		"/ics":       b.handleICS,
		"/new":       b.handleNew,
		"/cancel":    b.handleCancel,
		"/list":      b.handleList,
		"/remove":    b.handleRemove,
		"/token":     b.handleToken,
	}
}

// HandleUpdate 处理一条 webhook 更新；非文本消息忽略
func (b *Bot) HandleUpdate(ctx context.Context, u *telegram.Update) error {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	r := request{
		chatID:  msg.Chat.ID,
		userID:  msg.From.ID,
		private: msg.Chat.Type == "private",
		scope:   ScopeOf(msg.Chat.ID),
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return b.continueIntake(ctx, r, text)
	}

	cmd, args := splitCommand(text)
	r.args = args
	h, ok := b.commands()[cmd]
	if !ok {
		if r.private {
			return b.reply(ctx, r, "Unknown command. Send /help to see what I can do.")
		}
		return nil
	}

	b.logger.Debug("处理命令",
		zap.String("command", cmd),
		zap.Int64("chat_id", r.chatID),
		zap.Int64("user_id", r.userID),
	)
	if err := h(ctx, r); err != nil {
		b.logger.Error("命令处理失败", zap.String("command", cmd), zap.Int64("chat_id", r.chatID), zap.Error(err))
		return b.reply(ctx, r, "Something went wrong. Please try again later.")
	}
	return nil
}

// splitCommand "/freewhen@freenow_bot Alice" → ("/freewhen", "Alice")
func splitCommand(text string) (string, string) {
	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (b *Bot) reply(ctx context.Context, r request, text string) error {
	return b.sender.SendMessage(ctx, r.chatID, text)
}

// ── 查询 ──

func (b *Bot) handleHelp(ctx context.Context, r request) error {
	return b.reply(ctx, r, helpText)
}

func (b *Bot) handleFreeNow(ctx context.Context, r request) error {
	resp, err := b.svc.Availability.FreeNow(ctx, r.scope)
	if err != nil {
		return err
	}
	return b.reply(ctx, r, formatFreeNow(resp))
}

func (b *Bot) handleFreeUntil(ctx context.Context, r request) error {
	resp, err := b.svc.Availability.FreeUntil(ctx, r.scope)
	if err != nil {
		return err
	}
	return b.reply(ctx, r, formatFreeUntil(resp))
}

func (b *Bot) handleFreeWhen(ctx context.Context, r request) error {
	if r.args == "" {
		return b.reply(ctx, r, "Usage: /freewhen <name>")
	}
	resp, err := b.svc.Availability.FreeWhen(ctx, r.scope, r.args)
	if errors.Is(err, service.ErrUnknownStudent) {
		return b.reply(ctx, r, fmt.Sprintf("I don't know anyone called %q here.", r.args))
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, r, formatFreeWhen(resp))
}

// ── 导出 ──

func (b *Bot) handleTimetable(ctx context.Context, r request) error {
	file, err := b.svc.Export.RenderPNG(ctx, r.scope)
	if msg, ok := exportErrorText(err); ok {
		return b.reply(ctx, r, msg)
	}
	if err != nil {
		return err
	}
	return b.sender.SendPhoto(ctx, r.chatID, file.Filename, file.Data, warningCaption(file.Warnings))
}

func (b *Bot) handleExport(ctx context.Context, r request) error {
	file, err := b.svc.Export.ExportXLSX(ctx, r.scope)
	if msg, ok := exportErrorText(err); ok {
		return b.reply(ctx, r, msg)
	}
	if err != nil {
		return err
	}
	return b.sender.SendDocument(ctx, r.chatID, file.Filename, file.Data, warningCaption(file.Warnings))
}

func (b *Bot) handleICS(ctx context.Context, r request) error {
	if r.args == "" {
		return b.reply(ctx, r, "Usage: /ics <name>")
	}
	file, err := b.svc.Export.ExportICS(ctx, r.scope, r.args)
	if errors.Is(err, service.ErrUnknownStudent) {
		return b.reply(ctx, r, fmt.Sprintf("I don't know anyone called %q here.", r.args))
	}
	if msg, ok := exportErrorText(err); ok {
		return b.reply(ctx, r, msg)
	}
	if err != nil {
		return err
	}
	return b.sender.SendDocument(ctx, r.chatID, file.Filename, file.Data, warningCaption(file.Warnings))
}

func exportErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrNoStudents):
		return noStudentsText, true
	case errors.Is(err, service.ErrExportNoSessions):
		return "There are no classes to export.", true
	}
	return "", false
}

// ── 录入 ──

func (b *Bot) handleNew(ctx context.Context, r request) error {
	if _, err := b.intake.Begin(ctx, r.key(), r.scope); err != nil {
		return err
	}
	return b.reply(ctx, r, promptFor(intake.AwaitingName))
}

func (b *Bot) handleCancel(ctx context.Context, r request) error {
	cancelled, err := b.intake.Cancel(ctx, r.key())
	if err != nil {
		return err
	}
	if !cancelled {
		return b.reply(ctx, r, "Nothing to cancel.")
	}
	return b.reply(ctx, r, "Cancelled.")
}

func (b *Bot) continueIntake(ctx context.Context, r request, text string) error {
	d, active, err := b.intake.Handle(ctx, r.key(), text)
	if !active {
		if err != nil {
			b.logger.Error("读取录入草稿失败", zap.Int64("chat_id", r.chatID), zap.Error(err))
		}
		return nil
	}
	if err != nil {
		if hint, ok := invalidInputText(err); ok {
			return b.reply(ctx, r, hint+"\n"+promptFor(d.State))
		}
		b.logger.Error("推进录入失败", zap.Int64("chat_id", r.chatID), zap.Error(err))
		return b.reply(ctx, r, "Something went wrong. Send /new to start over.")
	}

	if d.State != intake.Done {
		return b.reply(ctx, r, promptFor(d.State))
	}

	resp, err := b.svc.Timetable.SaveStudent(ctx, d.Scope, &dto.SaveStudentRequest{
		Name:      d.Name,
		Color:     d.Color,
		ShareLink: d.Link,
	})
	if err != nil {
		if msg, ok := saveErrorText(err); ok {
			return b.reply(ctx, r, msg)
		}
		b.logger.Error("保存学生失败", zap.String("scope", d.Scope), zap.Error(err))
		return b.reply(ctx, r, "Could not save the timetable. Please try /new again.")
	}
	return b.reply(ctx, r, formatSaved(resp))
}

// ── 管理 ──

func (b *Bot) handleList(ctx context.Context, r request) error {
	students, err := b.svc.Timetable.ListStudents(ctx, r.scope)
	if err != nil {
		return err
	}
	return b.reply(ctx, r, formatList(students))
}

func (b *Bot) handleRemove(ctx context.Context, r request) error {
	if r.args == "" {
		return b.reply(ctx, r, "Usage: /remove <name>")
	}
	err := b.svc.Timetable.DeleteStudent(ctx, r.scope, r.args)
	if errors.Is(err, service.ErrUnknownStudent) {
		return b.reply(ctx, r, fmt.Sprintf("I don't know anyone called %q here.", r.args))
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, r, fmt.Sprintf("Removed %s.", r.args))
}

// handleToken 令牌只通过私聊发送：群聊中发给请求者本人，群内只回复提示
func (b *Bot) handleToken(ctx context.Context, r request) error {
	if b.tokens == nil {
		return b.reply(ctx, r, "The REST API is not enabled.")
	}
	token, claims, err := b.tokens.GenerateScopeToken(r.scope, strconv.FormatInt(r.userID, 10))
	if err != nil {
		return err
	}
	text := tokenText(r.private, claims.ExpiresAt.Time, token)
	if r.private {
		b.logger.Info("签发 REST 令牌", zap.String("scope", r.scope), zap.Int64("user_id", r.userID), zap.String("jti", claims.ID))
		return b.reply(ctx, r, text)
	}

	if err := b.sender.SendMessage(ctx, r.userID, text); err != nil {
		// 用户未与机器人开启私聊时 Telegram 拒绝发送
		b.logger.Warn("私聊发送令牌失败", zap.String("scope", r.scope), zap.Int64("user_id", r.userID), zap.Error(err))
		return b.reply(ctx, r, tokenNeedsPrivateText)
	}
	b.logger.Info("签发 REST 令牌", zap.String("scope", r.scope), zap.Int64("user_id", r.userID), zap.String("jti", claims.ID))
	return b.reply(ctx, r, tokenSentText)
}
