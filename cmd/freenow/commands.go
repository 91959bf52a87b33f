package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"freenow/config"
	"freenow/internal/bot"
	"freenow/internal/dto"
	"freenow/internal/service"
	"freenow/pkg/jwt"
	"freenow/pkg/telegram"
)

var setWebhookCmd = &cobra.Command{
	Use:   "set-webhook",
	Short: "向 Telegram 注册 webhook 地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		url := cfg.Telegram.WebhookURL
		if url == "" {
			url = strings.TrimRight(cfg.Server.BaseURL, "/") + "/webhook"
		}
		tg, err := telegram.NewClient(&cfg.Telegram, logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := tg.SetWebhook(ctx, url, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "webhook 已设置: %s\n", url)
		return nil
	},
}

var deleteWebhookCmd = &cobra.Command{
	Use:   "delete-webhook",
	Short: "删除已注册的 webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		tg, err := telegram.NewClient(&cfg.Telegram, logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := tg.DeleteWebhook(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "webhook 已删除")
		return nil
	},
}

var decodeSemester int

var decodeCmd = &cobra.Command{
	Use:   "decode <share-link>",
	Short: "解析 NUSMods 分享链接并输出规范化结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc := config.CatalogConfig{Semester: decodeSemester}
		out, err := service.NewTimetableService(nil, cc.ShareBase(), zap.NewNop()).DecodeLink(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <chat-id>",
	Short: "为群聊签发 REST API 令牌",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("无效的 chat id %q: %w", args[0], err)
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		token, claims, err := jwt.NewManager(&cfg.Auth).GenerateScopeToken(bot.ScopeOf(chatID), "cli")
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dto.IssueTokenResponse{
			Token:     token,
			Scope:     claims.Scope,
			ExpiresAt: claims.ExpiresAt.Time.Format(time.RFC3339),
		})
	},
}

func init() {
	decodeCmd.Flags().IntVar(&decodeSemester, "semester", 1, "生成规范化链接所用的学期（1-4）")
}
