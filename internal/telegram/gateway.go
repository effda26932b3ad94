// Package telegram wraps the Bot API calls the wizard needs with a timeout
// and bounded retries.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"catalogbot/internal/models"
	"catalogbot/internal/retry"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// RequestTimeout bounds every Bot API call.
const RequestTimeout = 5 * time.Second

// Gateway sends messages through the Bot API.
type Gateway struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
	policy      retry.Policy
	logger      *zap.Logger
}

// NewGateway connects to the Bot API. endpoint may be empty for the public API.
func NewGateway(token, endpoint string, adminChatID int64, logger *zap.Logger) (*Gateway, error) {
	if token == "" {
		return nil, models.ConfigurationError("TELEGRAM_BOT_TOKEN")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	return &Gateway{
		api:         api,
		adminChatID: adminChatID,
		policy:      retry.Network,
		logger:      logger,
	}, nil
}

// API exposes the underlying client for polling and webhook setup.
func (g *Gateway) API() *tgbotapi.BotAPI {
	return g.api
}

// SendText sends text with an optional inline keyboard and returns the message id.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	var sent tgbotapi.Message
	err := g.do(ctx, "sendMessage", func() error {
		var err error
		sent, err = g.api.Send(msg)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditText replaces the text of a message, dropping its keyboard.
func (g *Gateway) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	return g.request(ctx, "editMessageText", edit)
}

// EditKeyboard replaces the inline keyboard of a message.
func (g *Gateway) EditKeyboard(ctx context.Context, chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, keyboard)
	return g.request(ctx, "editMessageReplyMarkup", edit)
}

// AcknowledgeCallback answers a button press, optionally with a toast.
func (g *Gateway) AcknowledgeCallback(ctx context.Context, callbackID, text string) error {
	return g.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, text))
}

// ResolveFileURL turns a file id into a downloadable URL.
func (g *Gateway) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	var url string
	err := g.do(ctx, "getFile", func() error {
		var err error
		url, err = g.api.GetFileDirectURL(fileID)
		return err
	})
	return url, err
}

// NotifyAdmin mirrors a message to the operator channel when one is configured.
func (g *Gateway) NotifyAdmin(ctx context.Context, text string) {
	if g.adminChatID == 0 {
		return
	}
	if _, err := g.SendText(ctx, g.adminChatID, "⚠️ "+text, nil); err != nil {
		g.logger.Warn("Failed to notify admin", zap.Error(err))
	}
}

func (g *Gateway) request(ctx context.Context, method string, c tgbotapi.Chattable) error {
	return g.do(ctx, method, func() error {
		_, err := g.api.Request(c)
		return err
	})
}

func (g *Gateway) do(ctx context.Context, method string, call func() error) error {
	err := retry.Do(ctx, g.policy, func() error {
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}
		err := call()
		if err == nil || isNotModified(err) {
			return nil
		}
		if isClientError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		g.logger.Warn("Bot API call failed",
			zap.String("method", method),
			zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// isClientError reports Bot API rejections that a retry cannot fix.
func isClientError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
}

// isNotModified matches edits that would leave the message unchanged.
func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}
