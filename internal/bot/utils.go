package bot

import (
	"context"
	"errors"
	"fmt"

	"catalogbot/internal/models"
	"catalogbot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// send delivers a plain message. Failures are logged only.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.messenger.SendText(ctx, chatID, text, nil); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// prompt sends text with a keyboard and returns the message id, or 0 on failure.
func (b *Bot) prompt(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) int {
	id, err := b.messenger.SendText(ctx, chatID, text, &keyboard)
	if err != nil {
		b.logger.Error("Failed to send prompt", zap.Int64("chat_id", chatID), zap.Error(err))
		return 0
	}
	return id
}

func (b *Bot) editText(ctx context.Context, chatID int64, messageID int, text string) {
	if err := b.messenger.EditText(ctx, chatID, messageID, text); err != nil {
		b.logger.Warn("Failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) editKeyboard(ctx context.Context, chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) {
	if err := b.messenger.EditKeyboard(ctx, chatID, messageID, keyboard); err != nil {
		b.logger.Warn("Failed to edit keyboard", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) acknowledge(ctx context.Context, query *tgbotapi.CallbackQuery, text string) {
	if query == nil {
		return
	}
	if err := b.messenger.AcknowledgeCallback(ctx, query.ID, text); err != nil {
		b.logger.Warn("Failed to answer callback", zap.String("callback_id", query.ID), zap.Error(err))
	}
}

// reportFailure logs a terminal error and mirrors it to the operator channel
// with the step that failed.
func (b *Bot) reportFailure(ctx context.Context, s *session.Session, operation string, err error) {
	step := string(s.Step)
	if step == "" {
		step = "IDLE"
	}
	b.logger.Error("Wizard operation failed",
		zap.String("operation", operation),
		zap.String("step", step),
		zap.Int64("chat_id", s.ChatID),
		zap.String("kind", string(models.KindOf(err))),
		zap.Error(err))
	b.messenger.NotifyAdmin(ctx, fmt.Sprintf("%s failed (chat %d, step %s): %v", operation, s.ChatID, step, err))
}

// userMessage returns the part of err that is safe to show in the chat.
func userMessage(err error) string {
	var e *models.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "error interno"
}
