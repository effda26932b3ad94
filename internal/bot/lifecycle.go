package bot

import (
	"context"
	"time"

	"catalogbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// updateTimeout bounds the handling of one update, publishing included.
const updateTimeout = 2 * time.Minute

// Start starts the bot in polling mode and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return models.ConfigurationError("TELEGRAM_BOT_TOKEN")
	}
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started successfully. Waiting for updates...")
	b.poll(ctx, updates)
	b.api.StopReceivingUpdates()
	return nil
}

// poll handles updates one at a time, in arrival order, until ctx is done
// or the channel closes. Each update counts as in flight for Wait.
func (b *Bot) poll(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
			b.HandleUpdate(updateCtx, update)
			cancel()
			b.wg.Done()
		}
	}
}

// StartWebhook registers webhookURL with Telegram. When secret is set,
// Telegram echoes it in the X-Telegram-Bot-Api-Secret-Token header.
func (b *Bot) StartWebhook(webhookURL, secret string) error {
	if b.api == nil {
		return models.ConfigurationError("TELEGRAM_BOT_TOKEN")
	}
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	params := tgbotapi.Params{"url": webhookURL + "/telegram-webhook"}
	params.AddNonZero("max_connections", 40)
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", false)

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	// Get webhook info to verify
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}
	return nil
}

// HandleWebhookUpdate processes update in the background so the webhook can
// acknowledge the delivery right away.
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until in-flight updates, polled or delivered by webhook, are done.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate processes a single update while holding the chat lock.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	chatID, user := target(update)
	if chatID == 0 || user == nil {
		return
	}

	if update.UpdateID != 0 {
		fresh, err := b.sessions.MarkUpdate(ctx, update.UpdateID)
		if err != nil {
			b.logger.Warn("Failed to mark update", zap.Int("update_id", update.UpdateID), zap.Error(err))
		} else if !fresh {
			b.logger.Debug("Duplicate update ignored", zap.Int("update_id", update.UpdateID))
			return
		}
	}

	if !b.isAllowed(user.ID) {
		b.logger.Warn("Unauthorized access attempt",
			zap.Int64("user_id", user.ID),
			zap.String("username", user.UserName),
			zap.String("first_name", user.FirstName),
		)
		if update.Message != nil {
			b.send(ctx, chatID, "Lo siento, no estás autorizado para usar este bot.")
		} else {
			b.acknowledge(ctx, update.CallbackQuery, "")
		}
		return
	}

	token, locked, err := b.sessions.AcquireLock(ctx, chatID, b.lockTimeout)
	if err != nil {
		b.logger.Error("Failed to acquire chat lock", zap.Int64("chat_id", chatID), zap.Error(err))
		b.messenger.NotifyAdmin(ctx, "session lock failed: "+err.Error())
		return
	}
	if !locked {
		b.logger.Info("Chat busy, update rejected", zap.Int64("chat_id", chatID))
		if update.CallbackQuery != nil {
			b.acknowledge(ctx, update.CallbackQuery, "Estoy procesando, reintentá en unos segundos.")
		} else {
			b.send(ctx, chatID, "⏳ Estoy procesando tu mensaje anterior, reintentá en unos segundos.")
		}
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.sessions.ReleaseLock(releaseCtx, chatID, token); err != nil {
			b.logger.Warn("Failed to release chat lock", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}()

	b.process(ctx, update, chatID, user.ID)
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}

func target(update tgbotapi.Update) (int64, *tgbotapi.User) {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, update.Message.From
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, update.CallbackQuery.From
	}
	return 0, nil
}
