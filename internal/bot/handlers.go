package bot

import (
	"context"
	"fmt"
	"strings"

	"catalogbot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// process loads the chat session, dispatches the update and stores the result.
func (b *Bot) process(ctx context.Context, update tgbotapi.Update, chatID, userID int64) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic while handling update",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID))
			b.send(ctx, chatID, "Ocurrió un error procesando tu pedido. Probá de nuevo.")
			b.messenger.NotifyAdmin(ctx, fmt.Sprintf("panic in chat %d: %v", chatID, r))
		}
	}()

	s, err := b.sessions.Get(ctx, chatID)
	if err != nil {
		b.logger.Error("Failed to load session", zap.Int64("chat_id", chatID), zap.Error(err))
		b.send(ctx, chatID, "❌ No pude leer tu sesión, probá de nuevo en unos segundos.")
		b.messenger.NotifyAdmin(ctx, "session load failed: "+err.Error())
		return
	}
	s.UserID = userID

	if update.Message != nil {
		b.handleMessage(ctx, update.Message, s)
	} else if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery, s)
	}

	b.storeSession(ctx, s)
}

// handleMessage routes a message to a command or to the current wizard step
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message, s *session.Session) {
	switch {
	case len(message.Photo) > 0:
		b.handlePhoto(ctx, message, s)
	case message.IsCommand():
		b.handleCommand(ctx, message, s)
	case message.Text != "":
		b.handleText(ctx, message, s)
	default:
		b.send(ctx, s.ChatID, "Mandá una foto o /start.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, s *session.Session) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, s)
	case "reset":
		b.handleReset(ctx, s)
	case "cancelar", "cancel":
		b.handleCancel(ctx, s)
	case "eliminar":
		b.handleDelete(ctx, message, s)
	case "ultimos":
		b.handleLast(ctx, s)
	default:
		b.send(ctx, s.ChatID, "Comando desconocido. Usá /start para ver las opciones.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session) {
	toast := ""
	defer func() { b.acknowledge(ctx, query, toast) }()

	if s.PromptMessageID != 0 && query.Message.MessageID != s.PromptMessageID {
		toast = "Esta opción ya no está disponible."
		return
	}

	prefix, arg, _ := strings.Cut(query.Data, ":")
	switch {
	case prefix == "album" && s.Step == session.StepAlbumConfirm:
		b.handleAlbumCallback(ctx, query, s, arg == "yes")
	case prefix == "fabpage" && s.Step == session.StepAskFabric:
		b.handleFabricPageCallback(ctx, query, s, arg)
	case prefix == "fab" && s.Step == session.StepAskFabric:
		b.handleFabricCallback(ctx, query, s, arg)
	case prefix == "size" && s.Step == session.StepAskSizes:
		b.handleSizeCallback(ctx, query, s, arg)
	case prefix == "sizes" && s.Step == session.StepAskSizes:
		b.handleSizesDoneCallback(ctx, query, s)
	default:
		b.logger.Debug("Stale callback ignored",
			zap.String("data", query.Data),
			zap.String("step", string(s.Step)))
		toast = "Esta opción ya no está disponible."
	}
}

// storeSession saves s, or drops it once the chat has nothing in progress.
func (b *Bot) storeSession(ctx context.Context, s *session.Session) {
	var err error
	if s.Step == session.StepIdle && len(s.Queue) == 0 && len(s.Uploaded) == 0 {
		err = b.sessions.Reset(ctx, s.ChatID)
	} else {
		err = b.sessions.Save(ctx, s)
	}
	if err != nil {
		b.logger.Error("Failed to store session", zap.Int64("chat_id", s.ChatID), zap.Error(err))
		b.messenger.NotifyAdmin(ctx, "session save failed: "+err.Error())
	}
}
