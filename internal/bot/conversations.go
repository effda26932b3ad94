package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"catalogbot/internal/catalog"
	"catalogbot/internal/models"
	"catalogbot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handlePhoto starts a product from a single photo or collects album photos
func (b *Bot) handlePhoto(ctx context.Context, message *tgbotapi.Message, s *session.Session) {
	photo := message.Photo[len(message.Photo)-1] // largest size comes last
	if b.maxUploadBytes > 0 && int64(photo.FileSize) > b.maxUploadBytes {
		err := models.TooLargeError(int64(photo.FileSize), b.maxUploadBytes)
		b.logger.Info("Photo rejected", zap.Int64("chat_id", s.ChatID), zap.Error(err))
		b.send(ctx, s.ChatID, "❌ La foto es demasiado grande (máximo "+formatBytes(b.maxUploadBytes)+"). Probá con una más liviana.")
		return
	}

	group := message.MediaGroupID
	if group != "" && group == s.AlbumID {
		switch {
		case s.Step == session.StepAlbumConfirm:
			s.Pending = append(s.Pending, photo.FileID)
		case s.QueueTotal > 0:
			// album already split, the late photo gets its own wizard
			s.Queue = append(s.Queue, photo.FileID)
			s.QueueTotal++
		default:
			s.Pending = append(s.Pending, photo.FileID)
		}
		return
	}

	if s.Step != session.StepIdle || len(s.Queue) > 0 {
		b.logger.Info("Draft replaced by a new photo",
			zap.Int64("chat_id", s.ChatID),
			zap.String("step", string(s.Step)))
		if s.PromptMessageID != 0 {
			b.editKeyboard(ctx, s.ChatID, s.PromptMessageID, emptyKeyboard())
		}
		b.discardDraft(ctx, s)
	}

	s.Pending = []string{photo.FileID}
	if group != "" {
		s.AlbumID = group
		s.Step = session.StepAlbumConfirm
		s.PromptMessageID = b.prompt(ctx, s.ChatID, "📸 Detecté un álbum.\n¿Todas las fotos son de la misma prenda?", albumKeyboard())
		return
	}
	b.askTitle(ctx, s)
}

// handleText feeds free text to the current wizard step
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message, s *session.Session) {
	text := strings.TrimSpace(message.Text)

	switch s.Step {
	case session.StepAskTitle:
		if text == "" {
			b.send(ctx, s.ChatID, "El nombre no puede estar vacío. Decime el nombre de la prenda.")
			return
		}
		if utf8.RuneCountInString(text) > catalog.MaxTitleLength {
			b.send(ctx, s.ChatID, fmt.Sprintf("El nombre es muy largo (máximo %d caracteres). Probá con uno más corto.", catalog.MaxTitleLength))
			return
		}
		s.Title = text
		s.Step = session.StepAskFabric
		s.FabricPage = 0
		s.PromptMessageID = b.prompt(ctx, s.ChatID, "🧵 Elegí la tela:", fabricKeyboard(b.choices.Fabrics, 0))

	case session.StepAskPrice:
		price, err := ParsePrice(text)
		if err != nil {
			b.send(ctx, s.ChatID, "💵 "+userMessage(err)+".")
			return
		}
		s.Price = price.String()
		b.publish(ctx, s)

	case session.StepAlbumConfirm, session.StepAskFabric, session.StepAskSizes:
		b.send(ctx, s.ChatID, "Usá los botones del mensaje anterior para continuar, o /cancelar.")

	case session.StepPublishing:
		b.send(ctx, s.ChatID, "⏳ Estoy publicando el producto, esperá un momento.")

	default:
		b.send(ctx, s.ChatID, "Enviá una foto o un álbum para comenzar. /start")
	}
}

// askTitle moves to ASK_TITLE and prompts for the product name, showing the
// position when a split album is being processed.
func (b *Bot) askTitle(ctx context.Context, s *session.Session) {
	s.Step = session.StepAskTitle
	s.PromptMessageID = 0
	text := "📝 Decime el nombre de la prenda."
	if s.QueueTotal > 0 {
		text = fmt.Sprintf("📝 (Foto %d/%d) Decime el nombre de la prenda.", s.QueueIndex, s.QueueTotal)
	}
	b.send(ctx, s.ChatID, text)
}

// discardDraft deletes uploads that were never published and forgets the
// draft together with any queued album photos.
func (b *Bot) discardDraft(ctx context.Context, s *session.Session) {
	for _, p := range s.Uploaded {
		b.uploader.Delete(ctx, p)
	}
	s.ClearProduct()
	s.Queue = nil
	s.QueueTotal, s.QueueIndex, s.AlbumID = 0, 0, ""
}

func formatBytes(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d KB", max(n>>10, 1))
}
