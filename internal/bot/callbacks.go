package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"catalogbot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAlbumCallback answers "same item?": yes keeps every grouped photo in
// one product, no queues them as independent products.
func (b *Bot) handleAlbumCallback(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session, same bool) {
	messageID := query.Message.MessageID

	if same || len(s.Pending) < 2 {
		b.editText(ctx, s.ChatID, messageID, fmt.Sprintf("📸 Álbum: un producto con %d fotos.", len(s.Pending)))
		s.AlbumID = ""
		b.askTitle(ctx, s)
		return
	}

	b.editText(ctx, s.ChatID, messageID, fmt.Sprintf("📸 Álbum: %d productos individuales.", len(s.Pending)))
	s.Queue = append([]string(nil), s.Pending[1:]...)
	s.Pending = s.Pending[:1]
	s.QueueTotal = len(s.Queue) + 1
	s.QueueIndex = 1
	b.askTitle(ctx, s)
}

func (b *Bot) handleFabricPageCallback(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session, arg string) {
	page, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	s.FabricPage = clampPage(page, len(b.choices.Fabrics))
	b.editKeyboard(ctx, s.ChatID, query.Message.MessageID, fabricKeyboard(b.choices.Fabrics, s.FabricPage))
}

func (b *Bot) handleFabricCallback(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session, arg string) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= len(b.choices.Fabrics) {
		return
	}
	s.Fabric = b.choices.Fabrics[i]
	s.Sizes = nil
	s.Step = session.StepAskSizes

	b.editText(ctx, s.ChatID, query.Message.MessageID, "Tela seleccionada: "+s.Fabric)
	s.PromptMessageID = b.prompt(ctx, s.ChatID,
		"📏 Elegí los talles (podés marcar varios) y tocá \"Continuar ▶\".",
		sizesKeyboard(b.choices.Sizes, s.HasSize))
}

func (b *Bot) handleSizeCallback(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session, arg string) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= len(b.choices.Sizes) {
		return
	}
	s.ToggleSize(b.choices.Sizes[i])
	b.editKeyboard(ctx, s.ChatID, query.Message.MessageID, sizesKeyboard(b.choices.Sizes, s.HasSize))
}

func (b *Bot) handleSizesDoneCallback(ctx context.Context, query *tgbotapi.CallbackQuery, s *session.Session) {
	// keep the selection in keyboard order
	var sizes []string
	for _, size := range b.choices.Sizes {
		if s.HasSize(size) {
			sizes = append(sizes, size)
		}
	}
	s.Sizes = sizes

	summary := "—"
	if len(sizes) > 0 {
		summary = strings.Join(sizes, ", ")
	}
	b.editText(ctx, s.ChatID, query.Message.MessageID, "Talles: "+summary)

	s.Step = session.StepAskPrice
	s.PromptMessageID = 0
	b.send(ctx, s.ChatID, "💵 Ingresá el precio en ARS (por ejemplo 25999 o 25.999,50).")
}
