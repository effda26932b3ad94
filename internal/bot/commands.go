package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"catalogbot/internal/catalog"
	"catalogbot/internal/models"
	"catalogbot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// lastEventsLimit is the number of journal entries shown by /ultimos.
const lastEventsLimit = 10

var confirmationID = regexp.MustCompile(`\[ID:\s*(\d+)\]`)

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(ctx context.Context, s *session.Session) {
	text := `Hola 👋 Soy el bot de catálogo. Enviame una foto (o un álbum) y te ayudo a cargarla.

Consejo: si subís varias fotos de la misma prenda, mandalas como álbum para hacer un único producto con carrusel.

Comandos:
/cancelar - Descartar la carga en curso
/eliminar - Respondé a una confirmación "✅ Subido" para borrar ese producto
/ultimos - Últimos movimientos del catálogo
/reset - Diagnóstico de la configuración`

	b.send(ctx, s.ChatID, text)
}

// handleReset reports configured settings and probes every dependency
func (b *Bot) handleReset(ctx context.Context, s *session.Session) {
	var lines []string
	var missing []string
	for _, setting := range b.settings {
		lines = append(lines, mark(setting.Configured)+" "+setting.Name)
		if !setting.Configured {
			missing = append(missing, setting.Name)
		}
	}
	for _, check := range b.checks {
		err := check.Ping(ctx)
		if err != nil {
			b.logger.Warn("Diagnostic check failed", zap.String("check", check.Name), zap.Error(err))
		}
		lines = append(lines, mark(err == nil)+" "+check.Name+" responde")
	}

	b.send(ctx, s.ChatID, "🔧 RESET / DIAGNÓSTICO\n"+strings.Join(lines, "\n"))
	if len(missing) > 0 {
		b.messenger.NotifyAdmin(ctx, "RESET detectó variables faltantes: "+strings.Join(missing, ", "))
	}
}

// handleCancel discards the draft and any split album still queued
func (b *Bot) handleCancel(ctx context.Context, s *session.Session) {
	if s.Step == session.StepIdle && len(s.Queue) == 0 && len(s.Uploaded) == 0 {
		b.send(ctx, s.ChatID, "No hay ninguna carga en curso.")
		return
	}
	if s.PromptMessageID != 0 {
		b.editKeyboard(ctx, s.ChatID, s.PromptMessageID, emptyKeyboard())
	}
	b.discardDraft(ctx, s)
	b.send(ctx, s.ChatID, "❎ Carga cancelada. Enviá una foto para empezar de nuevo.")
}

// handleDelete removes the product referenced by the confirmation message
// the command replies to
func (b *Bot) handleDelete(ctx context.Context, message *tgbotapi.Message, s *session.Session) {
	id, ok := referencedID(message.ReplyToMessage)
	if !ok {
		b.send(ctx, s.ChatID, "Para eliminar, respondé al mensaje de confirmación “✅ Subido … [ID: …]” con /eliminar.")
		return
	}

	product, err := b.catalog.Get(ctx, id)
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			b.send(ctx, s.ChatID, fmt.Sprintf("❌ No encontré el producto (ID: %d).", id))
			return
		}
		b.send(ctx, s.ChatID, "❌ Error eliminando: "+userMessage(err))
		b.reportFailure(ctx, s, fmt.Sprintf("delete id=%d", id), err)
		return
	}
	if product.CreatedBy != s.UserID && !b.operators[s.UserID] {
		b.logger.Warn("Delete refused, not the owner",
			zap.Int64("id", id),
			zap.Int64("user_id", s.UserID),
			zap.Int64("created_by", product.CreatedBy))
		b.send(ctx, s.ChatID, "⛔ Solo quien cargó el producto puede eliminarlo.")
		return
	}

	hard := strings.EqualFold(strings.TrimSpace(message.CommandArguments()), "definitivo")
	_, err = b.catalog.Delete(ctx, catalog.DeleteRequest{ID: id, Hard: hard, Actor: actor(s.UserID)})
	if err != nil {
		if models.IsKind(err, models.KindNotFound) {
			b.send(ctx, s.ChatID, fmt.Sprintf("❌ No encontré el producto (ID: %d).", id))
			return
		}
		b.send(ctx, s.ChatID, "❌ Error eliminando: "+userMessage(err))
		b.reportFailure(ctx, s, fmt.Sprintf("delete id=%d", id), err)
		return
	}
	b.send(ctx, s.ChatID, fmt.Sprintf("🗑️ Eliminado correctamente (ID: %d).", id))
}

// handleLast shows the latest catalog events
func (b *Bot) handleLast(ctx context.Context, s *session.Session) {
	events, err := b.journal.LastEvents(ctx, lastEventsLimit)
	if err != nil {
		b.send(ctx, s.ChatID, "❌ No pude leer los movimientos.")
		b.reportFailure(ctx, s, "last events", err)
		return
	}
	if len(events) == 0 {
		b.send(ctx, s.ChatID, "Todavía no hay movimientos en el catálogo.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 Últimos movimientos:\n")
	for i, event := range events {
		fmt.Fprintf(&sb, "\n%d. %s · %s", i+1, event.At.Format("02/01/2006 15:04"), actionLabel(event.Action))
		if event.ProductID != 0 {
			fmt.Fprintf(&sb, " · #%d", event.ProductID)
		}
		if event.Title != "" {
			sb.WriteString(" · " + event.Title)
		}
	}
	b.send(ctx, s.ChatID, sb.String())
}

// referencedID extracts the record id from a bot confirmation message.
func referencedID(reply *tgbotapi.Message) (int64, bool) {
	if reply == nil || reply.From == nil || !reply.From.IsBot {
		return 0, false
	}
	m := confirmationID.FindStringSubmatch(reply.Text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func actionLabel(action string) string {
	switch action {
	case models.ActionCreate:
		return "alta"
	case models.ActionSoftDelete:
		return "baja"
	case models.ActionHardDelete:
		return "baja definitiva"
	case models.ActionReset:
		return "reinicio"
	}
	return action
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func actor(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}
