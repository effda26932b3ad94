package bot

import (
	"context"
	"fmt"

	"catalogbot/internal/catalog"
	"catalogbot/internal/models"
	"catalogbot/internal/session"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallelUploads bounds concurrent downloads from Telegram.
const maxParallelUploads = 4

// publish uploads the pending photos, creates the product and confirms it.
// On failure the chat returns to ASK_PRICE so the price can be sent again.
// When the create outcome is unknown the uploads and the request id are kept,
// so the next attempt reuses them and cannot store the product twice.
func (b *Bot) publish(ctx context.Context, s *session.Session) {
	s.Step = session.StepPublishing
	b.send(ctx, s.ChatID, "⏳ Publicando…")

	if s.RequestID == "" {
		s.RequestID = uuid.NewString()
	}

	paths := s.Uploaded
	if len(paths) == 0 {
		var err error
		if paths, err = b.uploadPending(ctx, s.Pending); err != nil {
			if models.IsKind(err, models.KindTooLarge) {
				b.logger.Info("Upload rejected", zap.Int64("chat_id", s.ChatID), zap.Error(err))
				b.send(ctx, s.ChatID, "❌ Una de las fotos es demasiado grande. Cancelá con /cancelar y enviá una más liviana.")
			} else {
				b.reportFailure(ctx, s, "upload", err)
				b.send(ctx, s.ChatID, "❌ Error subiendo las fotos: "+userMessage(err)+". Reenviá el precio para reintentar.")
			}
			s.Step = session.StepAskPrice
			return
		}
		s.Uploaded = paths
	}

	// a crash from here on leaves the uploads discoverable and the price resendable
	checkpoint := s.Clone()
	checkpoint.Step = session.StepAskPrice
	if err := b.sessions.Save(ctx, checkpoint); err != nil {
		b.logger.Warn("Failed to checkpoint session", zap.Int64("chat_id", s.ChatID), zap.Error(err))
	}

	images := make([]string, len(paths))
	for i, p := range paths {
		images[i] = b.uploader.Reference(p)
	}
	price, _ := decimal.NewFromString(s.Price)

	product, err := b.catalog.Create(ctx, catalog.CreateRequest{
		Title:     s.Title,
		Images:    images,
		Price:     models.NewPrice(price),
		Fabric:    s.Fabric,
		Sizes:     s.Sizes,
		CreatedBy: s.UserID,
		RequestID: s.RequestID,
	})
	if err != nil {
		b.reportFailure(ctx, s, "create", err)
		b.send(ctx, s.ChatID, "❌ Error publicando: "+userMessage(err)+". Reenviá el precio para reintentar.")
		if !models.IsKind(err, models.KindPersistence) {
			// rejected outright: nothing references the uploads
			for _, p := range paths {
				b.uploader.Delete(ctx, p)
			}
			s.Uploaded = nil
			s.RequestID = ""
		}
		s.Step = session.StepAskPrice
		return
	}

	b.logger.Info("Product published",
		zap.Int64("chat_id", s.ChatID),
		zap.Int64("id", product.ID),
		zap.Int("images", len(product.Images)))

	b.send(ctx, s.ChatID, fmt.Sprintf("✅ Subido\n%s\n%s\n\n[ID: %d]\n\nPara eliminar, respondé este mensaje con /eliminar",
		product.Title, product.Description, product.ID))

	s.ClearProduct()
	if s.NextQueued() {
		b.askTitle(ctx, s)
	}
}

// uploadPending copies the photos into the asset folder in parallel and
// returns their paths in the original order. Partial uploads are removed
// when any photo fails.
func (b *Bot) uploadPending(ctx context.Context, fileIDs []string) ([]string, error) {
	if len(fileIDs) == 0 {
		return nil, models.ValidationError("no hay fotos para publicar")
	}

	paths := make([]string, len(fileIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, fileID := range fileIDs {
		g.Go(func() error {
			url, err := b.messenger.ResolveFileURL(gctx, fileID)
			if err != nil {
				return models.UploadError("no pude obtener la foto de Telegram", err)
			}
			p, err := b.uploader.Upload(gctx, url, b.uploader.NewPath(".jpg"), b.maxUploadBytes)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, p := range paths {
			if p != "" {
				b.uploader.Delete(ctx, p)
			}
		}
		return nil, err
	}
	return paths, nil
}
