package app

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes bounds a single webhook delivery.
const maxUpdateBytes = 1 << 20

// webhookHandler acknowledges every delivery with 200 so Telegram never
// retries; processing happens in dispatch. Only a wrong secret is refused.
func webhookHandler(dispatch func(tgbotapi.Update), secret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			logger.Warn("Webhook call with invalid secret", zap.String("remote_addr", r.RemoteAddr))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&update); err != nil {
			logger.Warn("Error decoding webhook update", zap.Error(err))
		} else if dispatch == nil {
			logger.Warn("Webhook update dropped, bot is not configured", zap.Int("update_id", update.UpdateID))
		} else {
			dispatch(update)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}
}
