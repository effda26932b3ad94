package bot

import (
	"context"
	"sync"
	"time"

	"catalogbot/internal/assets"
	"catalogbot/internal/catalog"
	"catalogbot/internal/config"
	"catalogbot/internal/session"
	"catalogbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Messenger is the part of the Telegram gateway the wizard talks to.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditKeyboard(ctx context.Context, chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) error
	AcknowledgeCallback(ctx context.Context, callbackID, text string) error
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
	NotifyAdmin(ctx context.Context, text string)
}

// Bot drives the product wizard for every chat.
type Bot struct {
	api       *tgbotapi.BotAPI // nil in tests and when no token is configured
	messenger Messenger
	catalog   catalog.Catalog
	sessions  session.Store
	uploader  *assets.Uploader
	journal   storage.Journal

	choices        config.Options
	allowedUsers   map[int64]bool
	operators      map[int64]bool
	lockTimeout    time.Duration
	maxUploadBytes int64

	settings []Setting
	checks   []Check

	logger *zap.Logger
	wg     sync.WaitGroup
}

// Setting is a configuration entry reported by /reset.
type Setting struct {
	Name       string
	Configured bool
}

// Check is a dependency probe run by /reset.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}
