package bot

import (
	"errors"
	"time"

	"catalogbot/internal/assets"
	"catalogbot/internal/catalog"
	"catalogbot/internal/config"
	"catalogbot/internal/session"
	"catalogbot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Deps are the collaborators of the wizard.
type Deps struct {
	API       *tgbotapi.BotAPI
	Messenger Messenger
	Catalog   catalog.Catalog
	Sessions  session.Store
	Uploader  *assets.Uploader
	Journal   storage.Journal
}

// Options tune the wizard.
type Options struct {
	AllowedUserIDs  []int64
	OperatorUserIDs []int64
	LockTimeout     time.Duration
	MaxUploadBytes  int64
	Choices         config.Options
	Settings        []Setting
	Checks          []Check
}

// NewBot creates the wizard
func NewBot(deps Deps, opts Options, logger *zap.Logger) (*Bot, error) {
	if deps.Messenger == nil || deps.Catalog == nil || deps.Sessions == nil || deps.Uploader == nil || deps.Journal == nil {
		return nil, errors.New("bot: missing dependency")
	}

	allowedUsers := make(map[int64]bool)
	for _, id := range opts.AllowedUserIDs {
		allowedUsers[id] = true
	}
	operators := make(map[int64]bool)
	for _, id := range opts.OperatorUserIDs {
		operators[id] = true
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 3 * time.Second
	}
	if len(opts.Choices.Fabrics) == 0 || len(opts.Choices.Sizes) == 0 {
		opts.Choices = config.DefaultOptions()
	}

	logger.Info("Wizard ready",
		zap.Int("allowed_users", len(allowedUsers)),
		zap.Int("operators", len(operators)),
		zap.Int("fabrics", len(opts.Choices.Fabrics)),
		zap.Int("sizes", len(opts.Choices.Sizes)))

	return &Bot{
		api:            deps.API,
		messenger:      deps.Messenger,
		catalog:        deps.Catalog,
		sessions:       deps.Sessions,
		uploader:       deps.Uploader,
		journal:        deps.Journal,
		choices:        opts.Choices,
		allowedUsers:   allowedUsers,
		operators:      operators,
		lockTimeout:    opts.LockTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
		settings:       opts.Settings,
		checks:         opts.Checks,
		logger:         logger,
	}, nil
}

// GetAPI returns the bot API used for polling and webhook setup
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
