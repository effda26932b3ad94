package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"catalogbot/internal/assets"
	"catalogbot/internal/catalog"
	"catalogbot/internal/models"
	"catalogbot/internal/session"
	"catalogbot/internal/storage/stubs"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUser     = int64(123)
	testChat     = int64(456)
	testOperator = int64(999)
)

type sentMessage struct {
	ChatID   int64
	ID       int
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

// fakeMessenger records everything the bot sends instead of calling Telegram
type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	edits     []sentMessage
	keyboards []sentMessage
	acks      []string
	admin     []string
	fileBase  string
	onSend    func()
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, ID: f.nextID, Text: text, Keyboard: keyboard})
	return f.nextID, nil
}

func (f *fakeMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMessage{ChatID: chatID, ID: messageID, Text: text})
	return nil
}

func (f *fakeMessenger) EditKeyboard(ctx context.Context, chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyboards = append(f.keyboards, sentMessage{ChatID: chatID, ID: messageID, Keyboard: &keyboard})
	return nil
}

func (f *fakeMessenger) AcknowledgeCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, text)
	return nil
}

func (f *fakeMessenger) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	return f.fileBase + "/" + fileID + ".jpg", nil
}

func (f *fakeMessenger) NotifyAdmin(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin = append(f.admin, text)
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

// lastKeyboardMessage returns the id of the latest message sent with a keyboard.
func (f *fakeMessenger) lastKeyboardMessage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Keyboard != nil {
			return f.sent[i].ID
		}
	}
	return 0
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeMessenger) adminMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.admin...)
}

type testEnv struct {
	t         *testing.T
	bot       *Bot
	messenger *fakeMessenger
	store     *stubs.MockStore
	journal   *stubs.MockJournal
	sessions  *session.MemoryStore
	updates   int
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	// Photos are served by a local file server: "big" exceeds the upload
	// limit and "missing" does not exist.
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big.jpg":
			w.Write(make([]byte, 4096))
		case "/missing.jpg":
			http.NotFound(w, r)
		default:
			w.Write([]byte("jpeg:" + r.URL.Path))
		}
	}))
	t.Cleanup(files.Close)

	logger := zap.NewNop()
	store := stubs.NewMockStore()
	journal := stubs.NewMockJournal()
	service := catalog.NewService(catalog.NewRepository(store, store, "images", logger), journal, logger)
	messenger := &fakeMessenger{fileBase: files.URL}
	sessions := session.NewMemoryStore(time.Hour)

	if opts.LockTimeout == 0 {
		opts.LockTimeout = 50 * time.Millisecond
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1024
	}
	opts.OperatorUserIDs = append(opts.OperatorUserIDs, testOperator)

	b, err := NewBot(Deps{
		Messenger: messenger,
		Catalog:   service,
		Sessions:  sessions,
		Uploader:  assets.NewUploader(store, "images", "", logger),
		Journal:   journal,
	}, opts, logger)
	require.NoError(t, err)

	return &testEnv{t: t, bot: b, messenger: messenger, store: store, journal: journal, sessions: sessions}
}

func (e *testEnv) handle(update tgbotapi.Update) {
	e.updates++
	update.UpdateID = e.updates
	e.bot.HandleUpdate(context.Background(), update)
}

func (e *testEnv) photo(fileID, group string) {
	e.photoSized(fileID, group, 100)
}

func (e *testEnv) photoSized(fileID, group string, size int) {
	e.handle(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUser},
		Chat: &tgbotapi.Chat{ID: testChat},
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-thumb", FileSize: 10},
			{FileID: fileID, FileSize: size},
		},
		MediaGroupID: group,
	}})
}

func (e *testEnv) text(text string) {
	e.textFrom(testUser, testChat, text, nil)
}

func (e *testEnv) textFrom(userID, chatID int64, text string, replyTo *tgbotapi.Message) {
	msg := &tgbotapi.Message{
		From:           &tgbotapi.User{ID: userID},
		Chat:           &tgbotapi.Chat{ID: chatID},
		Text:           text,
		ReplyToMessage: replyTo,
	}
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	e.handle(tgbotapi.Update{Message: msg})
}

// press taps a button on the latest keyboard message
func (e *testEnv) press(data string) {
	e.handle(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   fmt.Sprintf("cb-%d", e.updates+1),
		From: &tgbotapi.User{ID: testUser},
		Message: &tgbotapi.Message{
			MessageID: e.messenger.lastKeyboardMessage(),
			Chat:      &tgbotapi.Chat{ID: testChat},
		},
		Data: data,
	}})
}

func (e *testEnv) session() *session.Session {
	s, err := e.sessions.Get(context.Background(), testChat)
	require.NoError(e.t, err)
	return s
}

// describe walks a product from the title prompt to the published confirmation
func (e *testEnv) describe(title, price string) {
	e.text(title)
	e.press("fab:0")
	e.press("size:1")
	e.press("sizes:done")
	e.text(price)
}

func (e *testEnv) confirmation() *tgbotapi.Message {
	for _, text := range e.messenger.texts() {
		if strings.HasPrefix(text, "✅ Subido") {
			return &tgbotapi.Message{From: &tgbotapi.User{ID: 1, IsBot: true}, Text: text}
		}
	}
	e.t.Fatal("Expected a confirmation message")
	return nil
}

func TestBot_SinglePhotoWizard(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	// Step 1: photo starts the wizard
	env.photo("photo-1", "")
	assert.Equal(t, session.StepAskTitle, env.session().Step)
	assert.Equal(t, "📝 Decime el nombre de la prenda.", env.messenger.lastText())

	// Step 2: title
	env.text("Remera Oversize")
	assert.Equal(t, session.StepAskFabric, env.session().Step)
	assert.Equal(t, "🧵 Elegí la tela:", env.messenger.lastText())

	// Step 3: fabric
	env.press("fab:0")
	s := env.session()
	assert.Equal(t, session.StepAskSizes, s.Step)
	assert.Equal(t, "algodón", s.Fabric)
	assert.Contains(t, env.messenger.edits[len(env.messenger.edits)-1].Text, "Tela seleccionada: algodón")

	// Step 4: sizes toggle in place
	env.press("size:1")
	env.press("size:2")
	env.press("size:1")
	assert.Equal(t, []string{"3 ( L )"}, env.session().Sizes)
	require.Len(t, env.messenger.keyboards, 3)
	firstRow := env.messenger.keyboards[2].Keyboard.InlineKeyboard[0]
	assert.Equal(t, "2 ( M )", firstRow[1].Text)
	assert.Equal(t, "✅ 3 ( L )", firstRow[2].Text)

	env.press("size:1")
	env.press("sizes:done")
	assert.Equal(t, session.StepAskPrice, env.session().Step)
	assert.Equal(t, []string{"2 ( M )", "3 ( L )"}, env.session().Sizes, "selection follows keyboard order")

	// Step 5: price publishes
	env.text("25.999,50")

	items, _, err := env.store.ReadDocument(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	product := items[0]
	assert.Equal(t, "Remera Oversize", product.Title)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("25999.5")))
	assert.Equal(t, "Tela: Algodón · Talles: 2 ( M ), 3 ( L ) · Precio: $25.999,5 ARS", product.Description)
	assert.Equal(t, testUser, product.CreatedBy)
	require.Len(t, product.Images, 1)
	assert.True(t, strings.HasPrefix(product.Images[0], "images/"))

	blob, ok := env.store.Blob(product.Images[0])
	require.True(t, ok)
	assert.Equal(t, "jpeg:/photo-1.jpg", string(blob))

	assert.Equal(t, fmt.Sprintf("✅ Subido\nRemera Oversize\n%s\n\n[ID: %d]\n\nPara eliminar, respondé este mensaje con /eliminar",
		product.Description, product.ID), env.messenger.lastText())
	assert.Equal(t, session.StepIdle, env.session().Step)

	events, err := env.journal.LastEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionCreate, events[0].Action)
	assert.Equal(t, "tg:123", events[0].Actor)
}

func TestBot_AlbumSplit(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.photo("a", "album-1")
	env.photo("b", "album-1")
	env.photo("c", "album-1")

	s := env.session()
	assert.Equal(t, session.StepAlbumConfirm, s.Step)
	assert.Equal(t, []string{"a", "b", "c"}, s.Pending)

	albumPrompts := 0
	for _, text := range env.messenger.texts() {
		if strings.HasPrefix(text, "📸 Detecté un álbum.") {
			albumPrompts++
		}
	}
	assert.Equal(t, 1, albumPrompts, "the album question is asked once")

	env.press("album:no")
	assert.Equal(t, "📝 (Foto 1/3) Decime el nombre de la prenda.", env.messenger.lastText())
	assert.Equal(t, []string{"a"}, env.session().Pending)

	env.describe("Primera", "1000")
	assert.Equal(t, "📝 (Foto 2/3) Decime el nombre de la prenda.", env.messenger.lastText())
	env.describe("Segunda", "2000")
	assert.Equal(t, "📝 (Foto 3/3) Decime el nombre de la prenda.", env.messenger.lastText())
	env.describe("Tercera", "3000")

	items, _, err := env.store.ReadDocument(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// newest first
	assert.Equal(t, "Tercera", items[0].Title)
	assert.Equal(t, "Primera", items[2].Title)
	for _, item := range items {
		assert.Len(t, item.Images, 1)
	}

	s = env.session()
	assert.Equal(t, session.StepIdle, s.Step)
	assert.Zero(t, s.QueueTotal)
}

func TestBot_AlbumSameItem(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("a", "album-2")
	env.photo("b", "album-2")
	env.photo("c", "album-2")
	env.press("album:yes")
	assert.Equal(t, "📝 Decime el nombre de la prenda.", env.messenger.lastText())

	env.describe("Conjunto", "15000")

	items, _, err := env.store.ReadDocument(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, items[0].Images, 3)
	assert.Equal(t, items[0].Images[0], items[0].Image, "cover is the first photo")

	for i, name := range []string{"a", "b", "c"} {
		blob, ok := env.store.Blob(items[0].Images[i])
		require.True(t, ok)
		assert.Equal(t, "jpeg:/"+name+".jpg", string(blob), "photos keep album order")
	}
}

func TestBot_InvalidPriceKeepsStep(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("photo-1", "")
	env.text("Remera")
	env.press("fab:3")
	env.press("sizes:done")
	env.text("abc")

	assert.Equal(t, session.StepAskPrice, env.session().Step)
	assert.Contains(t, env.messenger.lastText(), "precio inválido")
	assert.Empty(t, env.store.BlobPaths(), "nothing is uploaded before a valid price")

	env.text("12000")
	items, _, _ := env.store.ReadDocument(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "Tela: Lino · Precio: $12.000 ARS", items[0].Description)
}

func TestParsePrice(t *testing.T) {
	valid := map[string]string{
		"25999":     "25999",
		"25.999":    "25999",
		"25.999,50": "25999.5",
		"25,5":      "25.5",
		"1.234.567": "1234567",
		"$ 1.500":   "1500",
		"1,234.56":  "1234.56",
		"25999.5":   "25999.5",
		"12 ARS":    "12",
		"10,99":     "10.99",
		"25,999":    "25999",
		"1,500":     "1500",
		"0,500":     "0.5",
		"0.250":     "0.25",
	}
	for input, want := range valid {
		got, err := ParsePrice(input)
		if assert.NoError(t, err, input) {
			assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s parsed as %s", input, got)
		}
	}

	for _, input := range []string{"", "abc", "0", "-5", ".", "12a", "0,00"} {
		_, err := ParsePrice(input)
		assert.True(t, models.IsKind(err, models.KindValidation), "expected %q to be rejected", input)
	}
}

func TestBot_CancelDiscardsUploads(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	// a publish that crashed after uploading left the paths in the session
	_, err := env.store.PutBlob(ctx, "images/orphan.jpg", []byte("x"), "upload")
	require.NoError(t, err)
	s := session.New(testChat)
	s.Step = session.StepPublishing
	s.Pending = []string{"photo-1"}
	s.Uploaded = []string{"images/orphan.jpg"}
	s.Queue = []string{"photo-2"}
	s.QueueTotal, s.QueueIndex = 2, 1
	require.NoError(t, env.sessions.Save(ctx, s))

	env.text("/cancelar")

	assert.Empty(t, env.store.BlobPaths())
	s = env.session()
	assert.Equal(t, session.StepIdle, s.Step)
	assert.Empty(t, s.Queue)
	assert.Contains(t, env.messenger.lastText(), "Carga cancelada")

	env.text("/cancelar")
	assert.Equal(t, "No hay ninguna carga en curso.", env.messenger.lastText())
}

// scriptedCatalog wraps the real service to observe or fail Create calls.
type scriptedCatalog struct {
	catalog.Catalog
	create func(ctx context.Context, req catalog.CreateRequest) (models.Product, error)
}

func (c *scriptedCatalog) Create(ctx context.Context, req catalog.CreateRequest) (models.Product, error) {
	return c.create(ctx, req)
}

func TestBot_PublishFailureKeepsUploadsForRetry(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.FailWrites(errors.New("github unavailable"))

	env.photo("photo-1", "")
	env.describe("Remera", "1000")

	s := env.session()
	assert.Equal(t, session.StepAskPrice, s.Step, "the price can be sent again")
	require.Len(t, s.Uploaded, 1, "the write may have landed, so the uploads stay")
	assert.NotEmpty(t, s.RequestID)
	assert.Equal(t, s.Uploaded, env.store.BlobPaths())
	assert.Contains(t, env.messenger.lastText(), "❌ Error publicando")

	admin := env.messenger.adminMessages()
	require.Len(t, admin, 1)
	assert.Contains(t, admin[0], "create failed")
	assert.Contains(t, admin[0], "PUBLISHING")

	// retry after the store recovers reuses the same uploads
	env.store.FailWrites(nil)
	env.text("1000")
	items, _, _ := env.store.ReadDocument(context.Background())
	require.Len(t, items, 1)
	assert.Len(t, env.store.BlobPaths(), 1)
	assert.Equal(t, session.StepIdle, env.session().Step)
}

func TestBot_PublishRetryAfterCommittedCreateStoresOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	service := env.bot.catalog
	calls := 0
	env.bot.catalog = &scriptedCatalog{Catalog: service, create: func(ctx context.Context, req catalog.CreateRequest) (models.Product, error) {
		calls++
		product, err := service.Create(ctx, req)
		if calls == 1 {
			require.NoError(t, err)
			return models.Product{}, models.PersistenceError("admin API unreachable", errors.New("reply lost"))
		}
		return product, err
	}}

	env.photo("photo-1", "")
	env.describe("Remera", "1000")
	assert.Contains(t, env.messenger.lastText(), "❌ Error publicando")

	env.text("1000")
	assert.Contains(t, env.messenger.lastText(), "✅ Subido")

	items, _, _ := env.store.ReadDocument(context.Background())
	assert.Len(t, items, 1)
	assert.Len(t, env.store.BlobPaths(), 1)
}

func TestBot_RejectedCreateRemovesUploads(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.bot.catalog = &scriptedCatalog{Catalog: env.bot.catalog, create: func(context.Context, catalog.CreateRequest) (models.Product, error) {
		return models.Product{}, models.AuthError("unauthorized")
	}}

	env.photo("photo-1", "")
	env.describe("Remera", "1000")

	s := env.session()
	assert.Equal(t, session.StepAskPrice, s.Step)
	assert.Empty(t, s.Uploaded)
	assert.Empty(t, s.RequestID)
	assert.Empty(t, env.store.BlobPaths(), "orphaned uploads are deleted")
}

func TestBot_PublishCheckpointAllowsResendingPrice(t *testing.T) {
	env := newTestEnv(t, Options{})
	var during *session.Session
	env.bot.catalog = &scriptedCatalog{Catalog: env.bot.catalog, create: func(ctx context.Context, req catalog.CreateRequest) (models.Product, error) {
		during = env.session()
		panic("process died mid-create")
	}}

	env.photo("photo-1", "")
	env.describe("Remera", "1000")

	require.NotNil(t, during)
	assert.Equal(t, session.StepAskPrice, during.Step, "a crash leaves the chat ready for the price")
	assert.Len(t, during.Uploaded, 1)
	assert.NotEmpty(t, during.RequestID)
}

func TestBot_UploadFailureKeepsStep(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("missing", "")
	env.describe("Remera", "1000")

	assert.Equal(t, session.StepAskPrice, env.session().Step)
	assert.Contains(t, env.messenger.lastText(), "❌ Error subiendo las fotos")
	require.Len(t, env.messenger.adminMessages(), 1)
	assert.Contains(t, env.messenger.adminMessages()[0], "upload failed")

	items, _, _ := env.store.ReadDocument(context.Background())
	assert.Empty(t, items)
}

func TestBot_OversizePhoto(t *testing.T) {
	env := newTestEnv(t, Options{})

	// declared size above the limit is rejected right away
	env.photoSized("photo-1", "", 4096)
	assert.Equal(t, session.StepIdle, env.session().Step)
	assert.Contains(t, env.messenger.lastText(), "demasiado grande")

	// undeclared size is caught while downloading
	env.photo("big", "")
	env.describe("Remera", "1000")
	assert.Equal(t, session.StepAskPrice, env.session().Step)
	assert.Contains(t, env.messenger.lastText(), "demasiado grande")
	assert.Empty(t, env.messenger.adminMessages(), "user errors are not mirrored")
	assert.Empty(t, env.store.BlobPaths())
}

func TestBot_DeleteByReply(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.photo("photo-1", "")
	env.describe("Remera", "1000")
	confirmation := env.confirmation()
	items, _, _ := env.store.ReadDocument(ctx)
	require.Len(t, items, 1)
	id := items[0].ID

	// without reply
	env.text("/eliminar")
	assert.Contains(t, env.messenger.lastText(), "respondé al mensaje de confirmación")

	// replying to a message that is not the bot's
	env.textFrom(testUser, testChat, "/eliminar", &tgbotapi.Message{From: &tgbotapi.User{ID: testUser}, Text: confirmation.Text})
	assert.Contains(t, env.messenger.lastText(), "respondé al mensaje de confirmación")

	// another user cannot delete it
	env.textFrom(777, 778, "/eliminar", confirmation)
	assert.Equal(t, "⛔ Solo quien cargó el producto puede eliminarlo.", env.messenger.lastText())

	env.textFrom(testUser, testChat, "/eliminar", confirmation)
	assert.Equal(t, fmt.Sprintf("🗑️ Eliminado correctamente (ID: %d).", id), env.messenger.lastText())

	items, _, _ = env.store.ReadDocument(ctx)
	require.Len(t, items, 1)
	assert.True(t, items[0].Deleted, "default delete is soft")
	assert.Len(t, env.store.BlobPaths(), 1)

	env.textFrom(testUser, testChat, "/eliminar", confirmation)
	assert.Equal(t, fmt.Sprintf("❌ No encontré el producto (ID: %d).", id), env.messenger.lastText())

	// operators may hard delete any record
	env.textFrom(testOperator, testOperator, "/eliminar definitivo", confirmation)
	assert.Equal(t, fmt.Sprintf("🗑️ Eliminado correctamente (ID: %d).", id), env.messenger.lastText())
	items, _, _ = env.store.ReadDocument(ctx)
	assert.Empty(t, items)
	assert.Empty(t, env.store.BlobPaths())

	events, _ := env.journal.LastEvents(ctx, 1)
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionHardDelete, events[0].Action)
	assert.Equal(t, "tg:999", events[0].Actor)
}

func TestBot_BusyChatIsToldToRetry(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	token, ok, err := env.sessions.AcquireLock(ctx, testChat, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	env.photo("photo-1", "")
	assert.Contains(t, env.messenger.lastText(), "reintentá en unos segundos")
	assert.Equal(t, session.StepIdle, env.session().Step)

	require.NoError(t, env.sessions.ReleaseLock(ctx, testChat, token))
	env.photo("photo-1", "")
	assert.Equal(t, session.StepAskTitle, env.session().Step)
}

func TestBot_ConcurrentUpdatesDoNotInterleave(t *testing.T) {
	env := newTestEnv(t, Options{LockTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	for i, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.bot.HandleUpdate(context.Background(), tgbotapi.Update{
				UpdateID: 100 + i,
				Message: &tgbotapi.Message{
					From:         &tgbotapi.User{ID: testUser},
					Chat:         &tgbotapi.Chat{ID: testChat},
					Photo:        []tgbotapi.PhotoSize{{FileID: name, FileSize: 100}},
					MediaGroupID: "album-3",
				},
			})
		}()
	}
	wg.Wait()

	s := env.session()
	assert.Equal(t, session.StepAlbumConfirm, s.Step)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, s.Pending, "no photo is lost")
}

func TestBot_DuplicateUpdateIgnored(t *testing.T) {
	env := newTestEnv(t, Options{})

	update := tgbotapi.Update{
		UpdateID: 42,
		Message: &tgbotapi.Message{
			From:  &tgbotapi.User{ID: testUser},
			Chat:  &tgbotapi.Chat{ID: testChat},
			Photo: []tgbotapi.PhotoSize{{FileID: "photo-1", FileSize: 100}},
		},
	}
	env.bot.HandleUpdate(context.Background(), update)
	env.bot.HandleUpdate(context.Background(), update)

	assert.Len(t, env.messenger.texts(), 1)
}

func TestBot_UnauthorizedUser(t *testing.T) {
	env := newTestEnv(t, Options{AllowedUserIDs: []int64{testUser}})

	env.textFrom(555, 555, "hola", nil)
	assert.Equal(t, "Lo siento, no estás autorizado para usar este bot.", env.messenger.lastText())

	env.text("hola")
	assert.Equal(t, "Enviá una foto o un álbum para comenzar. /start", env.messenger.lastText())
}

func TestBot_StaleCallback(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("photo-1", "")
	env.press("fab:0")

	assert.Equal(t, session.StepAskTitle, env.session().Step)
	require.NotEmpty(t, env.messenger.acks)
	assert.Equal(t, "Esta opción ya no está disponible.", env.messenger.acks[len(env.messenger.acks)-1])
}

func TestBot_FabricPages(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("photo-1", "")
	env.text("Remera")
	env.press("fabpage:4")

	require.Len(t, env.messenger.keyboards, 1)
	rows := env.messenger.keyboards[0].Keyboard.InlineKeyboard
	require.Len(t, rows, 2)
	assert.Equal(t, "fab:48", *rows[0][0].CallbackData)
	assert.Equal(t, "«", rows[1][0].Text)
	assert.Equal(t, 4, env.session().FabricPage)

	env.press("fab:49")
	assert.Equal(t, "rompeviento", env.session().Fabric)
}

func TestFabricKeyboard(t *testing.T) {
	fabrics := make([]string, 30)
	for i := range fabrics {
		fabrics[i] = fmt.Sprintf("tela %d", i)
	}

	first := fabricKeyboard(fabrics, 0).InlineKeyboard
	require.Len(t, first, 7)
	assert.Len(t, first[0], 2)
	require.Len(t, first[6], 1)
	assert.Equal(t, "»", first[6][0].Text)
	assert.Equal(t, "fabpage:1", *first[6][0].CallbackData)

	middle := fabricKeyboard(fabrics, 1).InlineKeyboard
	assert.Len(t, middle[6], 2)

	last := fabricKeyboard(fabrics, 7).InlineKeyboard // clamped to page 2
	require.Len(t, last, 4)
	assert.Equal(t, "fab:24", *last[0][0].CallbackData)
	assert.Equal(t, "«", last[3][0].Text)
}

func TestBot_ResetDiagnostics(t *testing.T) {
	env := newTestEnv(t, Options{
		Settings: []Setting{
			{Name: "TELEGRAM_BOT_TOKEN", Configured: true},
			{Name: "API_KEY", Configured: false},
		},
		Checks: []Check{
			{Name: "Documento", Ping: func(ctx context.Context) error { return nil }},
			{Name: "Historial", Ping: func(ctx context.Context) error { return errors.New("down") }},
		},
	})

	env.text("/reset")

	text := env.messenger.lastText()
	assert.True(t, strings.HasPrefix(text, "🔧 RESET / DIAGNÓSTICO"))
	assert.Contains(t, text, "✅ TELEGRAM_BOT_TOKEN")
	assert.Contains(t, text, "❌ API_KEY")
	assert.Contains(t, text, "✅ Documento responde")
	assert.Contains(t, text, "❌ Historial responde")

	admin := env.messenger.adminMessages()
	require.Len(t, admin, 1)
	assert.Contains(t, admin[0], "API_KEY")
}

func TestBot_LastEvents(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.text("/ultimos")
	assert.Equal(t, "Todavía no hay movimientos en el catálogo.", env.messenger.lastText())

	env.photo("photo-1", "")
	env.describe("Remera", "1000")
	env.text("/ultimos")

	text := env.messenger.lastText()
	assert.True(t, strings.HasPrefix(text, "📋 Últimos movimientos:"))
	assert.Contains(t, text, "alta")
	assert.Contains(t, text, "Remera")
}

func TestBot_NewPhotoReplacesDraft(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.photo("photo-1", "")
	env.text("Borrador")
	env.photo("photo-2", "")

	s := env.session()
	assert.Equal(t, session.StepAskTitle, s.Step)
	assert.Empty(t, s.Title)
	assert.Equal(t, []string{"photo-2"}, s.Pending)
}

func TestBot_StartAndUnknownInput(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.text("/start")
	assert.Contains(t, env.messenger.lastText(), "Soy el bot de catálogo")

	env.text("/desconocido")
	assert.Contains(t, env.messenger.lastText(), "Comando desconocido")

	env.handle(tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: testUser},
		Chat:     &tgbotapi.Chat{ID: testChat},
		Document: &tgbotapi.Document{FileID: "doc"},
	}})
	assert.Equal(t, "Mandá una foto o /start.", env.messenger.lastText())
}

func TestBot_WaitCoversPolledUpdate(t *testing.T) {
	env := newTestEnv(t, Options{})

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	env.messenger.onSend = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	updates := make(chan tgbotapi.Update, 1)
	ctx, cancel := context.WithCancel(context.Background())
	polling := make(chan struct{})
	go func() {
		env.bot.poll(ctx, updates)
		close(polling)
	}()

	updates <- tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUser},
		Chat: &tgbotapi.Chat{ID: testChat},
		Text: "hola",
	}}
	<-entered
	cancel()

	waited := make(chan struct{})
	go func() {
		env.bot.Wait()
		close(waited)
	}()

	isClosed := func(c chan struct{}) func() bool {
		return func() bool {
			select {
			case <-c:
				return true
			default:
				return false
			}
		}
	}
	assert.Never(t, isClosed(waited), 100*time.Millisecond, 10*time.Millisecond, "Wait returned while a polled update was running")

	close(release)
	require.Eventually(t, isClosed(waited), time.Second, 10*time.Millisecond)
	require.Eventually(t, isClosed(polling), time.Second, 10*time.Millisecond)
	assert.Contains(t, env.messenger.lastText(), "Enviá una foto")
}
