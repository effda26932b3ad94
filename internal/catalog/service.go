package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"catalogbot/internal/models"
	"catalogbot/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Field limits applied to every new record.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxImageRefLength    = 1000
	MaxTags              = 10
	DefaultTag           = "general"
)

// Catalog is the Product Admin API as seen by its callers.
// Service implements it in-process and Client over HTTP.
type Catalog interface {
	Create(ctx context.Context, req CreateRequest) (models.Product, error)
	Delete(ctx context.Context, req DeleteRequest) (int, error)
	List(ctx context.Context) ([]models.Product, error)
	Get(ctx context.Context, id int64) (models.Product, error)
	Reset(ctx context.Context) (int, error)
}

// CreateRequest carries the fields of a new record. When Description is empty
// it is composed from Fabric, Sizes and Price.
type CreateRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	Images      []string     `json:"images,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Price       models.Price `json:"price"`
	Fabric      string       `json:"fabric,omitempty"`
	Sizes       []string     `json:"sizes,omitempty"`
	CreatedBy   int64        `json:"createdBy,omitempty"`
	// RequestID makes the create idempotent: repeating it returns the
	// record stored by the first attempt.
	RequestID   string       `json:"requestId,omitempty"`
}

// DeleteRequest selects records by ID or by image reference, never both.
type DeleteRequest struct {
	ID    int64  `json:"id,omitempty"`
	Image string `json:"image,omitempty"`
	Hard  bool   `json:"hard,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// Service validates requests and applies them to the catalog document.
type Service struct {
	repo    *Repository
	journal storage.Journal
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the in-process Product Admin API.
func NewService(repo *Repository, journal storage.Journal, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// Create validates req, assigns an id and prepends the record to the document.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Product, error) {
	product, err := s.build(req)
	if err != nil {
		return models.Product{}, err
	}

	stored, created, err := s.repo.AppendUnique(ctx, product)
	if err != nil {
		return models.Product{}, err
	}
	if !created {
		s.logger.Info("Repeated create ignored",
			zap.Int64("id", stored.ID),
			zap.String("request_id", req.RequestID))
		return stored, nil
	}

	s.logger.Info("Product created",
		zap.Int64("id", stored.ID),
		zap.String("title", stored.Title),
		zap.Int("images", len(stored.Images)))
	s.record(ctx, models.ActionCreate, stored, actorOf(req.CreatedBy, ""))
	return stored, nil
}

func (s *Service) build(req CreateRequest) (models.Product, error) {
	title := clean(req.Title, MaxTitleLength)
	if title == "" {
		return models.Product{}, models.ValidationError("missing field: title")
	}
	if req.Price.IsNegative() {
		return models.Product{}, models.ValidationError("price must not be negative")
	}

	images := make([]string, 0, len(req.Images)+1)
	for _, ref := range append([]string{req.Image}, req.Images...) {
		if ref = clean(ref, MaxImageRefLength); ref != "" && !contains(images, ref) {
			images = append(images, ref)
		}
	}
	if len(images) == 0 {
		return models.Product{}, models.ValidationError("missing field: images")
	}

	description := clean(req.Description, MaxDescriptionLength)
	if description == "" {
		description = clean(ComposeDescription(req.Fabric, req.Sizes, req.Price.Decimal), MaxDescriptionLength)
	}
	if description == "" {
		return models.Product{}, models.ValidationError("missing field: description (or fabric, sizes and price)")
	}

	tags := req.Tags
	if len(tags) == 0 {
		tags = append([]string{req.Fabric}, req.Sizes...)
	}

	now := s.now().UTC()
	return models.Product{
		ID:          now.UnixMilli(),
		Title:       title,
		Description: description,
		Image:       images[0],
		Images:      images,
		Tags:        NormalizeTags(tags),
		Price:       req.Price,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		RequestID:   strings.TrimSpace(req.RequestID),
	}, nil
}

// Delete removes the records selected by req and returns how many matched.
// Deletion is soft unless req.Hard is set.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	image := clean(req.Image, MaxImageRefLength)
	if (req.ID == 0) == (image == "") {
		return 0, models.ValidationError("provide exactly one of 'id' or 'image'")
	}

	match := func(p models.Product) bool { return p.ID == req.ID }
	if image != "" {
		match = func(p models.Product) bool { return p.Cover() == image || contains(p.Images, image) }
	}

	removed, err := s.repo.RemoveItem(ctx, match, req.Hard)
	if err != nil {
		return 0, err
	}

	action := models.ActionSoftDelete
	if req.Hard {
		action = models.ActionHardDelete
	}
	for _, p := range removed {
		s.logger.Info("Product deleted",
			zap.Int64("id", p.ID),
			zap.Bool("hard", req.Hard))
		s.record(ctx, action, p, req.Actor)
	}
	return len(removed), nil
}

// List returns the published records, hiding soft-deleted ones.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	items, err := s.repo.Items(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]models.Product, 0, len(items))
	for _, item := range items {
		if !item.Deleted {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

// Get returns a record by id, soft-deleted or not.
func (s *Service) Get(ctx context.Context, id int64) (models.Product, error) {
	items, err := s.repo.Items(ctx)
	if err != nil {
		return models.Product{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Product{}, models.NotFoundError(fmt.Sprintf("product %d not found", id))
}

// Reset empties the catalog and removes its assets.
func (s *Service) Reset(ctx context.Context) (int, error) {
	n, err := s.repo.Reset(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("Catalog reset", zap.Int("removed", n))
	s.record(ctx, models.ActionReset, models.Product{}, "")
	return n, nil
}

// record writes to the journal; failures are logged and otherwise ignored.
func (s *Service) record(ctx context.Context, action string, p models.Product, actor string) {
	if s.journal == nil {
		return
	}
	if actor == "" {
		actor = "api"
	}
	err := s.journal.Record(ctx, models.CatalogEvent{
		At:        s.now().UTC(),
		Action:    action,
		ProductID: p.ID,
		Title:     p.Title,
		Actor:     actor,
	})
	if err != nil {
		s.logger.Warn("Failed to record catalog event", zap.String("action", action), zap.Error(err))
	}
}

// NormalizeTags lowercases, trims and de-duplicates tags, keeping at most
// MaxTags. An empty result becomes the default tag.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || contains(out, tag) {
			continue
		}
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	if len(out) == 0 {
		return []string{DefaultTag}
	}
	return out
}

// ComposeDescription renders "Tela: X · Talles: a, b · Precio: $25.999 ARS",
// skipping the parts that are empty.
func ComposeDescription(fabric string, sizes []string, price decimal.Decimal) string {
	var parts []string
	if fabric = strings.TrimSpace(fabric); fabric != "" {
		r, size := utf8.DecodeRuneInString(fabric)
		parts = append(parts, "Tela: "+string(unicode.ToUpper(r))+fabric[size:])
	}
	if len(sizes) > 0 {
		parts = append(parts, "Talles: "+strings.Join(sizes, ", "))
	}
	if price.IsPositive() {
		parts = append(parts, "Precio: $"+FormatPrice(price)+" ARS")
	}
	return strings.Join(parts, " · ")
}

// FormatPrice formats an amount the es-AR way: "25.999,5" style with
// thousands dots and at most two decimals.
func FormatPrice(price decimal.Decimal) string {
	rounded := price.Round(2)
	intPart := rounded.Truncate(0)
	frac := rounded.Sub(intPart).Abs()

	digits := intPart.Abs().String()
	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if !frac.IsZero() {
		cents := frac.Shift(2).IntPart()
		b.WriteString("," + fmt.Sprintf("%02d", cents))
		return strings.TrimSuffix(b.String(), "0")
	}
	return b.String()
}

func clean(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func actorOf(userID int64, fallback string) string {
	if userID == 0 {
		return fallback
	}
	return "tg:" + strconv.FormatInt(userID, 10)
}
