package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalogbot/internal/models"
	"catalogbot/internal/retry"
	"catalogbot/internal/storage"

	"go.uber.org/zap"
)

// Repository performs read-modify-write cycles on the catalog document.
// A cycle that loses the revision race is re-read and retried.
type Repository struct {
	docs      storage.Documents
	blobs     storage.Blobs
	assetsDir string
	policy    retry.Policy
	logger    *zap.Logger
}

// NewRepository creates a repository over the given stores.
func NewRepository(docs storage.Documents, blobs storage.Blobs, assetsDir string, logger *zap.Logger) *Repository {
	return &Repository{
		docs:      docs,
		blobs:     blobs,
		assetsDir: strings.Trim(assetsDir, "/"),
		policy:    retry.Document,
		logger:    logger,
	}
}

// Items returns every record, including soft-deleted ones.
func (r *Repository) Items(ctx context.Context) ([]models.Product, error) {
	items, _, err := r.docs.ReadDocument(ctx)
	return items, err
}

// AppendItem puts item at the front of the document. If the id is already
// taken it is bumped until unique; the stored record is returned.
func (r *Repository) AppendItem(ctx context.Context, item models.Product) (models.Product, error) {
	stored, _, err := r.AppendUnique(ctx, item)
	return stored, err
}

// AppendUnique is AppendItem that first looks for a record carrying the same
// RequestID. When one exists it is returned unchanged, nothing is written,
// and created is false.
func (r *Repository) AppendUnique(ctx context.Context, item models.Product) (stored models.Product, created bool, err error) {
	err = r.update(ctx, func(items []models.Product) ([]models.Product, string, error) {
		if item.RequestID != "" {
			for _, existing := range items {
				if existing.RequestID == item.RequestID {
					stored, created = existing, false
					return nil, "", errUnchanged
				}
			}
		}
		stored, created = item, true
		for hasID(items, stored.ID) {
			stored.ID++
		}
		return append([]models.Product{stored}, items...), fmt.Sprintf("chore: add %q", stored.Title), nil
	})
	if err != nil {
		return models.Product{}, false, err
	}
	return stored, created, nil
}

// RemoveItem soft-deletes (or with hard, removes) every record matching match.
// Soft deletion only matches live records, so repeating it reports NOT_FOUND.
// Assets of hard-deleted records are removed best-effort.
func (r *Repository) RemoveItem(ctx context.Context, match func(models.Product) bool, hard bool) ([]models.Product, error) {
	var removed []models.Product
	err := r.update(ctx, func(items []models.Product) ([]models.Product, string, error) {
		removed = nil
		kept := make([]models.Product, 0, len(items))
		for _, item := range items {
			if !match(item) || (!hard && item.Deleted) {
				kept = append(kept, item)
				continue
			}
			removed = append(removed, item)
			if !hard {
				item.Deleted = true
				kept = append(kept, item)
			}
		}
		if len(removed) == 0 {
			return nil, "", retry.Permanent(models.NotFoundError("no matching item found"))
		}
		return kept, fmt.Sprintf("chore: delete %d item(s)", len(removed)), nil
	})
	if err != nil {
		return nil, err
	}

	if hard {
		for _, item := range removed {
			r.deleteAssets(ctx, item)
		}
	}
	return removed, nil
}

// Reset writes an empty document and removes every asset the old one referenced.
func (r *Repository) Reset(ctx context.Context) (int, error) {
	var previous []models.Product
	err := r.update(ctx, func(items []models.Product) ([]models.Product, string, error) {
		previous = items
		return []models.Product{}, "chore: reset catalog", nil
	})
	if err != nil {
		return 0, err
	}

	for _, item := range previous {
		r.deleteAssets(ctx, item)
	}
	return len(previous), nil
}

type mutation func(items []models.Product) ([]models.Product, string, error)

// errUnchanged ends a cycle without writing the document.
var errUnchanged = errors.New("document unchanged")

func (r *Repository) update(ctx context.Context, mutate mutation) error {
	attempt := 0
	err := retry.DoNotify(ctx, r.policy, func() error {
		attempt++
		items, revision, err := r.docs.ReadDocument(ctx)
		if err != nil {
			return classify(err)
		}

		next, message, err := mutate(items)
		if errors.Is(err, errUnchanged) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = r.docs.WriteDocument(ctx, next, revision, message)
		return classify(err)
	}, func(err error, wait time.Duration) {
		r.logger.Warn("Catalog write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err == nil {
		return nil
	}

	switch models.KindOf(err) {
	case models.KindNotFound, models.KindValidation, models.KindConfiguration:
		return err
	}
	return models.PersistenceError(fmt.Sprintf("catalog write failed after %d attempt(s)", attempt), err)
}

// classify stops retrying on errors another attempt cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch models.KindOf(err) {
	case models.KindConfiguration, models.KindValidation, models.KindAuth:
		return retry.Permanent(err)
	}
	return err
}

// deleteAssets removes images stored under the asset folder. External URLs are left alone.
func (r *Repository) deleteAssets(ctx context.Context, item models.Product) {
	refs := item.Images
	if len(refs) == 0 && item.Image != "" {
		refs = []string{item.Image}
	}
	for _, ref := range refs {
		path, ok := AssetPath(ref, r.assetsDir)
		if !ok {
			continue
		}
		if err := r.blobs.DeleteBlob(ctx, path); err != nil {
			r.logger.Warn("Failed to delete asset",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

// AssetPath maps an image reference to its repository path when it lives
// under dir, either as a relative path or as the tail of a public URL.
func AssetPath(ref, dir string) (string, bool) {
	if dir == "" || ref == "" {
		return "", false
	}
	marker := dir + "/"
	if strings.HasPrefix(ref, marker) {
		return ref, true
	}
	if strings.Contains(ref, "://") {
		if i := strings.LastIndex(ref, "/"+marker); i >= 0 {
			return ref[i+1:], true
		}
	}
	return "", false
}

func hasID(items []models.Product, id int64) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
