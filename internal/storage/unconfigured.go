package storage

import (
	"context"

	"catalogbot/internal/models"
)

// Unconfigured stands in for a store whose settings are missing.
// Every call fails with a CONFIGURATION error naming the setting.
type Unconfigured struct {
	Setting string
}

func (u Unconfigured) ReadDocument(ctx context.Context) ([]models.Product, string, error) {
	return nil, "", models.ConfigurationError(u.Setting)
}

func (u Unconfigured) WriteDocument(ctx context.Context, items []models.Product, revision, message string) (string, error) {
	return "", models.ConfigurationError(u.Setting)
}

func (u Unconfigured) PutBlob(ctx context.Context, path string, data []byte, message string) (string, error) {
	return "", models.ConfigurationError(u.Setting)
}

func (u Unconfigured) DeleteBlob(ctx context.Context, path string) error {
	return models.ConfigurationError(u.Setting)
}
