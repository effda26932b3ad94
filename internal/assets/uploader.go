// Package assets downloads images from the chat platform and commits them
// to the catalog repository.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"catalogbot/internal/models"
	"catalogbot/internal/retry"
	"catalogbot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Uploader copies remote files into blob storage under a fixed folder.
type Uploader struct {
	blobs   storage.Blobs
	http    *http.Client
	dir     string
	baseURL string
	policy  retry.Policy
	logger  *zap.Logger
}

// NewUploader creates an uploader storing files under dir. When baseURL is
// set, references returned by Reference are absolute URLs.
func NewUploader(blobs storage.Blobs, dir, baseURL string, logger *zap.Logger) *Uploader {
	return &Uploader{
		blobs:   blobs,
		http:    &http.Client{Timeout: 30 * time.Second},
		dir:     strings.Trim(dir, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  retry.Network,
		logger:  logger,
	}
}

// NewPath returns a fresh target path under the asset folder.
func (u *Uploader) NewPath(ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	return path.Join(u.dir, uuid.NewString()+ext)
}

// Reference turns a stored path into the value written to the catalog document.
func (u *Uploader) Reference(p string) string {
	if u.baseURL == "" {
		return p
	}
	return u.baseURL + "/" + p
}

// Upload downloads sourceURL and commits it at targetPath. Payloads above
// maxBytes fail with TOO_LARGE before anything is committed.
func (u *Uploader) Upload(ctx context.Context, sourceURL, targetPath string, maxBytes int64) (string, error) {
	data, err := u.download(ctx, sourceURL, maxBytes)
	if err != nil {
		if models.IsKind(err, models.KindTooLarge) {
			return "", err
		}
		return "", models.UploadError("failed to download file", err)
	}

	err = retry.Do(ctx, u.policy, func() error {
		_, err := u.blobs.PutBlob(ctx, targetPath, data, "upload "+path.Base(targetPath))
		if models.IsKind(err, models.KindConfiguration) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if models.IsKind(err, models.KindConfiguration) {
			return "", err
		}
		return "", models.UploadError("failed to store "+targetPath, err)
	}

	u.logger.Info("Asset uploaded",
		zap.String("path", targetPath),
		zap.Int("bytes", len(data)))
	return targetPath, nil
}

// Delete removes a stored asset. Failures are logged, not returned.
func (u *Uploader) Delete(ctx context.Context, targetPath string) {
	err := retry.Do(ctx, u.policy, func() error {
		return u.blobs.DeleteBlob(ctx, targetPath)
	})
	if err != nil {
		u.logger.Warn("Failed to delete asset",
			zap.String("path", targetPath),
			zap.Error(err))
	}
}

func (u *Uploader) download(ctx context.Context, sourceURL string, maxBytes int64) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, u.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}

		resp, err := u.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("download returned status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(err)
			}
			return err
		}
		if maxBytes > 0 && resp.ContentLength > maxBytes {
			return retry.Permanent(models.TooLargeError(resp.ContentLength, maxBytes))
		}

		body := io.Reader(resp.Body)
		if maxBytes > 0 {
			body = io.LimitReader(resp.Body, maxBytes+1)
		}
		data, err = io.ReadAll(body)
		if err != nil {
			return err
		}
		if maxBytes > 0 && int64(len(data)) > maxBytes {
			return retry.Permanent(models.TooLargeError(int64(len(data)), maxBytes))
		}
		return nil
	})
	if err != nil {
		var e *models.Error
		if errors.As(err, &e) && e.Kind == models.KindTooLarge {
			return nil, e
		}
		return nil, err
	}
	return data, nil
}
