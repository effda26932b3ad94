package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"catalogbot/internal/models"

	"github.com/google/go-github/v66/github"
)

// Store keeps the catalog document and its images in a GitHub repository
// through the Contents API. File SHAs are the revisions.
type Store struct {
	client   *github.Client
	owner    string
	repo     string
	branch   string
	dataPath string
	wrapped  bool
}

// Options configures a Store.
type Options struct {
	Token    string
	Owner    string
	Repo     string
	Branch   string
	DataPath string
	// Wrapped writes {"items": [...]} instead of a bare array.
	Wrapped bool
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

// NewStore creates a GitHub-backed store.
func NewStore(opts Options) *Store {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	client := github.NewClient(httpClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	return &Store{
		client:   client,
		owner:    opts.Owner,
		repo:     opts.Repo,
		branch:   opts.Branch,
		dataPath: opts.DataPath,
		wrapped:  opts.Wrapped,
	}
}

type wrappedDocument struct {
	Items []models.Product `json:"items"`
}

// ReadDocument fetches data.json and its SHA.
func (s *Store) ReadDocument(ctx context.Context) ([]models.Product, string, error) {
	file, err := s.getFile(ctx, s.dataPath)
	if err != nil {
		return nil, "", models.PersistenceError("failed to read catalog document", err)
	}
	if file == nil {
		return []models.Product{}, "", nil
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", models.PersistenceError("failed to decode catalog document", err)
	}
	items, err := decodeDocument([]byte(content))
	if err != nil {
		return nil, "", models.PersistenceError("catalog document is not valid JSON", err)
	}
	return items, file.GetSHA(), nil
}

// WriteDocument commits the full item list, conditioned on revision.
func (s *Store) WriteDocument(ctx context.Context, items []models.Product, revision, message string) (string, error) {
	if items == nil {
		items = []models.Product{}
	}
	var body any = items
	if s.wrapped {
		body = wrappedDocument{Items: items}
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode catalog document: %w", err)
	}

	sha, err := s.commit(ctx, s.dataPath, data, revision, message)
	if err != nil {
		if isStatus(err, http.StatusConflict, http.StatusUnprocessableEntity) {
			return "", models.WrapError(models.KindConflict, "catalog document changed since it was read", err)
		}
		return "", models.PersistenceError("failed to write catalog document", err)
	}
	return sha, nil
}

// PutBlob creates the file or updates it using its current SHA.
func (s *Store) PutBlob(ctx context.Context, path string, data []byte, message string) (string, error) {
	existing, err := s.getFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", path, err)
	}

	sha, err := s.commit(ctx, path, data, existing.GetSHA(), message)
	if err != nil {
		if isStatus(err, http.StatusConflict, http.StatusUnprocessableEntity) {
			return "", models.WrapError(models.KindConflict, "asset changed concurrently", err)
		}
		return "", fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return sha, nil
}

// DeleteBlob removes the file at path if it exists.
func (s *Store) DeleteBlob(ctx context.Context, path string) error {
	existing, err := s.getFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", path, err)
	}
	if existing == nil {
		return nil
	}

	_, _, err = s.client.Repositories.DeleteFile(ctx, s.owner, s.repo, path, &github.RepositoryContentFileOptions{
		Message: github.String("delete " + path),
		SHA:     existing.SHA,
		Branch:  s.branchRef(),
	})
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// getFile returns nil when the path does not exist.
func (s *Store) getFile(ctx context.Context, path string) (*github.RepositoryContent, error) {
	var opts *github.RepositoryContentGetOptions
	if s.branch != "" {
		opts = &github.RepositoryContentGetOptions{Ref: s.branch}
	}
	file, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, opts)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return file, nil
}

func (s *Store) commit(ctx context.Context, path string, data []byte, sha, message string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: data,
		Branch:  s.branchRef(),
	}

	var (
		res *github.RepositoryContentResponse
		err error
	)
	if sha == "" {
		res, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, path, opts)
	} else {
		opts.SHA = github.String(sha)
		res, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, path, opts)
	}
	if err != nil {
		return "", err
	}
	if res == nil || res.Content == nil {
		return "", nil
	}
	return res.Content.GetSHA(), nil
}

func (s *Store) branchRef() *string {
	if s.branch == "" {
		return nil
	}
	return github.String(s.branch)
}

func decodeDocument(data []byte) ([]models.Product, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.Product{}, nil
	}

	if data[0] == '[' {
		var items []models.Product
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var doc wrappedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Items == nil {
		doc.Items = []models.Product{}
	}
	return doc.Items, nil
}

func isStatus(err error, codes ...int) bool {
	var er *github.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return false
	}
	for _, code := range codes {
		if er.Response.StatusCode == code {
			return true
		}
	}
	return false
}
