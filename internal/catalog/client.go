package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"catalogbot/internal/models"
	"catalogbot/internal/retry"

	"github.com/google/uuid"
)

// Client calls a remote Product Admin API with the shared secret.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  retry.Policy
}

// NewClient creates a client for the API served at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		policy:  retry.Network,
	}
}

// Create sends req with a RequestID, assigning one when empty, so a retry
// after a lost reply returns the record the first attempt stored.
func (c *Client) Create(ctx context.Context, req CreateRequest) (models.Product, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	var res Response
	if err := c.call(ctx, http.MethodPost, "/api/products", req, &res); err != nil {
		return models.Product{}, err
	}
	if res.Item != nil {
		return *res.Item, nil
	}
	return models.Product{
		ID:        res.ID,
		Title:     req.Title,
		Images:    req.Images,
		Price:     req.Price,
		CreatedBy: req.CreatedBy,
		RequestID: req.RequestID,
	}, nil
}

func (c *Client) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	var res Response
	if err := c.call(ctx, http.MethodPost, "/api/products/delete", req, &res); err != nil {
		return 0, err
	}
	return res.RemovedCount, nil
}

func (c *Client) List(ctx context.Context) ([]models.Product, error) {
	var res Response
	if err := c.call(ctx, http.MethodGet, "/api/products", nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (c *Client) Get(ctx context.Context, id int64) (models.Product, error) {
	var res Response
	if err := c.call(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, &res); err != nil {
		return models.Product{}, err
	}
	if res.Item == nil {
		return models.Product{}, models.NotFoundError(fmt.Sprintf("product %d not found", id))
	}
	return *res.Item, nil
}

func (c *Client) Reset(ctx context.Context) (int, error) {
	var res Response
	if err := c.call(ctx, http.MethodPost, "/api/catalog/reset", struct{}{}, &res); err != nil {
		return 0, err
	}
	return res.RemovedCount, nil
}

// call retries network failures and 5xx replies; any other reply is final.
func (c *Client) call(ctx context.Context, method, path string, body any, out *Response) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set(APIKeyHeader, c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return models.PersistenceError("admin API unreachable", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return models.PersistenceError("failed to read admin API response", err)
		}

		*out = Response{}
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < http.StatusInternalServerError {
			return retry.Permanent(models.PersistenceError(fmt.Sprintf("unexpected admin API response (%d)", resp.StatusCode), err))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && out.OK {
			return nil
		}

		apiErr := statusError(resp.StatusCode, out.Error)
		if resp.StatusCode >= http.StatusInternalServerError {
			return apiErr
		}
		return retry.Permanent(apiErr)
	})
}

func statusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusBadRequest:
		return models.ValidationError(message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.AuthError(message)
	case http.StatusNotFound:
		return models.NotFoundError(message)
	case http.StatusConflict:
		return models.ConflictError(message)
	case http.StatusRequestEntityTooLarge:
		return models.NewError(models.KindTooLarge, message)
	default:
		return models.PersistenceError(fmt.Sprintf("admin API error (%d)", status), errors.New(message))
	}
}
