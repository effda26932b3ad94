package catalog

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"catalogbot/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "x-api-key"

const maxBodyBytes = 1 << 20

// Response is the envelope of every admin API reply.
type Response struct {
	OK           bool             `json:"ok"`
	ID           int64            `json:"id,omitempty"`
	RemovedCount int              `json:"removedCount,omitempty"`
	Item         *models.Product  `json:"item,omitempty"`
	Items        []models.Product `json:"items,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Handler exposes a Catalog over HTTP.
type Handler struct {
	catalog Catalog
	apiKey  string
	logger  *zap.Logger
}

// NewHandler creates the admin API handler. An empty apiKey disables authentication.
func NewHandler(catalog Catalog, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{catalog: catalog, apiKey: apiKey, logger: logger}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", APIKeyHeader},
			MaxAge:         300,
		}))

		r.Get("/products", h.handleList)

		r.Group(func(r chi.Router) {
			r.Use(h.requireKey)
			r.Post("/products", h.handleCreate)
			r.Post("/products/delete", h.handleDelete)
			r.Get("/products/{id}", h.handleGet)
			r.Post("/catalog/reset", h.handleReset)
		})
	})
}

func (h *Handler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			key := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
				h.respondError(w, models.AuthError("unauthorized"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	product, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, Response{OK: true, ID: product.ID, Item: &product})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	removed, err := h.catalog.Delete(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, Response{OK: true, RemovedCount: removed})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if items == nil {
		items = []models.Product{}
	}
	h.respondJSON(w, http.StatusOK, Response{OK: true, Items: items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, models.ValidationError("invalid id"))
		return
	}

	product, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, Response{OK: true, ID: product.ID, Item: &product})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	removed, err := h.catalog.Reset(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, Response{OK: true, RemovedCount: removed})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.WrapError(models.KindValidation, "invalid request body", err)
	}
	return nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := models.HTTPStatus(err)
	message := "internal error"
	var e *models.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Admin API request failed", zap.Error(err))
	}
	h.respondJSON(w, status, Response{OK: false, Error: message})
}
