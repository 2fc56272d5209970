package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/publish"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	CreateContent(ctx context.Context, userID string, in publish.CreateInput) (*model.Content, error)
	ListContents(ctx context.Context, userID string) ([]*model.Content, error)
	PublishItem(ctx context.Context, userID, itemID string, in publish.PublishInput) (*publish.PublishResult, error)
	EditPublishedItem(ctx context.Context, userID, itemID string, in publish.EditInput) (*model.Content, error)
	DeleteItem(ctx context.Context, userID, itemID string) error
}

// ContentHandler はコンテンツ管理と投稿のHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// contentResponse はコンテンツのAPIレスポンス。
type contentResponse struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Body             string        `json:"body"`
	RemotePostID     *string       `json:"remote_post_id"`
	Metrics          model.Metrics `json:"metrics"`
	LastReconciledAt *time.Time    `json:"last_reconciled_at"`
	PublishedAt      *time.Time    `json:"published_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func toContentResponse(c *model.Content) contentResponse {
	return contentResponse{
		ID:               c.ID,
		Title:            c.Title,
		Body:             c.Body,
		RemotePostID:     c.RemotePostID,
		Metrics:          c.Metrics,
		LastReconciledAt: c.LastReconciledAt,
		PublishedAt:      c.PublishedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// Create は下書きを作成する。
// POST /api/contents
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var in publish.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	content, err := h.service.CreateContent(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContentResponse(content))
}

// List は自分のコンテンツ一覧を返す。
// GET /api/contents
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	contents, err := h.service.ListContents(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]contentResponse, len(contents))
	for i, c := range contents {
		resp[i] = toContentResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"contents": resp})
}

// Publish はコンテンツをRedditに投稿する。
// POST /api/contents/{id}/publish
func (h *ContentHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var in publish.PublishInput
	if !decodeJSON(w, r, &in) {
		return
	}

	result, err := h.service.PublishItem(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Edit はコンテンツのタイトルと本文を編集する。
// PUT /api/contents/{id}
func (h *ContentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var in publish.EditInput
	if !decodeJSON(w, r, &in) {
		return
	}

	content, err := h.service.EditPublishedItem(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(content))
}

// Delete はコンテンツを削除する。
// DELETE /api/contents/{id}
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
