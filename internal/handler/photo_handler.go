package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photokeep/internal/middleware"
	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/photo"
)

// defaultMaxUploadSize はアップロード可能な写真サイズの上限。
const defaultMaxUploadSize = 10 << 20 // 10MB

// PhotoServiceInterface は写真ハンドラーが必要とするサービスインターフェース。
type PhotoServiceInterface interface {
	List(ctx context.Context, subjectID string) ([]*photo.PhotoView, error)
	Get(ctx context.Context, subjectID, photoID string) (*photo.PhotoView, error)
	GetContent(ctx context.Context, subjectID, photoID string) (*model.PhotoContent, error)
	GetSignedContent(ctx context.Context, photoID string) (*model.PhotoContent, error)
	Add(ctx context.Context, subjectID, title, fileName, contentType string, data []byte) (*photo.PhotoView, error)
	UpdateTitle(ctx context.Context, subjectID, photoID, title string) error
	Delete(ctx context.Context, subjectID, photoID string) error
}

// SignedURLVerifier は署名付きURLの検証インターフェース。
type SignedURLVerifier interface {
	Verify(rawURL string, now time.Time) error
}

// SignedURLRecorder は署名検証結果のメトリクス記録のインターフェース。
// nilの場合は記録しない。
type SignedURLRecorder interface {
	RecordSignedURLVerification(accepted bool)
}

// PhotoHandlerConfig は写真ハンドラーの設定。
type PhotoHandlerConfig struct {
	// BaseURL は署名検証時にリクエストURLを絶対URLに復元するための基点。
	// 署名時と同じスキーム・ホストである必要がある。
	BaseURL string
	// MaxUploadSize はアップロードサイズの上限（バイト）。0ならデフォルト値。
	MaxUploadSize int64
}

// PhotoHandler は写真管理のHTTPハンドラー。
type PhotoHandler struct {
	service  PhotoServiceInterface
	verifier SignedURLVerifier
	recorder SignedURLRecorder
	config   PhotoHandlerConfig
}

// NewPhotoHandler はPhotoHandlerを生成する。recorderはnilでもよい。
func NewPhotoHandler(service PhotoServiceInterface, verifier SignedURLVerifier, recorder SignedURLRecorder, config PhotoHandlerConfig) *PhotoHandler {
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = defaultMaxUploadSize
	}
	return &PhotoHandler{
		service:  service,
		verifier: verifier,
		recorder: recorder,
		config:   config,
	}
}

// List は自分の写真一覧を返す。
// GET /api/photos
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	views, err := h.service.List(r.Context(), subjectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"photos": views,
	})
}

// Get は写真メタデータを返す。
// GET /api/photos/{id}
func (h *PhotoHandler) Get(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	photoID := chi.URLParam(r, "id")

	view, err := h.service.Get(r.Context(), subjectID, photoID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Upload は写真を登録する。
// POST /api/photos (multipart/form-data: file, title)
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_UPLOAD",
			Message:  "アップロードの形式が不正か、サイズが大きすぎます。",
			Category: "validation",
			Action:   "multipart/form-dataで10MB以下のファイルを指定してください。",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_UPLOAD",
			Message:  "fileフィールドが指定されていません。",
			Category: "validation",
			Action:   "fileフィールドに画像ファイルを指定してください。",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("failed to read uploaded file", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_UPLOAD",
			Message:  "ファイルの読み込みに失敗しました。",
			Category: "validation",
			Action:   "再度アップロードしてください。",
		})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_UPLOAD",
			Message:  "画像ファイルのみアップロードできます。",
			Category: "validation",
			Action:   "image/* のファイルを指定してください。",
		})
		return
	}

	title := r.FormValue("title")

	view, err := h.service.Add(r.Context(), subjectID, title, header.Filename, contentType, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(view)
}

// updateTitleRequest はタイトル更新リクエストのボディ。
type updateTitleRequest struct {
	Title string `json:"title"`
}

// UpdateTitle は写真のタイトルを更新する。
// PATCH /api/photos/{id}
func (h *PhotoHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	photoID := chi.URLParam(r, "id")

	var req updateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "titleフィールドを含むJSONを指定してください。",
		})
		return
	}

	if err := h.service.UpdateTitle(r.Context(), subjectID, photoID, req.Title); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete は写真を削除する。
// DELETE /api/photos/{id}
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	photoID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), subjectID, photoID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Content は写真バイナリを返す。所有権チェックあり。
// GET /api/photos/{id}/content
func (h *PhotoHandler) Content(w http.ResponseWriter, r *http.Request) {
	subjectID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	photoID := chi.URLParam(r, "id")

	content, err := h.service.GetContent(r.Context(), subjectID, photoID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writePhotoContent(w, content)
}

// SignedContent は署名付きURL経由で写真バイナリを返す。
// GET /api/photos/{id}/signed-content?not_before=...&expires=...&signature=...
//
// 認証ヘッダーは不要で、URLの署名が所有権の代理となる。
// 署名不一致と期間外は区別せず同一の401として扱う。
func (h *PhotoHandler) SignedContent(w http.ResponseWriter, r *http.Request) {
	// 署名時と同じ絶対URLに復元して検証する
	rawURL := strings.TrimRight(h.config.BaseURL, "/") + r.URL.RequestURI()

	if err := h.verifier.Verify(rawURL, time.Now()); err != nil {
		h.recordSignedURL(false)
		slog.Warn("signed url verification failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSignedURLInvalidError())
		return
	}
	h.recordSignedURL(true)

	photoID := chi.URLParam(r, "id")

	content, err := h.service.GetSignedContent(r.Context(), photoID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writePhotoContent(w, content)
}

func (h *PhotoHandler) recordSignedURL(accepted bool) {
	if h.recorder != nil {
		h.recorder.RecordSignedURLVerification(accepted)
	}
}

// writePhotoContent は写真バイナリをレスポンスに書き込む。
func writePhotoContent(w http.ResponseWriter, content *model.PhotoContent) {
	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Write(content.Content)
}
