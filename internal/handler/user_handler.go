package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photokeep/internal/middleware"
	"github.com/hitoshi/photokeep/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// GetProfile は指定IDのユーザーを取得する。
	GetProfile(ctx context.Context, userID string) (*model.User, error)

	// Withdraw はユーザーの退会処理を実行する。
	// 全セッションチケットを失効させてからアカウントを削除する。
	// user_claims、external_logins、photosはCASCADE削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Profile は現在のユーザーのプロフィールを返す。
// GET /api/users/me
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"has_avatar": len(user.AvatarData) > 0,
		"created_at": user.CreatedAt,
	})
}

// Avatar は現在のユーザーのアバター画像を返す。
// GET /api/users/me/avatar
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if len(user.AvatarData) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "AVATAR_NOT_FOUND",
			Message:  "アバター画像が登録されていません。",
			Category: "photo",
			Action:   "プロフィール画像付きのIdPアカウントでログインし直してください。",
		})
		return
	}

	w.Header().Set("Content-Type", user.AvatarMime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(user.AvatarData)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(service UserServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service)

	r.Route("/api/users/me", func(r chi.Router) {
		r.Get("/", h.Profile)
		r.Get("/avatar", h.Avatar)
		r.Delete("/", h.Withdraw)
	})

	return r
}
