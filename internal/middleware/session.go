// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/photokeep/internal/model"
)

// SessionCookieName はセッションチケットIDを保持するCookie名。
const SessionCookieName = "ticket_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// principalContextKey はリクエストコンテキストにプリンシパルを格納するためのキー。
var principalContextKey = contextKey("principal")

// TicketRetriever はセッションチケットの取得・更新に必要なインターフェース。
// ticket.Storeの部分集合として定義する。
type TicketRetriever interface {
	Retrieve(ctx context.Context, id string) (*model.Ticket, *model.Principal, error)
	Renew(ctx context.Context, id string, principal *model.Principal, expiresAt *time.Time) error
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	// MaxAge はセッションの有効期間。
	MaxAge time.Duration
}

// NewSessionMiddleware はHTTP Only Cookieからチケットを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みプリンシパルとユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
//
// 有効期間の半分を過ぎたチケットは新しい期限で更新され、
// リクエストごとの書き込みなしでスライド失効が実現される。
func NewSessionMiddleware(tickets TicketRetriever, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからチケットIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
				return
			}

			// 2. チケットの有効性を検証
			t, principal, err := tickets.Retrieve(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to retrieve ticket",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if t == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
				return
			}

			// 3. 有効期間の後半に入っていれば期限を延長する
			if t.ExpiresAt != nil {
				now := time.Now()
				if t.ExpiresAt.Sub(now) < config.MaxAge/2 {
					newExpiry := now.Add(config.MaxAge)
					if err := tickets.Renew(r.Context(), t.ID, principal, &newExpiry); err != nil {
						// 延長の失敗はセッション自体の失敗ではない
						slog.Warn("failed to renew ticket",
							slog.String("error", err.Error()),
						)
					}
				}
			}

			// 4. 認証済みプリンシパルをコンテキストに注入
			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, userIDContextKey, t.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアまたはベアラーミドルウェアを通過した
// リクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// PrincipalFromContext はリクエストコンテキストからプリンシパルを取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || principal == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	return principal, nil
}

// ContextWithPrincipal はコンテキストにプリンシパルを注入する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
