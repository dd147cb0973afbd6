package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/photokeep/internal/introspection"
	"github.com/hitoshi/photokeep/internal/model"
)

// TokenValidator はベアラートークン検証のインターフェース。
// introspection.Introspectorの部分集合として定義する。
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*model.Principal, error)
}

// IntrospectionRecorder は検証結果のメトリクス記録のインターフェース。
// nilの場合は記録しない。
type IntrospectionRecorder interface {
	RecordIntrospection(outcome string, duration time.Duration)
}

// NewBearerMiddleware はAuthorizationヘッダーのベアラートークンを検証する
// ミドルウェアを返す。検証済みプリンシパルとそのsubjectをコンテキストに
// 注入する。
//
// 拒否（構文不正・検証失敗・非アクティブ）は401、認可サーバーへの
// 到達不能は503にマップされ、決して混同されない。
func NewBearerMiddleware(validator TokenValidator, recorder IntrospectionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMalformedError())
				return
			}

			start := time.Now()
			principal, err := validator.Validate(r.Context(), token)
			duration := time.Since(start)

			if err != nil {
				outcome, status, apiErr := classifyValidationError(err)
				record(recorder, outcome, duration)

				if status == http.StatusServiceUnavailable {
					slog.Error("token introspection unreachable",
						slog.String("error", err.Error()),
					)
				}

				WriteErrorResponse(w, status, apiErr)
				return
			}

			record(recorder, "active", duration)

			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx = ContextWithUserID(ctx, principal.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// classifyValidationError は検証エラーをHTTP応答に対応付ける。
func classifyValidationError(err error) (outcome string, status int, apiErr *model.APIError) {
	switch {
	case errors.Is(err, introspection.ErrTokenMalformed):
		return "malformed", http.StatusUnauthorized, model.NewTokenMalformedError()
	case errors.Is(err, introspection.ErrTokenInvalid):
		return "invalid", http.StatusUnauthorized, model.NewTokenInvalidError()
	case errors.Is(err, introspection.ErrTokenNotActive):
		return "not_active", http.StatusUnauthorized, model.NewTokenNotActiveError()
	case errors.Is(err, introspection.ErrIntrospectionUnreachable):
		return "unreachable", http.StatusServiceUnavailable, model.NewIntrospectionUnreachableError()
	default:
		return "error", http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}

func record(recorder IntrospectionRecorder, outcome string, duration time.Duration) {
	if recorder != nil {
		recorder.RecordIntrospection(outcome, duration)
	}
}
