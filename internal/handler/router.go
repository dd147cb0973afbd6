package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photokeep/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Tickets               middleware.TicketRetriever
	SessionConfig         middleware.SessionConfig
	TokenValidator        middleware.TokenValidator
	IntrospectionRecorder middleware.IntrospectionRecorder
	CORSAllowedOrigin     string
	CSRFConfig            middleware.CSRFConfig
	RateLimiter           *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 写真
	PhotoService      PhotoServiceInterface
	SignedURLVerifier SignedURLVerifier
	SignedURLRecorder SignedURLRecorder
	PhotoConfig       PhotoHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// メトリクス公開エンドポイント（nilなら公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	→ (Session → CSRF | Bearer) → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）と署名付きコンテンツは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効く共通ミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	photoHandler := NewPhotoHandler(deps.PhotoService, deps.SignedURLVerifier, deps.SignedURLRecorder, deps.PhotoConfig)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// メトリクス
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）。ログイン開始はIP単位のレート制限付き
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 署名付きコンテンツ。URLの署名自体が認可となるため匿名アクセス
	r.Get("/api/photos/{id}/signed-content", photoHandler.SignedContent)

	// CSRFトークン取得（ダブルサブミットCookie方式）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- Cookieセッションが必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Tickets, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Profile)
			r.Get("/avatar", userHandler.Avatar)
			r.Delete("/", userHandler.Withdraw)
		})
	})

	// --- ベアラートークンが必要なルート（リソースサーバーAPI） ---
	// ミドルウェアスタック: Bearer → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.TokenValidator, deps.IntrospectionRecorder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 写真管理
		r.Route("/api/photos", func(r chi.Router) {
			r.Get("/", photoHandler.List)
			r.Post("/", photoHandler.Upload)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", photoHandler.Get)
				r.Patch("/", photoHandler.UpdateTitle)
				r.Delete("/", photoHandler.Delete)
				r.Get("/content", photoHandler.Content)
			})
		})
	})

	return r
}
