package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/photokeep/internal/auth"
	"github.com/hitoshi/photokeep/internal/config"
	"github.com/hitoshi/photokeep/internal/database"
	"github.com/hitoshi/photokeep/internal/handler"
	"github.com/hitoshi/photokeep/internal/introspection"
	"github.com/hitoshi/photokeep/internal/logger"
	"github.com/hitoshi/photokeep/internal/metrics"
	"github.com/hitoshi/photokeep/internal/middleware"
	"github.com/hitoshi/photokeep/internal/photo"
	"github.com/hitoshi/photokeep/internal/repository"
	"github.com/hitoshi/photokeep/internal/security"
	"github.com/hitoshi/photokeep/internal/signedurl"
	"github.com/hitoshi/photokeep/internal/ticket"
	"github.com/hitoshi/photokeep/internal/user"
	"github.com/hitoshi/photokeep/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// rateLimiterConfigFromEnv は設定のreq/min値をミドルウェアの
// req/sec値に変換する。バーストは1分あたりの上限と同じにする。
func rateLimiterConfigFromEnv(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rlCfg.LoginBurst = cfg.RateLimitLogin
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// JWKSキャッシュなどバックグラウンド処理の寿命を制御するコンテキスト
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	directory := repository.NewPostgresAccountDirectory(db)
	ticketRepo := repository.NewPostgresTicketRepo(db)
	photoRepo := repository.NewPostgresPhotoRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTitleSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セッションチケットストア
	ticketStore := ticket.NewStore(ticketRepo)

	// 5. 認証サービス（外部IdPフェデレーション + 自動プロビジョニング）
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	binder := auth.NewBinder(directory)
	avatars := user.NewAvatarFetcher(directory, ssrfGuard)
	authService := auth.NewService(
		oauthProvider, binder, ticketStore, directory, avatars,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	// 6. ベアラートークン検証（リソースサーバーとしての認可サーバー接続）
	discovery := introspection.NewDiscoveryCache(cfg.AuthorityURL, cfg.DiscoveryCacheTTL, nil)
	introspector := introspection.NewIntrospector(ctx, discovery, introspection.Config{
		Issuer:         cfg.TokenIssuer,
		Audience:       cfg.TokenAudience,
		ResourceID:     cfg.APIResourceID,
		ResourceSecret: cfg.APIResourceSecret,
	}, nil)

	// 7. 署名付きURLコーデックと写真サービス
	codec, err := signedurl.NewCodec([]byte(cfg.SignedURLSecret))
	if err != nil {
		return fmt.Errorf("failed to initialize signed url codec: %w", err)
	}
	photoService := photo.NewService(photoRepo, codec, sanitizer, photo.ServiceConfig{
		BaseURL:      cfg.BaseURL,
		SignedURLTTL: cfg.SignedURLTTL,
	})

	// 8. ユーザーサービス
	userService := user.NewService(directory, ticketStore)

	// 9. レートリミッター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfigFromEnv(cfg))
	defer rateLimiter.Stop()

	// 10. ルーターの構築
	deps := &handler.RouterDeps{
		Tickets:               ticketStore,
		SessionConfig:         middleware.SessionConfig{MaxAge: time.Duration(cfg.SessionMaxAge) * time.Second},
		TokenValidator:        introspector,
		IntrospectionRecorder: collector,
		CORSAllowedOrigin:     cfg.CORSAllowedOrigin,
		CSRFConfig:            middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		RateLimiter:           rateLimiter,

		AuthService: handler.NewRecordingAuthService(authService, collector),
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PhotoService:      photoService,
		SignedURLVerifier: codec,
		SignedURLRecorder: collector,
		PhotoConfig: handler.PhotoHandlerConfig{
			BaseURL: cfg.BaseURL,
		},

		UserService: userService,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 11. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れチケットの削除ジョブを定期実行し、メトリクスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	// 4. ワーカー用メトリクスサーバーの起動
	metricsServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     metrics.SetupMetricsRoute(registry),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("worker metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.TicketCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで定期実行（ブロッキング）
	// 起動直後に1回実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cfg.TicketCleanupInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
