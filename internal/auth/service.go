// Package auth はOAuthフェデレーション、アカウント自動プロビジョニング、
// セッション発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
	"github.com/hitoshi/photokeep/internal/ticket"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みの
	// アイデンティティアサーションを返す。
	ExchangeCode(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

// AvatarFetcher はプロビジョニング時のアバター取得のインターフェース。
// 取得はベストエフォートで、失敗してもログインは成功する。
type AvatarFetcher interface {
	FetchAndStore(ctx context.Context, userID, pictureURL string) error
}

// TicketIssuer はセッションチケットの発行・失効のインターフェース。
type TicketIssuer interface {
	Store(ctx context.Context, userID string, principal *model.Principal, expiresAt *time.Time) (string, error)
	Revoke(ctx context.Context, id string) error
	Retrieve(ctx context.Context, id string) (*model.Ticket, *model.Principal, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
// OAuthプロバイダー、バインダー、チケットストアを合成し、
// コールバック処理からセッション発行までを担う。
type Service struct {
	oauth     OAuthProvider
	binder    *Binder
	tickets   TicketIssuer
	directory repository.AccountDirectory
	avatars   AvatarFetcher
	config    ServiceConfig
}

// NewService はServiceを生成する。avatarsはnilでもよい（アバター取得なし）。
func NewService(
	oauth OAuthProvider,
	binder *Binder,
	tickets TicketIssuer,
	directory repository.AccountDirectory,
	avatars AvatarFetcher,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:     oauth,
		binder:    binder,
		tickets:   tickets,
		directory: directory,
		avatars:   avatars,
		config:    config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// LoginResult はコールバック処理の結果を表す。
type LoginResult struct {
	// TicketID はCookieに渡す不透明なセッションチケットID。
	TicketID string
	// ExpiresAt はチケットの絶対有効期限。
	ExpiresAt time.Time
	// UserID は解決されたローカルユーザーID。
	UserID string
	// Created はこのログインで新規アカウントが作成された場合にtrue。
	Created bool
}

// HandleCallback はOAuthコールバックを処理し、セッションチケットを発行する。
// アサーションをローカルアカウントに解決（必要なら自動プロビジョニング）し、
// 導出クレームを載せたCookieプリンシパルをチケットストアに保存する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	// 1. 認可コードをトークンに交換し、アサーションを取得
	assertion, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. ローカルアカウントに解決
	bound, err := s.binder.Bind(ctx, assertion)
	if err != nil {
		return nil, fmt.Errorf("failed to bind external identity: %w", err)
	}

	// 3. Cookieプリンシパルを構築しチケットを発行
	now := time.Now()
	principal := &model.Principal{
		Scheme:    "cookie",
		SubjectID: bound.UserID,
		IssuedAt:  now,
		Claims:    append([]model.Claim{{Type: model.ClaimTypeSubject, Value: bound.UserID}}, bound.DerivedClaims...),
	}
	expiresAt := now.Add(time.Duration(s.config.SessionMaxAge) * time.Second)

	ticketID, err := s.tickets.Store(ctx, bound.UserID, principal, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session ticket: %w", err)
	}

	// 4. 新規アカウントならアバターをベストエフォートで取得
	if bound.Created && s.avatars != nil {
		if pictureURL, ok := assertion.FindClaim(model.ClaimTypePicture); ok && pictureURL != "" {
			if err := s.avatars.FetchAndStore(ctx, bound.UserID, pictureURL); err != nil {
				slog.Warn("failed to fetch avatar",
					slog.String("user_id", bound.UserID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	slog.Info("user logged in",
		slog.String("user_id", bound.UserID),
		slog.String("provider", assertion.Provider),
		slog.Bool("created", bound.Created),
	)

	return &LoginResult{
		TicketID:  ticketID,
		ExpiresAt: expiresAt,
		UserID:    bound.UserID,
		Created:   bound.Created,
	}, nil
}

// Logout はセッションチケットを失効させる。
// 不正な構文・存在しないIDは失効と同義なのでエラーにしない。
func (s *Service) Logout(ctx context.Context, ticketID string) error {
	if ticketID == "" {
		return nil
	}

	if err := s.tickets.Revoke(ctx, ticketID); err != nil {
		return fmt.Errorf("failed to revoke ticket: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はチケットIDから現在のユーザーを取得する。
// チケットが存在しない・期限切れの場合は (nil, nil) を返す。
func (s *Service) GetCurrentUser(ctx context.Context, ticketID string) (*model.User, error) {
	if ticketID == "" {
		return nil, nil
	}

	t, _, err := s.tickets.Retrieve(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve ticket: %w", err)
	}
	if t == nil {
		return nil, nil
	}

	user, err := s.directory.FindByID(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ TicketIssuer = (*ticket.Store)(nil)
