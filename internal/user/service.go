// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
)

// TicketRevoker はユーザーの全セッションチケットの失効インターフェース。
type TicketRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// プロフィール取得と退会処理のビジネスロジックを提供する。
type Service struct {
	directory repository.AccountDirectory
	tickets   TicketRevoker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(directory repository.AccountDirectory, tickets TicketRevoker) *Service {
	return &Service{
		directory: directory,
		tickets:   tickets,
	}
}

// GetProfile は指定IDのユーザーを取得する。
// 存在しない場合はUserNotFoundエラーを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: tickets → user（+ CASCADE: user_claims, external_logins, photos）
// チケットを先に失効させることで、削除中のユーザーとして
// リクエストが通る窓を塞ぐ。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 全セッションチケットを失効
	if s.tickets != nil {
		if err := s.tickets.RevokeAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("チケットの失効に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除（user_claims, external_logins, photosはCASCADE削除）
	if err := s.directory.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
