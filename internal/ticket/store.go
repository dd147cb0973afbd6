// Package ticket はサーバーサイドセッション状態の管理を提供する。
// 認証済みプリンシパルを不透明なチケットIDで永続化し、
// Cookieにはこの不透明IDのみが渡る。
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
)

// Store はセッションチケットストア。
// リポジトリを通じてチケット行を管理し、ID生成と
// プリンシパルのシリアライズを担う。
// ストレージ障害はラップしてそのまま呼び出し側に返し、内部でリトライはしない
// （セッションはフェイルクローズであるべきで、リトライ方針は呼び出し側の責務）。
type Store struct {
	repo repository.TicketRepository
	now  func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.TicketRepository) *Store {
	return &Store{
		repo: repo,
		now:  time.Now,
	}
}

// Store はプリンシパルをシリアライズして新しいチケットとして永続化し、
// 生成した不透明IDを返す。
// IDは暗号的に安全な乱数由来のUUIDで、衝突は致命的エラーとして返す
// （既存チケットの上書きは決して行わない）。
func (s *Store) Store(ctx context.Context, userID string, principal *model.Principal, expiresAt *time.Time) (string, error) {
	value, err := SerializePrincipal(principal)
	if err != nil {
		return "", err
	}

	t := &model.Ticket{
		ID:           uuid.New().String(),
		UserID:       userID,
		Value:        value,
		LastActivity: s.now(),
		ExpiresAt:    expiresAt,
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return "", fmt.Errorf("failed to store ticket: %w", err)
	}

	return t.ID, nil
}

// Retrieve は指定IDのチケットを取得し、プリンシパルを復元して返す。
// ヒット時は副作用としてlast_activityを現在時刻に更新する。
// 存在しない・期限切れ・IDがUUID構文でない場合はエラーなしで (nil, nil) を返す。
func (s *Store) Retrieve(ctx context.Context, id string) (*model.Ticket, *model.Principal, error) {
	if _, err := uuid.Parse(id); err != nil {
		// 不正な構文のキーはエラーではなくミスとして扱う
		return nil, nil, nil
	}

	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve ticket: %w", err)
	}
	if t == nil {
		return nil, nil, nil
	}

	if err := s.repo.TouchActivity(ctx, id, s.now()); err != nil {
		return nil, nil, fmt.Errorf("failed to touch ticket activity: %w", err)
	}

	principal, err := DeserializePrincipal(t.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode stored principal: %w", err)
	}

	return t, principal, nil
}

// Renew はチケットのプリンシパル・有効期限を上書きし、
// last_activityを現在時刻に更新する。
// チケットが既に存在しない場合（並行して失効された場合）は何もしない。
func (s *Store) Renew(ctx context.Context, id string, principal *model.Principal, expiresAt *time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	value, err := SerializePrincipal(principal)
	if err != nil {
		return err
	}

	t := &model.Ticket{
		ID:           id,
		Value:        value,
		LastActivity: s.now(),
		ExpiresAt:    expiresAt,
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to renew ticket: %w", err)
	}

	return nil
}

// Revoke は指定IDのチケットを削除する。存在しない場合は何もしない。
// 削除は常に権威的であり、並行するRenewによって復活することはない。
func (s *Store) Revoke(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke ticket: %w", err)
	}

	return nil
}

// RevokeAllForUser は指定ユーザーの全チケットを削除する。
// 退会処理やセキュリティイベント時に使用する。
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke user tickets: %w", err)
	}
	return nil
}
