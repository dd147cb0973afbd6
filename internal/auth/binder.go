package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
)

// ErrMissingSubjectClaim は外部アサーションに利用可能なユーザーIDクレームが
// 含まれない場合に返される。書き込みが行われる前に検出される。
var ErrMissingSubjectClaim = errors.New("external assertion has no subject claim")

// ErrProvisioningConflict は自動プロビジョニング中のディレクトリ不変条件違反
// （ローカルユーザーIDの衝突など）を示す。サーバーエラーとして扱う。
var ErrProvisioningConflict = errors.New("account provisioning conflict")

// BindResult はBindの結果を表す。
type BindResult struct {
	// UserID は解決されたローカルユーザーID。
	UserID string
	// Created はこの呼び出しで新規アカウントが作成された場合にtrue。
	Created bool
	// DerivedClaims はプロビジョニング時に導出されたクレーム。
	// 既存ユーザーパスでは空。
	DerivedClaims []model.Claim
}

// Binder は検証済みの外部アイデンティティアサーションをローカルアカウントに
// 解決する。未知のアイデンティティはディレクトリに自動プロビジョニングされる。
// Binder自身は状態を持たず、全ての書き込みはAccountDirectoryに委譲する。
type Binder struct {
	directory repository.AccountDirectory
}

// NewBinder はBinderを生成する。
func NewBinder(directory repository.AccountDirectory) *Binder {
	return &Binder{directory: directory}
}

// Bind は外部アイデンティティをローカルアカウントに解決する。
//
// 既存ユーザー: (provider, provider_user_id) で検索してそのまま返す。
// 新規ユーザー: 表示名とメールをクレームから導出し、アカウント作成 →
// クレーム永続化 → 外部ログイン紐付けの順で自動プロビジョニングする。
//
// 同一 (provider, provider_user_id) に対する並行Bindは外部ログインの
// 一意制約で競合が検出され、負けた側は作成済みの孤児アカウントを破棄して
// 勝った側のアカウントに解決する。アカウントは高々1つしか残らない。
func (b *Binder) Bind(ctx context.Context, assertion *model.ExternalIdentity) (*BindResult, error) {
	providerUserID := assertion.ProviderUserID
	if providerUserID == "" {
		// アサーション本体にIDがない場合はsubクレームにフォールバック
		providerUserID, _ = assertion.FindClaim(model.ClaimTypeSubject)
	}
	if providerUserID == "" {
		return nil, ErrMissingSubjectClaim
	}

	// 1. 既存ユーザーの検索
	user, err := b.directory.FindByExternalLogin(ctx, assertion.Provider, providerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external login: %w", err)
	}
	if user != nil {
		return &BindResult{UserID: user.ID}, nil
	}

	// 2. 自動プロビジョニング
	derived := deriveClaims(assertion.Claims)
	name, _ := findDerived(derived, model.ClaimTypeName)
	email, _ := findDerived(derived, model.ClaimTypeEmail)

	now := time.Now()
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := b.directory.CreateAccount(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			// 生成したUUIDが既存アカウントと衝突した。
			// リトライせず致命的エラーとして返す。
			return nil, fmt.Errorf("generated user id collided: %w", ErrProvisioningConflict)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// 3. 導出クレームの永続化（導出できなかった場合はスキップ）
	if len(derived) > 0 {
		if err := b.directory.AddClaims(ctx, newUser.ID, derived); err != nil {
			return nil, fmt.Errorf("failed to persist derived claims: %w", err)
		}
	}

	// 4. 外部ログインの紐付け
	if err := b.directory.LinkExternalLogin(ctx, newUser.ID, assertion.Provider, providerUserID); err != nil {
		if errors.Is(err, repository.ErrDuplicateExternalLogin) {
			// 並行Bindに負けた。勝った側のアカウントに解決し、
			// 作成済みの孤児アカウントを破棄する。
			return b.resolveLostRace(ctx, assertion.Provider, providerUserID, newUser.ID)
		}
		return nil, fmt.Errorf("failed to link external login: %w", err)
	}

	slog.Info("new user provisioned",
		slog.String("user_id", newUser.ID),
		slog.String("provider", assertion.Provider),
		slog.Int("derived_claims", len(derived)),
	)

	return &BindResult{UserID: newUser.ID, Created: true, DerivedClaims: derived}, nil
}

// resolveLostRace は並行Bind競合の敗者側の処理を行う。
// 勝者のアカウントを再読し、自分が作成した孤児アカウントを削除する。
func (b *Binder) resolveLostRace(ctx context.Context, provider, providerUserID, orphanID string) (*BindResult, error) {
	winner, err := b.directory.FindByExternalLogin(ctx, provider, providerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read after link conflict: %w", err)
	}
	if winner == nil {
		// 紐付けが重複と報告されたのに再読で見つからない。
		// ディレクトリ不変条件の違反として扱う。
		return nil, fmt.Errorf("external login conflict without winner: %w", ErrProvisioningConflict)
	}

	if err := b.directory.DeleteAccount(ctx, orphanID); err != nil {
		slog.Warn("failed to delete orphan account after bind race",
			slog.String("orphan_id", orphanID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("concurrent bind resolved to existing account",
		slog.String("user_id", winner.ID),
		slog.String("provider", provider),
	)

	return &BindResult{UserID: winner.ID}, nil
}

// deriveClaims は外部クレームからローカルに保存するクレームを導出する。
//
// 表示名の優先順位: nameクレーム → "given family"の合成 → givenのみ →
// familyのみ → なし。
// メールの優先順位: email → mail。
func deriveClaims(claims []model.Claim) []model.Claim {
	var derived []model.Claim

	name := firstClaim(claims, model.ClaimTypeName)
	if name == "" {
		given := firstClaim(claims, model.ClaimTypeGivenName)
		family := firstClaim(claims, model.ClaimTypeFamilyName)
		switch {
		case given != "" && family != "":
			name = given + " " + family
		case given != "":
			name = given
		case family != "":
			name = family
		}
	}
	if name != "" {
		derived = append(derived, model.Claim{Type: model.ClaimTypeName, Value: name})
	}

	email := firstClaim(claims, model.ClaimTypeEmail)
	if email == "" {
		email = firstClaim(claims, model.ClaimTypeEmailAlt)
	}
	if email != "" {
		derived = append(derived, model.Claim{Type: model.ClaimTypeEmail, Value: strings.ToLower(email)})
	}

	return derived
}

// firstClaim は指定タイプの最初の空でないクレーム値を返す。
func firstClaim(claims []model.Claim, claimType string) string {
	for _, c := range claims {
		if c.Type == claimType && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// findDerived は導出済みクレームから指定タイプの値を返す。
func findDerived(claims []model.Claim, claimType string) (string, bool) {
	for _, c := range claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}
