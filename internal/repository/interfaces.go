// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/photokeep/internal/model"
)

// ErrDuplicateAccount はアカウントIDが既に使用されている場合に返される。
// ID生成の衝突を示す致命的エラーであり、上書きは行わない。
var ErrDuplicateAccount = errors.New("account id already exists")

// ErrDuplicateExternalLogin は (provider, provider_user_id) の紐付けが
// 既に存在する場合に返される。並行プロビジョニングの競合検出に使用する。
var ErrDuplicateExternalLogin = errors.New("external login already linked")

// ErrDuplicateTicketID はチケットIDが既に使用されている場合に返される。
// ID生成の衝突を示す致命的エラーであり、上書きは行わない。
var ErrDuplicateTicketID = errors.New("ticket id already exists")

// AccountDirectory はローカルアカウントと外部ログイン紐付けの永続化インターフェース。
// フェデレーションバインダーが唯一の書き込み経路となる。
type AccountDirectory interface {
	// FindByExternalLogin は (provider, provider_user_id) に紐付くユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByExternalLogin(ctx context.Context, provider, providerUserID string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateAccount はユーザーを作成する。
	// IDが既に存在する場合はErrDuplicateAccountを返す。
	CreateAccount(ctx context.Context, user *model.User) error

	// AddClaims はユーザーにクレームを追加する。
	AddClaims(ctx context.Context, userID string, claims []model.Claim) error

	// LinkExternalLogin は外部ログインをユーザーに紐付ける。
	// (provider, provider_user_id) が既に紐付いている場合は
	// ErrDuplicateExternalLoginを返す。
	LinkExternalLogin(ctx context.Context, userID, provider, providerUserID string) error

	// UpdateAvatar はユーザーのアバター画像を更新する。
	UpdateAvatar(ctx context.Context, userID string, data []byte, mimeType string) error

	// DeleteAccount は指定IDのユーザーを削除する。
	// 関連するuser_claims、external_logins、tickets、photosはCASCADE削除される。
	DeleteAccount(ctx context.Context, id string) error
}

// TicketRepository はセッションチケット行の永続化インターフェース。
// 期限やアクティビティの判断はチケットストアが行い、ここは行の入出力のみを担う。
type TicketRepository interface {
	// Insert はチケット行を作成する。
	// IDが既に存在する場合はErrDuplicateTicketIDを返す。
	Insert(ctx context.Context, ticket *model.Ticket) error

	// FindByID は指定IDのチケットを取得する。
	// 存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Ticket, error)

	// TouchActivity はlast_activityを指定時刻に更新する。
	// 行が存在しない場合は何もしない。
	TouchActivity(ctx context.Context, id string, at time.Time) error

	// Update はvalue、last_activity、expiresを上書きする。
	// 行が存在しない場合は何もしない（並行失効を許容する）。
	Update(ctx context.Context, ticket *model.Ticket) error

	// DeleteByID は指定IDのチケットを削除する。存在しない場合は何もしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全チケットを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PhotoRepository は写真データの永続化インターフェース。
type PhotoRepository interface {
	// FindMetaByID は指定IDの写真メタデータを取得する。見つからない場合はnilを返す。
	FindMetaByID(ctx context.Context, id string) (*model.Photo, error)

	// FindContentByID は指定IDの写真バイナリを取得する。見つからない場合はnilを返す。
	FindContentByID(ctx context.Context, id string) (*model.PhotoContent, error)

	// ListByOwner は指定ユーザーの写真メタデータ一覧をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Photo, error)

	// Create は写真メタデータとバイナリを作成する。
	Create(ctx context.Context, photo *model.Photo, content *model.PhotoContent) error

	// UpdateTitle は写真のタイトルを更新する。
	UpdateTitle(ctx context.Context, id, title string) error

	// Delete は指定IDの写真を削除する。
	Delete(ctx context.Context, id string) error
}
