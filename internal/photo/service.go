// Package photo は写真の管理ドメインロジックを提供する。
// 全ての読み書きは所有権チェックを通る。
package photo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/photokeep/internal/model"
	"github.com/hitoshi/photokeep/internal/repository"
	"github.com/hitoshi/photokeep/internal/signedurl"
)

// CanAccess は写真への操作を許可するかを判定する純粋関数。
// 判定はトークンのsubjectと写真の所有者の明示的な引数のみに依存し、
// リクエスト文脈などの暗黙の状態は参照しない。
func CanAccess(subjectID, ownerID string) bool {
	return subjectID != "" && subjectID == ownerID
}

// TitleSanitizer はユーザー入力タイトルのサニタイズのインターフェース。
type TitleSanitizer interface {
	Sanitize(rawTitle string) string
}

// ServiceConfig は写真サービスの設定。
type ServiceConfig struct {
	// BaseURL は署名付きコンテンツURLの基点（例: https://photos.example.com）。
	BaseURL string
	// SignedURLTTL は署名付きURLの有効期間。
	SignedURLTTL time.Duration
}

// Service は写真のビジネスロジックを提供する。
type Service struct {
	repo      repository.PhotoRepository
	codec     *signedurl.Codec
	sanitizer TitleSanitizer
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.PhotoRepository, codec *signedurl.Codec, sanitizer TitleSanitizer, config ServiceConfig) *Service {
	return &Service{
		repo:      repo,
		codec:     codec,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

// PhotoView はAPI応答用の写真表現。
// コンテンツには認証ヘッダー不要の署名付きURLでアクセスする。
type PhotoView struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	FileName         string    `json:"file_name"`
	SignedContentURL string    `json:"signed_content_url"`
	CreatedAt        time.Time `json:"created_at"`
}

// List は指定subjectの写真一覧を署名付きコンテンツURL付きで返す。
func (s *Service) List(ctx context.Context, subjectID string) ([]*PhotoView, error) {
	photos, err := s.repo.ListByOwner(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	views := make([]*PhotoView, 0, len(photos))
	for _, p := range photos {
		view, err := s.toView(p)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, nil
}

// Get は指定IDの写真メタデータを返す。
// 写真が存在しない場合はPhotoNotFound、subjectが所有者でない場合は
// PhotoForbiddenを返す。
func (s *Service) Get(ctx context.Context, subjectID, photoID string) (*PhotoView, error) {
	p, err := s.findAuthorized(ctx, subjectID, photoID)
	if err != nil {
		return nil, err
	}
	return s.toView(p)
}

// GetContent は指定IDの写真バイナリを返す。所有権チェックを行う。
func (s *Service) GetContent(ctx context.Context, subjectID, photoID string) (*model.PhotoContent, error) {
	if _, err := s.findAuthorized(ctx, subjectID, photoID); err != nil {
		return nil, err
	}

	content, err := s.repo.FindContentByID(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load photo content: %w", err)
	}
	if content == nil {
		return nil, model.NewPhotoNotFoundError(photoID)
	}

	return content, nil
}

// GetSignedContent は署名検証のみで写真バイナリを返す。
// 呼び出し側（ハンドラー）が署名付きURLの検証を済ませていることが前提で、
// ここでは所有権チェックを行わない。URLの署名が所有権の代理となる。
func (s *Service) GetSignedContent(ctx context.Context, photoID string) (*model.PhotoContent, error) {
	content, err := s.repo.FindContentByID(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load photo content: %w", err)
	}
	if content == nil {
		return nil, model.NewPhotoNotFoundError(photoID)
	}
	return content, nil
}

// Add は写真を登録する。タイトルはサニタイズされる。
func (s *Service) Add(ctx context.Context, subjectID, title, fileName, contentType string, data []byte) (*PhotoView, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("photo content must not be empty")
	}

	now := s.now()
	p := &model.Photo{
		ID:        uuid.New().String(),
		OwnerID:   subjectID,
		Title:     s.sanitizeTitle(title),
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	content := &model.PhotoContent{
		PhotoID:     p.ID,
		ContentType: contentType,
		Content:     data,
	}

	if err := s.repo.Create(ctx, p, content); err != nil {
		return nil, fmt.Errorf("failed to create photo: %w", err)
	}

	slog.Info("photo added",
		slog.String("photo_id", p.ID),
		slog.String("owner_id", subjectID),
		slog.Int("size", len(data)),
	)

	return s.toView(p)
}

// UpdateTitle は写真のタイトルを更新する。所有権チェックを行う。
func (s *Service) UpdateTitle(ctx context.Context, subjectID, photoID, title string) error {
	if _, err := s.findAuthorized(ctx, subjectID, photoID); err != nil {
		return err
	}

	if err := s.repo.UpdateTitle(ctx, photoID, s.sanitizeTitle(title)); err != nil {
		return fmt.Errorf("failed to update photo title: %w", err)
	}

	return nil
}

// Delete は写真を削除する。所有権チェックを行う。
func (s *Service) Delete(ctx context.Context, subjectID, photoID string) error {
	if _, err := s.findAuthorized(ctx, subjectID, photoID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	slog.Info("photo deleted",
		slog.String("photo_id", photoID),
		slog.String("owner_id", subjectID),
	)

	return nil
}

// findAuthorized は写真を取得して所有権チェックを行う。
// 存在チェックが先で、他人の写真は存在を明かさずForbiddenを返す。
func (s *Service) findAuthorized(ctx context.Context, subjectID, photoID string) (*model.Photo, error) {
	p, err := s.repo.FindMetaByID(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to find photo: %w", err)
	}
	if p == nil {
		return nil, model.NewPhotoNotFoundError(photoID)
	}
	if !CanAccess(subjectID, p.OwnerID) {
		return nil, model.NewPhotoForbiddenError()
	}
	return p, nil
}

// toView は署名付きコンテンツURLを生成してAPI表現に変換する。
func (s *Service) toView(p *model.Photo) (*PhotoView, error) {
	base := strings.TrimRight(s.config.BaseURL, "/")
	contentURL := fmt.Sprintf("%s/api/photos/%s/signed-content", base, p.ID)

	now := s.now()
	signed, err := s.codec.Sign(contentURL, now, now.Add(s.config.SignedURLTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign content url: %w", err)
	}

	return &PhotoView{
		ID:               p.ID,
		Title:            p.Title,
		FileName:         p.FileName,
		SignedContentURL: signed,
		CreatedAt:        p.CreatedAt,
	}, nil
}

// sanitizeTitle はタイトルをサニタイズする。サニタイザー未設定ならそのまま返す。
func (s *Service) sanitizeTitle(title string) string {
	if s.sanitizer == nil {
		return title
	}
	return s.sanitizer.Sanitize(title)
}
