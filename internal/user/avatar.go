package user

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/photokeep/internal/repository"
)

// maxAvatarSize はアバター画像の最大サイズ（2MB）。
const maxAvatarSize = 2 * 1024 * 1024

// avatarTimeout はアバター取得のタイムアウト。
const avatarTimeout = 5 * time.Second

// SSRFValidator はSSRF防止機能のインターフェース。
// picture URLはIdP経由とはいえユーザーが制御できる値であり、
// 内部ネットワークへのアクセスに悪用されうる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// AvatarFetcher はIdPが主張するpicture URLからアバター画像を取得し、
// ユーザーのプロフィールに保存する。
type AvatarFetcher struct {
	directory repository.AccountDirectory
	ssrfGuard SSRFValidator
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
func NewAvatarFetcher(directory repository.AccountDirectory, ssrfGuard SSRFValidator) *AvatarFetcher {
	return &AvatarFetcher{
		directory: directory,
		ssrfGuard: ssrfGuard,
	}
}

// FetchAndStore はpictureURLから画像を取得してユーザーに保存する。
// 呼び出し側はエラーをベストエフォートとして扱ってよい
// （取得失敗でログインは失敗しない）。
func (f *AvatarFetcher) FetchAndStore(ctx context.Context, userID, pictureURL string) error {
	data, mimeType, err := f.fetch(ctx, pictureURL)
	if err != nil {
		return err
	}

	if err := f.directory.UpdateAvatar(ctx, userID, data, mimeType); err != nil {
		return fmt.Errorf("failed to store avatar: %w", err)
	}

	return nil
}

// fetch はpictureURLから画像データとMIMEタイプを取得する。
func (f *AvatarFetcher) fetch(ctx context.Context, pictureURL string) ([]byte, string, error) {
	if pictureURL == "" {
		return nil, "", fmt.Errorf("empty picture url")
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(pictureURL); err != nil {
			return nil, "", fmt.Errorf("picture url blocked: %w", err)
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create avatar request: %w", err)
	}
	req.Header.Set("User-Agent", "Photokeep/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("avatar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("avatar fetch failed with status %d", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大2MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read avatar response: %w", err)
	}
	if int64(len(body)) > maxAvatarSize {
		return nil, "", fmt.Errorf("avatar exceeds %d bytes", maxAvatarSize)
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		return nil, "", fmt.Errorf("avatar has non-image content-type %q", mimeType)
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *AvatarFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(avatarTimeout, maxAvatarSize)
	}
	return &http.Client{Timeout: avatarTimeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
