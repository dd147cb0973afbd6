// Package introspection はベアラートークンの検証を提供する。
// ローカル検証（署名・発行者・オーディエンス・期限）と
// 認可サーバーへのリモートイントロスペクション（RFC 7662）を組み合わせる。
package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DiscoveryDocument はOIDCディスカバリードキュメントを表す。
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}

// maxDiscoveryResponseSize はディスカバリー応答の読み取り上限。
const maxDiscoveryResponseSize = 1024 * 1024 // 1MB

// DiscoveryCache は認可サーバーのディスカバリードキュメントを
// プロセス全体でTTL付きキャッシュする。
// 再取得はsingleflightで合流させ、新鮮なコピーを持つ読み手は
// 進行中の再取得を待たずに返る。
// 再取得の失敗はキャッシュを汚さず、次の要求で再試行される。
type DiscoveryCache struct {
	authorityURL string
	ttl          time.Duration
	client       *http.Client
	now          func() time.Time

	mu        sync.RWMutex
	doc       *DiscoveryDocument
	fetchedAt time.Time

	group singleflight.Group
}

// NewDiscoveryCache はDiscoveryCacheを生成する。
// clientがnilの場合はタイムアウト付きのデフォルトクライアントを使用する。
func NewDiscoveryCache(authorityURL string, ttl time.Duration, client *http.Client) *DiscoveryCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DiscoveryCache{
		authorityURL: strings.TrimRight(authorityURL, "/"),
		ttl:          ttl,
		client:       client,
		now:          time.Now,
	}
}

// Get は新鮮なディスカバリードキュメントを返す。
// キャッシュが期限内ならそのまま返し、切れていれば再取得する。
func (c *DiscoveryCache) Get(ctx context.Context) (*DiscoveryDocument, error) {
	c.mu.RLock()
	if c.doc != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		doc := c.doc
		c.mu.RUnlock()
		return doc, nil
	}
	c.mu.RUnlock()

	// 並行する再取得要求は1回のHTTP呼び出しに合流させる
	v, err, _ := c.group.Do("discovery", func() (interface{}, error) {
		// 合流待ちの間に別のゴルーチンが更新済みなら再利用する
		c.mu.RLock()
		if c.doc != nil && c.now().Sub(c.fetchedAt) < c.ttl {
			doc := c.doc
			c.mu.RUnlock()
			return doc, nil
		}
		c.mu.RUnlock()

		doc, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.doc = doc
		c.fetchedAt = c.now()
		c.mu.Unlock()

		return doc, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*DiscoveryDocument), nil
}

// fetch は .well-known/openid-configuration を取得して検証する。
func (c *DiscoveryCache) fetch(ctx context.Context) (*DiscoveryDocument, error) {
	wellKnownURL := c.authorityURL + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery fetch failed with status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryResponseSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	if doc.Issuer == "" {
		return nil, fmt.Errorf("discovery document missing issuer")
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document missing jwks_uri")
	}
	if doc.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing introspection_endpoint")
	}

	return &doc, nil
}
