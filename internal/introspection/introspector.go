package introspection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/hitoshi/photokeep/internal/model"
)

// 検証結果のエラー。拒否（401相当）と到達不能（503相当）を
// 厳密に区別する。到達不能を拒否に格下げしてはならない。
var (
	// ErrTokenMalformed はトークンがJWTとして構文解析できないことを示す。
	ErrTokenMalformed = errors.New("token is not a well-formed JWT")
	// ErrTokenInvalid はローカル検証（署名・発行者・オーディエンス・期限）の
	// 失敗を示す。
	ErrTokenInvalid = errors.New("token failed local validation")
	// ErrTokenNotActive は認可サーバーがトークンを非アクティブと
	// 報告したことを示す。ローカル検証を通過していても優先される。
	ErrTokenNotActive = errors.New("token reported not active by authority")
	// ErrIntrospectionUnreachable は認可サーバーへの到達失敗を示す。
	// トークンの有効性について何も述べない。
	ErrIntrospectionUnreachable = errors.New("introspection endpoint unreachable")
)

// Config はIntrospectorの設定。
type Config struct {
	// Issuer はトークンのissクレームに要求する値。
	Issuer string
	// Audience はトークンのaudクレームに要求する値。
	Audience string
	// ResourceID はイントロスペクションのBasic認証ユーザー名
	// （保護リソースの識別子）。
	ResourceID string
	// ResourceSecret はイントロスペクションのBasic認証パスワード。
	ResourceSecret string
}

// Introspector はベアラートークンを検証する。
// 構文チェック → ローカル検証 → リモートイントロスペクションの
// 3段階で、全段階を通過したトークンのみプリンシパルになる。
type Introspector struct {
	discovery *DiscoveryCache
	config    Config
	client    *http.Client

	jwks *jwk.Cache

	mu            sync.Mutex
	registeredURL string
}

// NewIntrospector はIntrospectorを生成する。
// ctxはJWKSキャッシュの自動更新の寿命を制御する。
// clientがnilの場合はタイムアウト付きのデフォルトクライアントを使用する。
func NewIntrospector(ctx context.Context, discovery *DiscoveryCache, config Config, client *http.Client) *Introspector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Introspector{
		discovery: discovery,
		config:    config,
		client:    client,
		jwks:      jwk.NewCache(ctx),
	}
}

// Validate はベアラートークンを検証し、ローカルクレームから
// 再構築したプリンシパルを返す。
//
// 1. 構文チェック: JWTとして解析できなければErrTokenMalformed。
// 2. ローカル検証: JWKS署名・発行者・オーディエンス・期限のいずれかが
//    不正ならErrTokenInvalid。
// 3. リモートイントロスペクション: 到達失敗はErrIntrospectionUnreachable、
//    active=falseはErrTokenNotActive。
//
// プリンシパルはイントロスペクション応答ではなくローカルクレームのみから
// 構築される。
func (i *Introspector) Validate(ctx context.Context, token string) (*model.Principal, error) {
	// 1. 構文チェック（署名は見ない）
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	// ディスカバリードキュメントの取得。
	// JWKSとイントロスペクションの両方が依存するため、
	// 取得できなければ到達不能として扱う。
	doc, err := i.discovery.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntrospectionUnreachable, err)
	}

	// 2. ローカル検証
	claims, err := i.validateLocal(ctx, token, doc.JWKSURI)
	if err != nil {
		return nil, err
	}

	// 3. リモートイントロスペクション
	active, err := i.introspect(ctx, token, doc.IntrospectionEndpoint)
	if err != nil {
		return nil, err
	}
	if !active {
		// ローカル検証を通過していても認可サーバーの判断が優先される
		return nil, ErrTokenNotActive
	}

	return principalFromClaims(claims), nil
}

// validateLocal は署名・発行者・オーディエンス・期限を検証し、
// クレームを返す。
func (i *Introspector) validateLocal(ctx context.Context, token, jwksURL string) (jwt.MapClaims, error) {
	keySet, err := i.fetchKeySet(ctx, jwksURL)
	if err != nil {
		// 鍵が取得できない場合はトークンの正否を判断できない
		return nil, fmt.Errorf("%w: %v", ErrIntrospectionUnreachable, err)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token header missing kid")
		}

		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key %s not found in JWKS", kid)
		}

		var rawKey interface{}
		if err := key.Raw(&rawKey); err != nil {
			return nil, fmt.Errorf("failed to materialize key: %w", err)
		}
		return rawKey, nil
	},
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// fetchKeySet はJWKSキャッシュから鍵セットを取得する。
// URLの登録は初回のみ行う。
func (i *Introspector) fetchKeySet(ctx context.Context, jwksURL string) (jwk.Set, error) {
	i.mu.Lock()
	if i.registeredURL != jwksURL {
		if err := i.jwks.Register(jwksURL); err != nil {
			i.mu.Unlock()
			return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
		}
		i.registeredURL = jwksURL
	}
	i.mu.Unlock()

	keySet, err := i.jwks.Get(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	return keySet, nil
}

// introspectionResponse はRFC 7662のイントロスペクション応答。
type introspectionResponse struct {
	Active bool `json:"active"`
}

// introspect は認可サーバーにトークンの状態を問い合わせる。
func (i *Introspector) introspect(ctx context.Context, token, endpoint string) (bool, error) {
	form := url.Values{"token": {token}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIntrospectionUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(i.config.ResourceID, i.config.ResourceSecret)

	resp, err := i.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIntrospectionUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("%w: status %d: %s", ErrIntrospectionUnreachable, resp.StatusCode, string(body))
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return false, fmt.Errorf("%w: unexpected response: %v", ErrIntrospectionUnreachable, err)
	}

	return ir.Active, nil
}

// principalFromClaims はローカル検証済みクレームからプリンシパルを構築する。
// 既知のクレームタイプのみを決まった順序で取り込む。
func principalFromClaims(claims jwt.MapClaims) *model.Principal {
	var principalClaims []model.Claim
	appendClaim := func(claimType string) {
		if v, ok := claims[claimType].(string); ok && v != "" {
			principalClaims = append(principalClaims, model.Claim{Type: claimType, Value: v})
		}
	}
	appendClaim(model.ClaimTypeSubject)
	appendClaim(model.ClaimTypeName)
	appendClaim(model.ClaimTypeEmail)
	appendClaim(model.ClaimTypeScope)

	subject, _ := claims.GetSubject()

	return &model.Principal{
		Scheme:    "bearer",
		SubjectID: subject,
		IssuedAt:  time.Now(),
		Claims:    principalClaims,
	}
}
