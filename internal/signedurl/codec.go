// Package signedurl はHMAC署名付きURLの生成と検証を提供する。
// 認証ヘッダーを付けられないクライアント（imgタグ等）に
// 期限付きの匿名アクセスを許可するために使用する。
package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 署名付きURLのクエリパラメータ名。
const (
	paramNotBefore = "not_before"
	paramExpires   = "expires"
	paramSignature = "signature"
)

// ErrSignatureMismatch は署名の不一致（URLまたは鍵の改ざん）を示す。
var ErrSignatureMismatch = errors.New("signature mismatch")

// ErrOutsideWindow は検証時刻が有効期間 [not_before, expires] の
// 外にあることを示す。
var ErrOutsideWindow = errors.New("outside validity window")

// ErrMissingParams は署名関連パラメータの欠落・不正な形式を示す。
var ErrMissingParams = errors.New("missing or malformed signature params")

// Codec はURLの署名と検証を行う。
// 鍵は起動時に一度だけ注入され、以後不変。鍵の交換は再起動で行い、
// 旧鍵で署名されたURLは全て無効になる。
type Codec struct {
	key []byte
}

// NewCodec はCodecを生成する。
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key must not be empty")
	}
	return &Codec{key: key}, nil
}

// Sign はbaseURLに有効期間と署名のクエリパラメータを付与して返す。
// 既存のクエリパラメータは保持され、署名の対象に含まれる。
func (c *Codec) Sign(baseURL string, notBefore, notAfter time.Time) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}

	q := u.Query()
	q.Set(paramNotBefore, strconv.FormatInt(notBefore.Unix(), 10))
	q.Set(paramExpires, strconv.FormatInt(notAfter.Unix(), 10))
	u.RawQuery = q.Encode()

	sig := c.compute(u)

	q.Set(paramSignature, sig)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Verify は署名付きURLを検証する。
// 署名は定数時間で比較され、nowが [not_before, expires] に
// 含まれない場合は期間外として拒否される。
// 検証は (URL, 鍵, now) のみの関数で、外部状態に依存しない。
func (c *Codec) Verify(rawURL string, now time.Time) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingParams, err)
	}

	q := u.Query()

	sig := q.Get(paramSignature)
	if sig == "" {
		return fmt.Errorf("%w: no signature", ErrMissingParams)
	}

	notBefore, err := parseUnixParam(q, paramNotBefore)
	if err != nil {
		return err
	}
	notAfter, err := parseUnixParam(q, paramExpires)
	if err != nil {
		return err
	}

	expected := c.compute(u)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrSignatureMismatch
	}

	if now.Before(notBefore) || now.After(notAfter) {
		return ErrOutsideWindow
	}

	return nil
}

// compute は正規化文字列のHMAC-SHA256をbase64urlで返す。
// 正規化文字列は scheme://host/path に、signatureを除く全クエリを
// キー順に並べたものを連結して作る。
func (c *Codec) compute(u *url.URL) string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(u.Path)

	q := u.Query()
	q.Del(paramSignature)

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first := true
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			if first {
				b.WriteString("?")
				first = false
			} else {
				b.WriteString("&")
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(v))
		}
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(b.String()))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// parseUnixParam はUNIX秒のクエリパラメータを時刻として読む。
func parseUnixParam(q url.Values, name string) (time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: no %s", ErrMissingParams, name)
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad %s: %v", ErrMissingParams, name, err)
	}
	return time.Unix(sec, 0), nil
}
