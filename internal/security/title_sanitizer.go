// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TitleSanitizerService はユーザー入力の写真タイトルをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayの厳格ポリシーで全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizerService は写真タイトルのサニタイズ機能のインターフェースを定義する。
// 写真の登録時とタイトル更新時に使用される。
type TitleSanitizerService interface {
	// Sanitize はタイトルから全てのHTMLタグを除去し、
	// 前後の空白をトリムしたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawTitle string) string
}

// titleSanitizer はTitleSanitizerServiceの実装。
// bluemondayの厳格ポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type titleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はTitleSanitizerServiceの新しいインスタンスを生成する。
// タイトルは装飾を持たないプレーンテキストとして扱うため、
// 一切のタグ・属性を許可しないStrictPolicyを使用する。
func NewTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタイトルから全てのHTMLタグを除去して返す。
// StrictPolicyはテキストをHTMLエスケープして返すため、
// プレーンテキストに戻してから空白をトリムする。
func (s *titleSanitizer) Sanitize(rawTitle string) string {
	stripped := s.policy.Sanitize(rawTitle)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
