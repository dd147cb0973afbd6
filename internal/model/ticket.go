// Package model はドメインモデルを定義する。
package model

import "time"

// Ticket はサーバーサイドセッション状態の1行を表す。
// IDは不透明な識別子で、Cookieにはこの値のみが渡る。
// Valueにはシリアライズ済みプリンシパルが格納される。
type Ticket struct {
	ID           string
	UserID       string
	Value        []byte
	LastActivity time.Time
	// ExpiresAt は絶対有効期限。nilの場合は無期限。
	ExpiresAt *time.Time
}

// Expired はチケットが指定時刻において期限切れかどうかを返す。
// ExpiresAtがnilの場合は常にfalse。
func (t *Ticket) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
