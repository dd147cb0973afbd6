// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 外部IdPからの自動プロビジョニングで作成される。
type User struct {
	ID         string
	Email      string
	Name       string
	AvatarData []byte
	AvatarMime string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Claim は (type, value) のペアを表す。
// 外部IdPのアサーションとローカルプリンシパルの両方で使用する。
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// 標準クレームタイプ。外部IdPのクレーム正規化で使用する。
const (
	ClaimTypeSubject    = "sub"
	ClaimTypeName       = "name"
	ClaimTypeGivenName  = "given_name"
	ClaimTypeFamilyName = "family_name"
	ClaimTypeEmail      = "email"
	// ClaimTypeEmailAlt はemailの別名クレームタイプ。
	// 一部のIdPはemailではなくこちらで返す。
	ClaimTypeEmailAlt = "mail"
	ClaimTypePicture  = "picture"
	ClaimTypeScope    = "scope"
)

// ExternalIdentity は外部IdPが検証済みのアイデンティティアサーションを表す。
// フェデレーションコールバックごとに1回生成され、永続化はされない。
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Claims         []Claim
}

// FindClaim は指定タイプの最初のクレーム値を返す。
// 見つからない場合は空文字列とfalseを返す。
func (e *ExternalIdentity) FindClaim(claimType string) (string, bool) {
	return findClaim(e.Claims, claimType)
}

// ExternalLogin は外部IdPとローカルアカウントの紐付けを表す。
// (Provider, ProviderUserID) の組につきローカルアカウントは高々1つ。
type ExternalLogin struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Principal は認証済みユーザーのローカルプリンシパルを表す。
// セッションチケットにシリアライズされて保存されるほか、
// ベアラートークン検証の結果としても生成される。
type Principal struct {
	// Scheme は認証スキーム名（"cookie"、"bearer"等）。
	Scheme string `json:"scheme"`
	// SubjectID はローカルユーザーID（cookie認証）または
	// トークンのsubクレーム（bearer認証）。
	SubjectID string `json:"subject_id"`
	// IssuedAt はプリンシパルの発行時刻。
	IssuedAt time.Time `json:"issued_at"`
	// Claims はプリンシパルに含まれるクレームの順序付きリスト。
	Claims []Claim `json:"claims"`
}

// FindClaim は指定タイプの最初のクレーム値を返す。
// 見つからない場合は空文字列とfalseを返す。
func (p *Principal) FindClaim(claimType string) (string, bool) {
	return findClaim(p.Claims, claimType)
}

func findClaim(claims []Claim, claimType string) (string, bool) {
	for _, c := range claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}
