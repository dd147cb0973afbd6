// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, photo, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTokenMalformed           = "TOKEN_MALFORMED"
	ErrCodeTokenInvalid             = "TOKEN_INVALID"
	ErrCodeTokenNotActive           = "TOKEN_NOT_ACTIVE"
	ErrCodeIntrospectionUnreachable = "INTROSPECTION_UNREACHABLE"
	ErrCodeSignedURLInvalid         = "SIGNED_URL_INVALID"
	ErrCodeSessionExpired           = "SESSION_EXPIRED"
	ErrCodeMissingSubjectClaim      = "MISSING_SUBJECT_CLAIM"
	ErrCodeProvisioningConflict     = "PROVISIONING_CONFLICT"
	ErrCodePhotoNotFound            = "PHOTO_NOT_FOUND"
	ErrCodePhotoForbidden           = "PHOTO_FORBIDDEN"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeStorageFault             = "STORAGE_FAULT"
)

// NewTokenMalformedError はトークン構文不正エラーを生成する。
func NewTokenMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMalformed,
		Message:  "アクセストークンの形式が不正です。",
		Category: "auth",
		Action:   "有効なアクセストークンをAuthorizationヘッダーに指定してください。",
	}
}

// NewTokenInvalidError はトークンのローカル検証失敗エラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "アクセストークンの検証に失敗しました。",
		Category: "auth",
		Action:   "トークンを再取得してから再度お試しください。",
	}
}

// NewTokenNotActiveError は認可サーバーによる失効済み判定エラーを生成する。
func NewTokenNotActiveError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenNotActive,
		Message:  "アクセストークンは失効しています。",
		Category: "auth",
		Action:   "トークンを再取得してから再度お試しください。",
	}
}

// NewIntrospectionUnreachableError は認可サーバー到達不能エラーを生成する。
// 認可判定の失敗とは区別され、5xx系として扱う。
func NewIntrospectionUnreachableError() *APIError {
	return &APIError{
		Code:     ErrCodeIntrospectionUnreachable,
		Message:  "認可サーバーに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSignedURLInvalidError は署名付きURLの検証失敗エラーを生成する。
// 署名不一致と期限切れは区別せず同一のエラーとして扱う。
func NewSignedURLInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSignedURLInvalid,
		Message:  "署名付きURLが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "写真一覧を再取得して新しいURLを使用してください。",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPhotoNotFoundError は写真未検出エラーを生成する。
func NewPhotoNotFoundError(photoID string) *APIError {
	return &APIError{
		Code:     ErrCodePhotoNotFound,
		Message:  fmt.Sprintf("指定された写真が見つかりません: %s", photoID),
		Category: "photo",
		Action:   "写真IDを確認してください。",
	}
}

// NewPhotoForbiddenError は写真への権限なしエラーを生成する。
func NewPhotoForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodePhotoForbidden,
		Message:  "この写真へのアクセス権限がありません。",
		Category: "photo",
		Action:   "自分がアップロードした写真のみ操作できます。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewStorageFaultError はストレージ障害エラーを生成する。
// 呼び出し側でリトライ可能なインフラ障害として扱う。
func NewStorageFaultError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFault,
		Message:  "ストレージへのアクセスに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
