// Package model はドメインモデルを定義する。
package model

import "time"

// Photo は写真のメタデータを表す。バイナリ本体はPhotoContentが持つ。
type Photo struct {
	ID        string
	OwnerID   string
	Title     string
	FileName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhotoContent は写真のバイナリ本体を表す。
// メタデータとは別に取得できるよう分離している。
type PhotoContent struct {
	PhotoID     string
	ContentType string
	Content     []byte
}
