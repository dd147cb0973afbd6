package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/photokeep/internal/model"
)

// PostgresPhotoRepo はPostgreSQLを使用した写真リポジトリ。
type PostgresPhotoRepo struct {
	db *sql.DB
}

// NewPostgresPhotoRepo はPostgresPhotoRepoを生成する。
func NewPostgresPhotoRepo(db *sql.DB) *PostgresPhotoRepo {
	return &PostgresPhotoRepo{db: db}
}

// FindMetaByID は指定IDの写真メタデータを取得する。見つからない場合はnilを返す。
func (r *PostgresPhotoRepo) FindMetaByID(ctx context.Context, id string) (*model.Photo, error) {
	photo := &model.Photo{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, file_name, created_at, updated_at
		 FROM photos WHERE id = $1`,
		id,
	).Scan(&photo.ID, &photo.OwnerID, &photo.Title, &photo.FileName, &photo.CreatedAt, &photo.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find photo meta: %w", err)
	}

	return photo, nil
}

// FindContentByID は指定IDの写真バイナリを取得する。見つからない場合はnilを返す。
func (r *PostgresPhotoRepo) FindContentByID(ctx context.Context, id string) (*model.PhotoContent, error) {
	content := &model.PhotoContent{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, content_type, content FROM photos WHERE id = $1`,
		id,
	).Scan(&content.PhotoID, &content.ContentType, &content.Content)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find photo content: %w", err)
	}

	return content, nil
}

// ListByOwner は指定ユーザーの写真メタデータ一覧をcreated_at降順で返す。
func (r *PostgresPhotoRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Photo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, file_name, created_at, updated_at
		 FROM photos WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []*model.Photo
	for rows.Next() {
		photo := &model.Photo{}
		if err := rows.Scan(&photo.ID, &photo.OwnerID, &photo.Title, &photo.FileName, &photo.CreatedAt, &photo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photo rows: %w", err)
	}

	return photos, nil
}

// Create は写真メタデータとバイナリを作成する。
func (r *PostgresPhotoRepo) Create(ctx context.Context, photo *model.Photo, content *model.PhotoContent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO photos (id, owner_id, title, file_name, content_type, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		photo.ID, photo.OwnerID, photo.Title, photo.FileName,
		content.ContentType, content.Content, photo.CreatedAt, photo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

// UpdateTitle は写真のタイトルを更新する。
func (r *PostgresPhotoRepo) UpdateTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE photos SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("failed to update photo title: %w", err)
	}
	return nil
}

// Delete は指定IDの写真を削除する。
func (r *PostgresPhotoRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM photos WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhotoRepository = (*PostgresPhotoRepo)(nil)
