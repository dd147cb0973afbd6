package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/photokeep/internal/model"
)

// PostgresAccountDirectory はPostgreSQLを使用したアカウントディレクトリ。
type PostgresAccountDirectory struct {
	db *sql.DB
}

// NewPostgresAccountDirectory はPostgresAccountDirectoryを生成する。
func NewPostgresAccountDirectory(db *sql.DB) *PostgresAccountDirectory {
	return &PostgresAccountDirectory{db: db}
}

// FindByExternalLogin は (provider, provider_user_id) に紐付くユーザーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountDirectory) FindByExternalLogin(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.name, u.avatar_mime, u.created_at, u.updated_at
		 FROM users u
		 JOIN external_logins el ON el.user_id = u.id
		 WHERE el.provider = $1 AND el.provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.AvatarMime, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external login: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, avatar_mime, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.AvatarMime, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// CreateAccount はユーザーを作成する。
// IDの一意制約違反はErrDuplicateAccountとして返す。
func (r *PostgresAccountDirectory) CreateAccount(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, avatar_mime, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, user.AvatarMime, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user id %s: %w", user.ID, ErrDuplicateAccount)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AddClaims はユーザーにクレームを追加する。
// クレームが空の場合は何もしない。
func (r *PostgresAccountDirectory) AddClaims(ctx context.Context, userID string, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, c := range claims {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_claims (id, user_id, claim_type, claim_value, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), userID, c.Type, c.Value, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert claim %s: %w", c.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LinkExternalLogin は外部ログインをユーザーに紐付ける。
// (provider, provider_user_id) の一意制約違反はErrDuplicateExternalLoginとして返す。
func (r *PostgresAccountDirectory) LinkExternalLogin(ctx context.Context, userID, provider, providerUserID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO external_logins (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), userID, provider, providerUserID, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("external login %s/%s: %w", provider, providerUserID, ErrDuplicateExternalLogin)
		}
		return fmt.Errorf("failed to insert external login: %w", err)
	}
	return nil
}

// UpdateAvatar はユーザーのアバター画像を更新する。
func (r *PostgresAccountDirectory) UpdateAvatar(ctx context.Context, userID string, data []byte, mimeType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_data = $2, avatar_mime = $3, updated_at = now() WHERE id = $1`,
		userID, data, mimeType,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// DeleteAccount は指定IDのユーザーを削除する。
// 関連するuser_claims、external_logins、tickets、photosはCASCADE削除される。
func (r *PostgresAccountDirectory) DeleteAccount(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（SQLSTATE 23505）かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// compile-time interface check
var _ AccountDirectory = (*PostgresAccountDirectory)(nil)
