package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/photokeep/internal/model"
)

// PostgresTicketRepo はPostgreSQLを使用したセッションチケットリポジトリ。
type PostgresTicketRepo struct {
	db *sql.DB
}

// NewPostgresTicketRepo はPostgresTicketRepoを生成する。
func NewPostgresTicketRepo(db *sql.DB) *PostgresTicketRepo {
	return &PostgresTicketRepo{db: db}
}

// Insert はチケット行を作成する。
// IDの一意制約違反はErrDuplicateTicketIDとして返す。
func (r *PostgresTicketRepo) Insert(ctx context.Context, ticket *model.Ticket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (id, user_id, value, last_activity, expires)
		 VALUES ($1, $2, $3, $4, $5)`,
		ticket.ID, ticket.UserID, ticket.Value, ticket.LastActivity, ticket.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket id %s: %w", ticket.ID, ErrDuplicateTicketID)
		}
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// FindByID は指定IDのチケットを取得する。
// 存在しないか期限切れの場合はnilを返す。
func (r *PostgresTicketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	ticket := &model.Ticket{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, value, last_activity, expires
		 FROM tickets
		 WHERE id = $1 AND (expires IS NULL OR expires > now())`,
		id,
	).Scan(&ticket.ID, &ticket.UserID, &ticket.Value, &ticket.LastActivity, &ticket.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}

	return ticket, nil
}

// TouchActivity はlast_activityを指定時刻に更新する。
// 行が存在しない場合は何もしない。
func (r *PostgresTicketRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET last_activity = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch ticket activity: %w", err)
	}
	return nil
}

// Update はvalue、last_activity、expiresを上書きする。
// 行が存在しない場合は何もしない（並行失効を許容する）。
func (r *PostgresTicketRepo) Update(ctx context.Context, ticket *model.Ticket) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET value = $2, last_activity = $3, expires = $4 WHERE id = $1`,
		ticket.ID, ticket.Value, ticket.LastActivity, ticket.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのチケットを削除する。存在しない場合は何もしない。
func (r *PostgresTicketRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全チケットを削除する。
func (r *PostgresTicketRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user tickets: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TicketRepository = (*PostgresTicketRepo)(nil)
