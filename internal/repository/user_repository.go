package repository

import (
	"context"

	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/repository/base"
)

type PgUserRepository struct {
	db base.DBTX
}

func NewUserRepository(db base.DBTX) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `id, telegram_id, username, first_name, role, created_at`

func scanUser(row base.Scanner) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID получает пользователя по ID
func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, base.MapError("get user by id", err)
	}
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *PgUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, base.MapError("get user by telegram id", err)
	}
	return user, nil
}

// ListIDsByRole возвращает ID всех пользователей с ролью
func (r *PgUserRepository) ListIDsByRole(ctx context.Context, role model.Role) ([]int64, error) {
	query := `SELECT id FROM users WHERE role = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, base.MapError("list users by role", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, base.MapError("scan user id", err)
		}
		ids = append(ids, id)
	}

	return ids, base.MapError("list users by role", rows.Err())
}
