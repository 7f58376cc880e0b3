package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zappod/entitlement-service/internal/models"
)

// FindRedemption сообщает, гасил ли пользователь код данной категории.
func (s *Storage) FindRedemption(ctx context.Context, userID, category string) (bool, error) {
	const op = "storage.FindRedemption"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM promo_redemptions
			      WHERE user_id = $1 AND category = $2
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userID, category).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// InsertRedemption добавляет запись в журнал погашений. Нарушение ограничения
// уникальности (гонка двух параллельных погашений) возвращается как
// ErrUniqueViolation — вызывающая сторона трактует его как "уже погашено".
func (s *Storage) InsertRedemption(ctx context.Context, redemption models.Redemption) error {
	const op = "storage.InsertRedemption"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promo_redemptions (user_id, promo_code, category, created_at)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query,
		redemption.UserID, redemption.PromoCode, redemption.Category, redemption.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
