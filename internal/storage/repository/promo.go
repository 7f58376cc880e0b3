package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zappod/entitlement-service/internal/models"
)

// GetPromoCode возвращает промокод по его значению.
// Отсутствие кода не является ошибкой: возвращается (nil, nil).
func (s *Storage) GetPromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.GetPromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT code, category, is_active, expires_at, max_usage, current_usage, bonus_days
			  FROM promo_codes
			  WHERE code = $1`
	row := s.DB.QueryRowContext(ctx, query, code)

	var promo models.PromoCode
	var expiresAt sql.NullTime
	var maxUsage sql.NullInt64
	if err := row.Scan(&promo.Code, &promo.Category, &promo.IsActive, &expiresAt,
		&maxUsage, &promo.CurrentUsage, &promo.BonusDays); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if expiresAt.Valid {
		promo.ExpiresAt = &expiresAt.Time
	}
	if maxUsage.Valid {
		mu := int(maxUsage.Int64)
		promo.MaxUsage = &mu
	}
	return &promo, nil
}

// IncrementUsage увеличивает счётчик использований кода на единицу.
// Инкремент выполняется одним выражением на стороне базы, поэтому
// параллельные погашения одного кода не теряют обновления.
func (s *Storage) IncrementUsage(ctx context.Context, code string) error {
	const op = "storage.IncrementUsage"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE promo_codes
			  SET current_usage = current_usage + 1
			  WHERE code = $1`
	if _, err := s.DB.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
