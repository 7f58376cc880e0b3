package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zappod/entitlement-service/internal/models"
)

// GetEntitlement возвращает статус подписки пользователя.
// Отсутствие строки не является ошибкой: возвращается (nil, nil).
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*models.Entitlement, error) {
	const op = "storage.GetEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, subscription_type, is_subscribed, subscription_start_date,
			      subscription_end_date, trial_end_date, bonus_end_date, updated_at
			  FROM user_subscription_status
			  WHERE user_id = $1`
	row := s.DB.QueryRowContext(ctx, query, userID)

	var e models.Entitlement
	var startDate, endDate, trialEndDate, bonusEndDate sql.NullTime
	if err := row.Scan(&e.UserID, &e.SubscriptionType, &e.IsSubscribed, &startDate,
		&endDate, &trialEndDate, &bonusEndDate, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if startDate.Valid {
		e.SubscriptionStartDate = &startDate.Time
	}
	if endDate.Valid {
		e.SubscriptionEndDate = &endDate.Time
	}
	if trialEndDate.Valid {
		e.TrialEndDate = &trialEndDate.Time
	}
	if bonusEndDate.Valid {
		e.BonusEndDate = &bonusEndDate.Time
	}
	return &e, nil
}

// ApplyBonus применяет результат погашения промокода: переводит пользователя
// на тип basic с новой датой окончания. Запись создаётся при первом
// обращении (upsert по user_id).
func (s *Storage) ApplyBonus(ctx context.Context, userID string, newEndDate, now time.Time) error {
	const op = "storage.ApplyBonus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscription_status (user_id, subscription_type, is_subscribed,
			      subscription_end_date, bonus_end_date, updated_at)
			  VALUES ($1, $2, TRUE, $3, $3, $4)
			  ON CONFLICT (user_id) DO UPDATE
			  SET subscription_type = EXCLUDED.subscription_type,
			      is_subscribed = TRUE,
			      subscription_end_date = EXCLUDED.subscription_end_date,
			      bonus_end_date = EXCLUDED.bonus_end_date,
			      updated_at = EXCLUDED.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, userID, models.TypeBasic, newEndDate, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplyPurchase применяет подтверждённую покупку из сверки чека:
// тип подписки, окно действия и признак активности (upsert по user_id).
func (s *Storage) ApplyPurchase(ctx context.Context, userID, subscriptionType string, startDate, endDate, now time.Time) error {
	const op = "storage.ApplyPurchase"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscription_status (user_id, subscription_type, is_subscribed,
			      subscription_start_date, subscription_end_date, updated_at)
			  VALUES ($1, $2, TRUE, $3, $4, $5)
			  ON CONFLICT (user_id) DO UPDATE
			  SET subscription_type = EXCLUDED.subscription_type,
			      is_subscribed = TRUE,
			      subscription_start_date = EXCLUDED.subscription_start_date,
			      subscription_end_date = EXCLUDED.subscription_end_date,
			      updated_at = EXCLUDED.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, userID, subscriptionType, startDate, endDate, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DemoteToFree переводит подписку пользователя в free, сбрасывая даты окончания.
// Обновляется только строка этого пользователя; возвращается число изменённых строк.
func (s *Storage) DemoteToFree(ctx context.Context, userID string, now time.Time) (int, error) {
	const op = "storage.DemoteToFree"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscription_status
			  SET subscription_type = $1,
			      is_subscribed = FALSE,
			      subscription_end_date = NULL,
			      bonus_end_date = NULL,
			      updated_at = $2
			  WHERE user_id = $3`
	result, err := s.DB.ExecContext(ctx, query, models.TypeFree, now, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpsertFree записывает статус free для пользователя, создавая строку при
// необходимости. Используется сверкой чеков, когда активных транзакций нет.
func (s *Storage) UpsertFree(ctx context.Context, userID string, now time.Time) error {
	const op = "storage.UpsertFree"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscription_status (user_id, subscription_type, is_subscribed,
			      subscription_start_date, subscription_end_date, bonus_end_date, updated_at)
			  VALUES ($1, $2, FALSE, NULL, NULL, NULL, $3)
			  ON CONFLICT (user_id) DO UPDATE
			  SET subscription_type = EXCLUDED.subscription_type,
			      is_subscribed = FALSE,
			      subscription_start_date = NULL,
			      subscription_end_date = NULL,
			      bonus_end_date = NULL,
			      updated_at = EXCLUDED.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, userID, models.TypeFree, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SweepExpiredByType переводит в free все подписки заданного типа с датой
// окончания раньше now и возвращает идентификаторы затронутых пользователей.
func (s *Storage) SweepExpiredByType(ctx context.Context, subscriptionType string, now time.Time) ([]string, error) {
	const op = "storage.SweepExpiredByType"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscription_status
			  SET subscription_type = $1,
			      is_subscribed = FALSE,
			      subscription_end_date = NULL,
			      bonus_end_date = NULL,
			      updated_at = $2
			  WHERE subscription_type = $3
			    AND subscription_end_date IS NOT NULL
			    AND subscription_end_date < $2
			  RETURNING user_id`
	rows, err := s.DB.QueryContext(ctx, query, models.TypeFree, now, subscriptionType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		userIDs = append(userIDs, userID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return userIDs, nil
}

// TransitionTrialToFree переводит пользователя с trial на free.
// Условие по текущему типу защищает от перезаписи других состояний;
// возвращается число изменённых строк.
func (s *Storage) TransitionTrialToFree(ctx context.Context, userID string, now time.Time) (int, error) {
	const op = "storage.TransitionTrialToFree"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscription_status
			  SET subscription_type = $1,
			      updated_at = $2
			  WHERE user_id = $3
			    AND subscription_type = $4`
	result, err := s.DB.ExecContext(ctx, query, models.TypeFree, now, userID, models.TypeTrial)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
