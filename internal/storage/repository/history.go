package repository

import (
	"context"
	"fmt"

	"github.com/zappod/entitlement-service/internal/models"
)

// InsertHistory добавляет снимок результата сверки в историю подписок.
// Журнал только пополняется, обратно сервис его не читает.
func (s *Storage) InsertHistory(ctx context.Context, entry models.HistoryEntry) error {
	const op = "storage.InsertHistory"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscription_history (user_id, subscription_type, start_date,
			      end_date, status, payment_method, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.DB.ExecContext(ctx, query,
		entry.UserID, entry.SubscriptionType, entry.StartDate, entry.EndDate,
		entry.Status, entry.PaymentMethod, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
