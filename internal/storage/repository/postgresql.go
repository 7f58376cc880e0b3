// Package repository реализует хранилище данных на основе PostgreSQL
// для управления статусами подписок, промокодами, журналом погашений
// и историей подписок. Предоставляет точечные выборки, upsert по ключу
// пользователя и пакетные обновления с фильтрами.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrUniqueViolation возвращается при нарушении ограничения уникальности.
// Для журнала погашений это штатный исход гонки двух параллельных погашений.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с подписками, промокодами и журналами.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'user_subscription_status'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table user_subscription_status missing or query error: %w", err)
	}
	return nil
}
