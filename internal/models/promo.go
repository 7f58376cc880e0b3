package models

import "time"

// CategoryTest — служебная категория промокодов, для которой не действует
// ограничение "одно погашение на категорию".
const CategoryTest = "test"

// PromoCode описывает промокод. MaxUsage == nil означает неограниченное число
// использований. CurrentUsage только растёт, изменяется исключительно
// движком погашения.
type PromoCode struct {
	Code         string     // Уникальный код
	Category     string     // Категория кода
	IsActive     bool       // Активен ли код
	ExpiresAt    *time.Time // Срок действия кода, nil — бессрочный
	MaxUsage     *int       // Максимальное число использований, nil — без лимита
	CurrentUsage int        // Текущее число использований
	BonusDays    int        // Количество бонусных дней (>= 0)
}

// Redemption — запись журнала погашений, по одной строке на успешное погашение.
// Уникальность пары (UserID, Category) в хранилище является источником истины
// для проверки "уже погашено".
type Redemption struct {
	UserID    string
	PromoCode string
	Category  string
	CreatedAt time.Time
}
