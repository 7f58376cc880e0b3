// Package models содержит доменные структуры сервиса подписок:
// статус подписки пользователя, промокоды, журнал погашений и историю подписок,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import "time"

// Типы подписки. Хранятся в нижнем регистре, сравнение всегда после нормализации.
const (
	TypeFree         = "free"
	TypeTrial        = "trial"
	TypeBasic        = "basic"
	TypeBasicMonthly = "basic_monthly"
	TypeBasicYearly  = "basic_yearly"
	TypeUnknown      = "unknown"
)

// BasicFamily возвращает платные типы подписки без пробного периода,
// для которых действуют общие правила истечения.
func BasicFamily() []string {
	return []string{TypeBasic, TypeBasicMonthly, TypeBasicYearly}
}

// IsBasicFamily сообщает, относится ли тип подписки к платному семейству basic.
// Тип должен быть заранее нормализован к нижнему регистру.
func IsBasicFamily(subscriptionType string) bool {
	switch subscriptionType {
	case TypeBasic, TypeBasicMonthly, TypeBasicYearly:
		return true
	}
	return false
}

// Entitlement представляет собой текущий статус подписки пользователя —
// единственную авторитетную запись о типе подписки и окне её действия.
// Даты с указателями могут быть nil: отсутствие даты окончания означает,
// что подписка не ограничена по времени.
type Entitlement struct {
	UserID                string     // UUID пользователя, ключ записи
	SubscriptionType      string     // Тип подписки (free, trial, basic, basic_monthly, basic_yearly, unknown)
	IsSubscribed          bool       // Признак активной платной подписки
	SubscriptionStartDate *time.Time // Дата начала подписки
	SubscriptionEndDate   *time.Time // Дата окончания подписки
	TrialEndDate          *time.Time // Дата окончания пробного периода
	BonusEndDate          *time.Time // Дата окончания бонусного периода
	UpdatedAt             time.Time  // Время последнего изменения записи
}
