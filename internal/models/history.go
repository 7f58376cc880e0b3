package models

import "time"

// HistoryEntry — строка истории подписок. Журнал только пополняется:
// сервис пишет снимок результата сверки и никогда не читает его обратно.
type HistoryEntry struct {
	UserID           string
	SubscriptionType string
	StartDate        *time.Time
	EndDate          *time.Time
	Status           string
	PaymentMethod    string
	CreatedAt        time.Time
}
