// Package extend реализует правило продления подписки: вычисление новой даты
// окончания из текущего состояния подписки и количества бонусных дней.
// Функция чистая и детерминированная: момент "сейчас" передаётся явно,
// скрытых обращений к системным часам нет.
package extend

import (
	"strings"
	"time"

	"github.com/zappod/entitlement-service/internal/models"
)

// NewEndDate возвращает новую дату окончания подписки.
//
// Базовая дата выбирается по текущему состоянию:
//   - trial с известной датой окончания пробного периода — от неё;
//   - семейство basic — от текущей даты окончания, если она задана, иначе от now;
//   - free, unknown или отсутствие записи — от now.
//
// К базовой дате прибавляется bonusDays целых календарных дней в UTC,
// поэтому результат не зависит от времени суток вызова. Отрицательный
// bonusDays трактуется как ноль.
func NewEndDate(subscriptionType string, trialEnd, subscriptionEnd *time.Time, bonusDays int, now time.Time) time.Time {
	base := now
	switch strings.ToLower(subscriptionType) {
	case models.TypeTrial:
		if trialEnd != nil {
			base = *trialEnd
		}
	case models.TypeBasic, models.TypeBasicMonthly, models.TypeBasicYearly:
		if subscriptionEnd != nil {
			base = *subscriptionEnd
		}
	}

	if bonusDays < 0 {
		bonusDays = 0
	}
	return base.UTC().AddDate(0, 0, bonusDays)
}
