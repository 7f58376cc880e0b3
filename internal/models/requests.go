package models

// DummyRedeemRequest используется для приёма данных из JSON-запроса на погашение промокода.
type DummyRedeemRequest struct {
	Code   string `json:"code" validate:"required"`         // Промокод
	UserID string `json:"user_id" validate:"required,uuid"` // UUID пользователя
}

// DummyExpireRequest используется для приёма данных из JSON-запроса на перевод
// истёкшей подписки в free.
type DummyExpireRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"` // UUID пользователя
}

// DummyVerifyRequest используется для приёма данных из JSON-запроса на сверку
// чека с внешним процессором платежей.
type DummyVerifyRequest struct {
	ReceiptData string `json:"receipt_data" validate:"required"` // Чек в base64
	UserID      string `json:"user_id" validate:"required,uuid"`
}
