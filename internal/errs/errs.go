// Package errs определяет кодированные ошибки сервиса подписок.
// Каждая ошибка несёт машинный код для JSON-ответа и соответствующий
// HTTP-статус. Бизнес-отказы (неактивный код, уже погашено и т.д.) —
// ожидаемые исходы нормальной работы, они не ретраятся и возвращаются
// вызывающей стороне как есть.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Коды ошибок, попадающие в поле "code" JSON-ответа.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeCodeNotFound    = "code_not_found"
	CodeInactiveCode    = "inactive_code"
	CodeExpiredCode     = "expired_code"
	CodeUsageExhausted  = "usage_exhausted"
	CodeAlreadyRedeemed = "already_redeemed"
	CodeNotEligible     = "not_eligible"

	CodeAppleNoResponse  = "apple_no_response"
	CodeReceiptInvalid   = "verify_failed"
	CodeReceiptAuth      = "receipt_auth_failed"
	CodeBadSharedSecret  = "bad_shared_secret"
	CodeAppleUnavailable = "apple_unavailable"
	CodeAppleInternal    = "apple_internal_error"
	CodeReceiptRevoked   = "receipt_revoked"

	CodeFetchFailed  = "fetch_failed"
	CodeUpdateFailed = "update_failed"
	CodeServerError  = "server_error"
)

// Error — ошибка с кодом и HTTP-статусом. Details опционально несёт
// дополнительные поля для тела ответа (например, текущий тип подписки
// при отказе not_eligible).
type Error struct {
	Code    string
	Status  int
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создает бизнес-ошибку без вложенной причины.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// WithDetails возвращает копию ошибки с заполненным полем Details.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// Fetch оборачивает ошибку чтения из хранилища.
func Fetch(message string, err error) *Error {
	return &Error{Code: CodeFetchFailed, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// Update оборачивает ошибку записи в хранилище.
func Update(message string, err error) *Error {
	return &Error{Code: CodeUpdateFailed, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// From приводит произвольную ошибку к *Error. Любая некодированная ошибка
// превращается в server_error с сохранением исходного сообщения.
func From(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Code: CodeServerError, Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// Предопределённые бизнес-ошибки. Сообщения совпадают с тем, что видит клиент.
var (
	ErrInvalidRequest  = New(CodeInvalidRequest, http.StatusUnprocessableEntity, "Missing code or user_id")
	ErrUnauthorized    = New(CodeUnauthorized, http.StatusUnauthorized, "unauthorized")
	ErrNotFound        = New(CodeNotFound, http.StatusNotFound, "No subscription row for user")
	ErrCodeNotFound    = New(CodeCodeNotFound, http.StatusNotFound, "Invalid code")
	ErrInactiveCode    = New(CodeInactiveCode, http.StatusConflict, "Code inactive")
	ErrExpiredCode     = New(CodeExpiredCode, http.StatusGone, "Code expired")
	ErrUsageExhausted  = New(CodeUsageExhausted, http.StatusConflict, "Code usage exhausted")
	ErrAlreadyRedeemed = New(CodeAlreadyRedeemed, http.StatusConflict, "User already redeemed this category")
	ErrNotEligible     = New(CodeNotEligible, http.StatusConflict, "Transition allowed only for expired basic/basic_monthly/basic_yearly")

	ErrAppleNoResponse  = New(CodeAppleNoResponse, http.StatusBadGateway, "No interpretable response from receipt verification")
	ErrReceiptInvalid   = New(CodeReceiptInvalid, http.StatusBadRequest, "Receipt invalid")
	ErrReceiptAuth      = New(CodeReceiptAuth, http.StatusUnauthorized, "Receipt could not be authenticated")
	ErrBadSharedSecret  = New(CodeBadSharedSecret, http.StatusUnauthorized, "Shared secret mismatch")
	ErrAppleUnavailable = New(CodeAppleUnavailable, http.StatusServiceUnavailable, "Receipt verification temporarily unavailable")
	ErrAppleInternal    = New(CodeAppleInternal, http.StatusBadGateway, "Receipt verification internal error")
	ErrReceiptRevoked   = New(CodeReceiptRevoked, http.StatusGone, "Subscription revoked")
)
