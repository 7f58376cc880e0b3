// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Все ответы сервиса — плоский
// объект с полем success; отказы дополнительно несут машинный код и сообщение.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/zappod/entitlement-service/internal/errs"
)

// Envelope — структура JSON-ответа сервера. Поля результата операции
// (bonus_days, subscription_end_date и т.д.) лежат на верхнем уровне
// рядом с success.
type Envelope map[string]any

// ErrorResponse — структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Code    string `json:"code" example:"code_not_found"`
	Message string `json:"message" example:"Invalid code"`
}

// OK возвращает успешный ответ с переданными полями результата.
func OK(fields map[string]any) Envelope {
	env := Envelope{"success": true}
	for k, v := range fields {
		env[k] = v
	}
	return env
}

// Error возвращает ответ-отказ с кодом и сообщением.
func Error(code, message string) Envelope {
	return Envelope{
		"success": false,
		"code":    code,
		"message": message,
	}
}

// FromError формирует HTTP-статус и тело ответа из ошибки сервиса.
// Кодированные ошибки отдаются со своим кодом и статусом; любая прочая
// ошибка превращается в server_error 500 с исходным сообщением в теле.
func FromError(err error) (int, Envelope) {
	coded := errs.From(err)
	env := Error(coded.Code, coded.Message)
	if coded.Details != nil {
		env["details"] = coded.Details
	}
	return statusOrDefault(coded.Status), env
}

func statusOrDefault(status int) int {
	if status == 0 {
		return http.StatusInternalServerError
	}
	return status
}

// ValidationError формирует ответ invalid_request на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(verrs validator.ValidationErrors) Envelope {
	var errsMsgs []string

	for _, err := range verrs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "uuid":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		case "base64":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only base64", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Error(errs.CodeInvalidRequest, strings.Join(errsMsgs, ", "))
}
