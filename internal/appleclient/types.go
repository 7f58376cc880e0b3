package appleclient

// Статусы протокола verifyReceipt.
const (
	// StatusOK — чек проверен, данные валидны.
	StatusOK = 0
	// StatusMalformedReceipt — данные чека не читаются.
	StatusMalformedReceipt = 21002
	// StatusUnauthenticated — чек не удалось аутентифицировать.
	StatusUnauthenticated = 21003
	// StatusBadSharedSecret — общий секрет не совпадает с секретом аккаунта.
	StatusBadSharedSecret = 21004
	// StatusServerUnavailable — сервер проверки временно недоступен.
	StatusServerUnavailable = 21005
	// StatusSandboxReceipt — чек из песочницы отправлен в боевое окружение.
	// Единственный статус, по которому выполняется повтор на sandbox.
	StatusSandboxReceipt = 21007
	// StatusInternalError — внутренняя ошибка сервера проверки.
	StatusInternalError = 21009
	// StatusAccountNotFound — учётная запись не найдена или отозвана.
	StatusAccountNotFound = 21010
)

// VerifyRequest — тело запроса к verifyReceipt.
type VerifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

// VerifyResponse — ответ verifyReceipt. Status указатель: отсутствие поля
// в теле означает нечитаемый ответ процессора, а не бизнес-отказ.
type VerifyResponse struct {
	Status            *int          `json:"status"`
	LatestReceiptInfo []ReceiptInfo `json:"latest_receipt_info"`
	Receipt           *Receipt      `json:"receipt"`
}

// Receipt — вложенный чек с резервным списком покупок.
type Receipt struct {
	InApp []ReceiptInfo `json:"in_app"`
}

// ReceiptInfo — одна транзакция чека. Временные метки приходят строками
// с миллисекундами Unix-времени.
type ReceiptInfo struct {
	ProductID      string `json:"product_id"`
	PurchaseDateMS string `json:"purchase_date_ms"`
	ExpiresDateMS  string `json:"expires_date_ms"`
}

// Transactions возвращает список транзакций: основной latest_receipt_info,
// при его отсутствии — резервный receipt.in_app.
func (r *VerifyResponse) Transactions() []ReceiptInfo {
	if len(r.LatestReceiptInfo) > 0 {
		return r.LatestReceiptInfo
	}
	if r.Receipt != nil {
		return r.Receipt.InApp
	}
	return nil
}
