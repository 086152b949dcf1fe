package domain

import "errors"

var (
	// ErrInvalidArgument 參數錯誤 (金額 <= 0、初始餘額為負、來源與目的相同)
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound 找不到帳戶
	ErrNotFound = errors.New("account not found")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPreconditionFailed 呼叫端看到的狀態已過期，需重新讀取
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrContention 重試次數用盡
	ErrContention = errors.New("contention: retry budget exhausted")

	// ErrInconsistent 轉帳補償失敗，資金處於不一致狀態，必須由人工介入
	ErrInconsistent = errors.New("inconsistent: transfer compensation failed")

	// ErrVersionConflict CompareAndUpdate 版本不符 (只在 store 與 service 之間流動)
	ErrVersionConflict = errors.New("version conflict")
)

// ErrWALWriteFailed 寫入 WAL 失敗，異動未生效
var ErrWALWriteFailed = errors.New("wal write failed")
