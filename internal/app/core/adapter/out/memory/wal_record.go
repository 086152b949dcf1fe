package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// walRecord WAL 中的一筆帳戶狀態 (帳戶完整狀態，重放時以版本號較大者為準)
type walRecord struct {
	ID           int64           `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Balance      decimal.Decimal `json:"balance"`
	Version      uint64          `json:"version"`
	LastModified int64           `json:"last_modified"` // unix nano
}

func newWALRecord(a domain.Account) walRecord {
	return walRecord{
		ID:           a.ID,
		OwnerID:      a.OwnerID,
		Balance:      a.Balance,
		Version:      a.Version,
		LastModified: a.LastModified.UnixNano(),
	}
}

func (r walRecord) account() domain.Account {
	return domain.Account{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Balance:      r.Balance,
		Version:      r.Version,
		LastModified: time.Unix(0, r.LastModified),
	}
}

// replayWAL 依序將 WAL 中的帳戶狀態交給 restore
func replayWAL(w *wal.WAL, restore func(domain.Account)) error {
	return w.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return fmt.Errorf("decode wal record: %w", err)
		}
		restore(rec.account())
		return nil
	})
}

// appendWAL 落盤一筆帳戶狀態，w 為 nil 時為純記憶體模式
func appendWAL(w *wal.WAL, a domain.Account) error {
	if w == nil {
		return nil
	}
	if err := w.Append(newWALRecord(a)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
	}
	return nil
}
