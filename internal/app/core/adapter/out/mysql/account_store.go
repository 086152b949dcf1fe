package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	OwnerID      string          `gorm:"column:owner_id;size:64;index;not null"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,4);not null"` // 小數位數同 domain.MaxScale
	Version      uint64          `gorm:"not null"`
	LastModified int64           `gorm:"column:last_modified;not null"` // unix nano
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() domain.Account {
	return domain.Account{
		ID:           a.ID,
		OwnerID:      a.OwnerID,
		Balance:      a.Balance,
		Version:      a.Version,
		LastModified: time.Unix(0, a.LastModified),
	}
}

// MySQLAccountStore 以 GORM 實作的帳戶儲存
//
// CompareAndUpdate 是一句帶版本條件的 UPDATE，資料庫保證原子性，不需要額外的鎖。
type MySQLAccountStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMySQLAccountStore 建立 MySQLAccountStore
//
// 參數:
//
//	db: GORM 實例 (正式環境由 pkg/mysql.Client 提供)
func NewMySQLAccountStore(db *gorm.DB) *MySQLAccountStore {
	return &MySQLAccountStore{
		db:  db,
		now: time.Now,
	}
}

// Migrate 建立或更新 accounts 表
func (s *MySQLAccountStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&sqlAccount{})
}

// Create 建立帳戶
func (s *MySQLAccountStore) Create(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(initialBalance); err != nil {
		return domain.Account{}, err
	}
	row := sqlAccount{
		OwnerID:      ownerID,
		Balance:      initialBalance,
		Version:      1,
		LastModified: s.now().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return row.toDomain(), nil
}

// Get 取得帳戶快照
func (s *MySQLAccountStore) Get(ctx context.Context, accountID int64) (domain.Account, error) {
	return s.get(s.db.WithContext(ctx), accountID)
}

// CompareAndUpdate 條件寫入
//
// UPDATE accounts SET balance = ?, version = version + 1, last_modified = max(last_modified, now)
// WHERE id = ? AND version = ?
//
// 影響 0 筆時在同一個交易內重新讀取，區分帳戶不存在與版本衝突。
func (s *MySQLAccountStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(newBalance); err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UnixNano()
		res := tx.Model(&sqlAccount{}).
			Where("id = ? AND version = ?", accountID, expectedVersion).
			Updates(map[string]any{
				"balance":       newBalance,
				"version":       gorm.Expr("version + 1"),
				"last_modified": gorm.Expr("CASE WHEN last_modified > ? THEN last_modified ELSE ? END", now, now),
			})
		if res.Error != nil {
			return res.Error
		}

		current, err := s.get(tx, accountID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

// LoadAllAccounts 載入所有帳戶 (用於初始化記憶體帳本)
func (s *MySQLAccountStore) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	var rows []sqlAccount
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	out := make([]domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *MySQLAccountStore) get(db *gorm.DB, accountID int64) (domain.Account, error) {
	var row sqlAccount
	err := db.Where("id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account %d: %w", accountID, err)
	}
	return row.toDomain(), nil
}

var _ usecase.AccountStore = (*MySQLAccountStore)(nil)
