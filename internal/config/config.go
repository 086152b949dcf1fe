package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

const (
	// DefaultPath 預設設定檔位置
	DefaultPath = "config/config.yaml"
	// PathEnv 覆寫設定檔位置的環境變數
	PathEnv = "LEDGER_CONFIG"
)

// 帳戶儲存的實作
const (
	StoreMemory = "memory" // 記憶體 (每個帳戶一把鎖) + WAL
	StoreLMAX   = "lmax"   // 記憶體 (單一寫入者事件迴圈) + WAL
	StoreMySQL  = "mysql"  // 直接以 MySQL 的條件 UPDATE 實作
)

type Config struct {
	Server ServerConfig  `yaml:"server"`
	Store  StoreConfig   `yaml:"store"`
	MySQL  mysql.Config  `yaml:"mysql"`
	Ledger LedgerConfig  `yaml:"ledger"`
	Log    logger.Config `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr"`
	HTTPAddr        string        `yaml:"http_addr"` // 空字串表示不啟動 HTTP
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver  string `yaml:"driver"`   // memory / lmax / mysql
	WALPath string `yaml:"wal_path"` // memory / lmax 專用，空字串表示不落盤
	// SeedFromMySQL memory / lmax 啟動時先從 MySQL 載入帳戶，再重放 WAL
	SeedFromMySQL bool `yaml:"seed_from_mysql"`
}

type LedgerConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`    // 存提款遇到版本衝突的最大嘗試次數
	RefundAttempts int `yaml:"refund_attempts"` // 轉帳補償 (退款) 的最大嘗試次數
}

// Default 回傳預設配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:  StoreMemory,
			WALPath: "wal.log",
		},
		Ledger: LedgerConfig{
			MaxAttempts:    usecase.DefaultMaxAttempts,
			RefundAttempts: usecase.DefaultRefundAttempts,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load 讀取設定檔並補上預設值
//
// path 為空時依序使用 LEDGER_CONFIG 與 DefaultPath；
// 只有預設路徑允許檔案不存在 (直接使用預設配置)。
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(PathEnv); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return cfg, nil
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Store.Driver == StoreMySQL || cfg.Store.SeedFromMySQL {
		cfg.MySQL.ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 檢查配置是否可用
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreLMAX, StoreMySQL:
	default:
		return fmt.Errorf("store.driver %q: want %q, %q or %q", c.Store.Driver, StoreMemory, StoreLMAX, StoreMySQL)
	}
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr is required")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("ledger.max_attempts must be >= 1, got %d", c.Ledger.MaxAttempts)
	}
	if c.Ledger.RefundAttempts < c.Ledger.MaxAttempts {
		return fmt.Errorf("ledger.refund_attempts must be >= max_attempts, got %d", c.Ledger.RefundAttempts)
	}
	if (c.Store.Driver == StoreMySQL || c.Store.SeedFromMySQL) && c.MySQL.Host == "" {
		return errors.New("mysql.host is required")
	}
	return nil
}
