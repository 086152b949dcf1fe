package metrics

import "time"

// Collector 帳務指標收集介面
// 實作可以輸出到 Prometheus 或其他後端
type Collector interface {
	// RecordOperation 記錄單一操作 (deposit / withdraw / ...) 的結果與耗時
	RecordOperation(op string, outcome string, duration time.Duration)
	// RecordVersionConflict 記錄一次 CompareAndUpdate 版本衝突 (會觸發重試)
	RecordVersionConflict(op string)
	// RecordTransfer 記錄轉帳的終止狀態
	RecordTransfer(state string, duration time.Duration)
	// RecordInconsistent 記錄一次補償失敗
	RecordInconsistent()
}

// NoOpCollector 不做任何事，未設定 metrics 時的預設值
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(op string, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordVersionConflict(op string) {}

func (NoOpCollector) RecordTransfer(state string, duration time.Duration) {}

func (NoOpCollector) RecordInconsistent() {}

var _ Collector = NoOpCollector{}
