package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockRecalculate rebuilds the daily warehouse stock snapshot.
	TaskStockRecalculate = "stock:recalculate"
	// TaskLedgerRollup materialises account balances at a cutover day.
	TaskLedgerRollup = "ledger:rollup"
)

const dayLayout = "2006-01-02"

// StockRecalculatePayload selects the balance date. Empty means today.
type StockRecalculatePayload struct {
	Date string `json:"date"`
}

// LedgerRollupPayload selects the cutover day. Empty means the last day of
// the previous month.
type LedgerRollupPayload struct {
	Cutover string `json:"cutover"`
}

// NewStockRecalculateTask constructs the snapshot task.
func NewStockRecalculateTask(date string) (*asynq.Task, error) {
	body, err := json.Marshal(StockRecalculatePayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockRecalculate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// NewLedgerRollupTask constructs the rollup task.
func NewLedgerRollupTask(cutover string) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerRollupPayload{Cutover: cutover})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRollup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

func parseDay(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dayLayout, value, loc)
}
