package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryHoursSaved сколько часов экономит заказчику поручение каждой категории.
var CategoryHoursSaved = map[string]float64{
	CategorySupermarketRuns: 2.5,
	CategoryPickupDelivery:  1.5,
	CategoryLocalMicro:      1.0,
	CategoryCareTasks:       3.0,
	CategoryVerifyIt:        2.0,
}

// DefaultHoursSaved вес для категорий вне таблицы.
const DefaultHoursSaved = 1.5

// Границы уровней исполнителя/заказчика
const (
	TierOne          = 1
	TierTwo          = 2
	TierTwoThreshold = 3
)

// Оценки доли успешных задач
const (
	SuccessBandNoData    = "no_data"
	SuccessBandNotGood   = "not_good"
	SuccessBandAverage   = "average"
	SuccessBandGood      = "good"
	SuccessBandExcellent = "excellent"
)

// TaskMetricsRow строка выборки для расчёта метрик заказчика.
type TaskMetricsRow struct {
	ID           uuid.UUID           `db:"id"`
	Category     string              `db:"category"`
	Status       string              `db:"status"`
	PriceMax     decimal.Decimal     `db:"price_max"`
	AgreedAmount decimal.NullDecimal `db:"agreed_amount"`
	WorkerID     *uuid.UUID          `db:"worker_id"`
}

// Price фактическая цена задачи: сумма escrow, иначе верхняя граница.
func (r TaskMetricsRow) Price() decimal.Decimal {
	if r.AgreedAmount.Valid {
		return r.AgreedAmount.Decimal
	}
	return r.PriceMax
}

// SuccessRate доля завершённых задач с качественной оценкой.
type SuccessRate struct {
	Percent float64 `json:"percent"`
	Band    string  `json:"band"`
	Message string  `json:"message"`
}

// DashboardMetrics сводка по задачам заказчика.
type DashboardMetrics struct {
	TasksPosted          int             `json:"tasks_posted"`
	TasksCompleted       int             `json:"tasks_completed"`
	SuccessRate          SuccessRate     `json:"success_rate"`
	AverageCostPerErrand decimal.Decimal `json:"average_cost_per_errand"`
	TotalSpent           decimal.Decimal `json:"total_spent"`
	TimeSavedHours       float64         `json:"time_saved_hours"`
	RepeatedRunners      int             `json:"repeated_runners"`
	MostCommonCategory   *string         `json:"most_common_category,omitempty"`
}

// UserTier уровень пользователя по числу выполненных поручений.
type UserTier struct {
	Tier                   int `json:"tier"`
	ErrandsCompleted       int `json:"errands_completed"`
	ErrandsLeftForNextTier int `json:"errands_left_for_next_tier"`
}

// NewUserTier вычисляет уровень: второй уровень после трёх выполненных поручений.
func NewUserTier(completed int) UserTier {
	tier := TierOne
	if completed >= TierTwoThreshold {
		tier = TierTwo
	}
	left := TierTwoThreshold - completed
	if left < 0 {
		left = 0
	}
	return UserTier{Tier: tier, ErrandsCompleted: completed, ErrandsLeftForNextTier: left}
}
