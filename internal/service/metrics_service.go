package service

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/models"
)

// MetricsStore источник строк для расчёта метрик.
type MetricsStore interface {
	MetricsRows(ctx context.Context, posterID uuid.UUID) ([]models.TaskMetricsRow, error)
	CountCompleted(ctx context.Context, userID uuid.UUID) (int, error)
}

var successBandMessages = map[string]string{
	models.SuccessBandNoData:    "Недостаточно данных для оценки",
	models.SuccessBandNotGood:   "Есть над чем поработать: попробуйте выбирать более надёжных исполнителей",
	models.SuccessBandAverage:   "Неплохо: стоит выстраивать отношения с проверенными исполнителями",
	models.SuccessBandGood:      "Хорошо: результаты стабильные",
	models.SuccessBandExcellent: "Отлично: вы освоили делегирование поручений!",
}

// MetricsService считает метрики дашборда заново при каждом запросе.
type MetricsService struct {
	repo MetricsStore
}

func NewMetricsService(repo MetricsStore) *MetricsService {
	return &MetricsService{repo: repo}
}

// Dashboard возвращает сводку по задачам, размещённым пользователем.
func (s *MetricsService) Dashboard(ctx context.Context, userID uuid.UUID) (*models.DashboardMetrics, error) {
	rows, err := s.repo.MetricsRows(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	m := ComputeDashboard(rows)
	return &m, nil
}

// Tier возвращает уровень пользователя по числу выполненных поручений.
func (s *MetricsService) Tier(ctx context.Context, userID uuid.UUID) (*models.UserTier, error) {
	completed, err := s.repo.CountCompleted(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	tier := models.NewUserTier(completed)
	return &tier, nil
}

// ComputeDashboard чистая функция над строками задач заказчика.
func ComputeDashboard(rows []models.TaskMetricsRow) models.DashboardMetrics {
	m := models.DashboardMetrics{
		TasksPosted:          len(rows),
		AverageCostPerErrand: decimal.Zero,
		TotalSpent:           decimal.Zero,
	}

	categories := make(map[string]int)
	runners := make(map[uuid.UUID]int)
	hours := 0.0

	for _, row := range rows {
		categories[row.Category]++
		// исполнитель учитывается по любой задаче, где он назначен
		if row.WorkerID != nil {
			runners[*row.WorkerID]++
		}
		if row.Status != models.TaskStatusCompleted {
			continue
		}
		m.TasksCompleted++
		m.TotalSpent = m.TotalSpent.Add(row.Price())
		hours += hoursSaved(row.Category)
	}

	if m.TasksCompleted > 0 {
		m.AverageCostPerErrand = m.TotalSpent.Div(decimal.NewFromInt(int64(m.TasksCompleted))).Round(2)
	}
	m.TimeSavedHours = hours
	m.SuccessRate = NewSuccessRate(m.TasksCompleted, m.TasksPosted)

	for _, n := range runners {
		if n > 1 {
			m.RepeatedRunners++
		}
	}
	m.MostCommonCategory = mostCommon(categories)
	return m
}

// NewSuccessRate доля завершённых задач, округлённая до десятых, с оценкой.
func NewSuccessRate(completed, posted int) models.SuccessRate {
	if posted == 0 {
		return models.SuccessRate{Band: models.SuccessBandNoData, Message: successBandMessages[models.SuccessBandNoData]}
	}
	percent := math.Round(float64(completed)/float64(posted)*1000) / 10
	band := successBand(percent)
	return models.SuccessRate{Percent: percent, Band: band, Message: successBandMessages[band]}
}

func successBand(percent float64) string {
	switch {
	case percent <= 40:
		return models.SuccessBandNotGood
	case percent <= 60:
		return models.SuccessBandAverage
	case percent <= 80:
		return models.SuccessBandGood
	default:
		return models.SuccessBandExcellent
	}
}

func hoursSaved(category string) float64 {
	if h, ok := models.CategoryHoursSaved[category]; ok {
		return h
	}
	return models.DefaultHoursSaved
}

// mostCommon при равенстве выбирает категорию, первую по алфавиту.
func mostCommon(counts map[string]int) *string {
	if len(counts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return &best
}
