package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
)

const monthLayout = "2006-01"

// ReportService builds dashboard reports.
type ReportService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db, now: time.Now}
}

// RevenueBucket is completed-payment revenue for one month.
type RevenueBucket struct {
	Month    string          `json:"month"`
	Total    decimal.Decimal `json:"total"`
	Payments int64           `json:"payments"`
}

// RevenueReport covers the trailing months, oldest first.
type RevenueReport struct {
	Months []RevenueBucket `json:"months"`
	Total  decimal.Decimal `json:"total"`
	ByPlan []PlanRevenue   `json:"by_plan"`
}

// PlanRevenue is revenue from customers currently on one plan.
type PlanRevenue struct {
	PlanName string          `json:"plan_name"`
	Total    decimal.Decimal `json:"total"`
}

// Revenue sums completed payments per month over the last n months,
// including the current one.
func (s *ReportService) Revenue(ctx context.Context, months int) (*RevenueReport, error) {
	months = clampMonths(months)
	start, keys := monthWindow(s.now(), months)

	var payments []struct {
		Amount      decimal.Decimal
		PaymentDate time.Time
		PlanName    string
	}
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("payments.amount AS amount, payments.payment_date AS payment_date, COALESCE(plans.name, '') AS plan_name").
		Joins("LEFT JOIN customers ON customers.id = payments.customer_id").
		Joins("LEFT JOIN plans ON plans.id = customers.plan_id").
		Where("payments.status = ? AND payments.payment_date >= ?", models.PaymentStatusCompleted, start).
		Scan(&payments).Error; err != nil {
		return nil, err
	}

	buckets := make(map[string]*RevenueBucket, len(keys))
	report := &RevenueReport{Total: decimal.Zero}
	for _, key := range keys {
		bucket := &RevenueBucket{Month: key, Total: decimal.Zero}
		buckets[key] = bucket
	}

	byPlan := map[string]decimal.Decimal{}
	var planOrder []string
	for _, p := range payments {
		bucket, ok := buckets[p.PaymentDate.UTC().Format(monthLayout)]
		if !ok {
			continue
		}
		bucket.Total = bucket.Total.Add(p.Amount)
		bucket.Payments++
		report.Total = report.Total.Add(p.Amount)

		name := p.PlanName
		if name == "" {
			name = "No plan"
		}
		if _, seen := byPlan[name]; !seen {
			planOrder = append(planOrder, name)
		}
		byPlan[name] = byPlan[name].Add(p.Amount)
	}

	for _, key := range keys {
		report.Months = append(report.Months, *buckets[key])
	}
	for _, name := range planOrder {
		report.ByPlan = append(report.ByPlan, PlanRevenue{PlanName: name, Total: byPlan[name]})
	}
	return report, nil
}

// MonthCount is a count for one month.
type MonthCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// CustomerReport breaks the subscriber base down.
type CustomerReport struct {
	ByStatus    map[string]int64 `json:"by_status"`
	ByPlan      []PlanCount      `json:"by_plan"`
	NewPerMonth []MonthCount     `json:"new_per_month"`
	WithOverdue int64            `json:"with_overdue_bills"`
}

// Customers reports status and plan breakdowns plus monthly sign-ups.
func (s *ReportService) Customers(ctx context.Context, months int) (*CustomerReport, error) {
	months = clampMonths(months)
	now := s.now()
	start, keys := monthWindow(now, months)
	db := s.db.WithContext(ctx)

	report := &CustomerReport{ByStatus: map[string]int64{}}

	var counts []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Customer{}).Select("status, count(*) as count").Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		report.ByStatus[c.Status] = c.Count
	}

	byPlan, err := countByPlan(db)
	if err != nil {
		return nil, err
	}
	report.ByPlan = byPlan

	var joins []time.Time
	if err := db.Model(&models.Customer{}).
		Where("join_date >= ? AND status <> ?", start, models.CustomerStatusDeleted).
		Pluck("join_date", &joins).Error; err != nil {
		return nil, err
	}
	perMonth := map[string]int64{}
	for _, j := range joins {
		perMonth[j.UTC().Format(monthLayout)]++
	}
	for _, key := range keys {
		report.NewPerMonth = append(report.NewPerMonth, MonthCount{Month: key, Count: perMonth[key]})
	}

	if err := db.Model(&models.Bill{}).
		Where("status = ? AND due_date < ?", models.BillStatusPending, models.StartOfDay(now)).
		Distinct("customer_id").
		Count(&report.WithOverdue).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// MethodSummary aggregates payments of one method.
type MethodSummary struct {
	Count     int64           `json:"count"`
	Completed int64           `json:"completed"`
	Failed    int64           `json:"failed"`
	Pending   int64           `json:"pending"`
	Total     decimal.Decimal `json:"completed_amount"`
}

// PaymentReport breaks payments down by method and status.
type PaymentReport struct {
	ByMethod    map[string]*MethodSummary `json:"by_method"`
	ByStatus    map[string]int64          `json:"by_status"`
	SuccessRate float64                   `json:"success_rate"`
}

// Payments reports counts and completed totals per method and status.
func (s *ReportService) Payments(ctx context.Context) (*PaymentReport, error) {
	var rows []struct {
		PaymentMethod string
		Status        string
		Count         int64
		Total         decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("payment_method, status, count(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("payment_method, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	report := &PaymentReport{
		ByMethod: map[string]*MethodSummary{},
		ByStatus: map[string]int64{},
	}
	for _, row := range rows {
		summary, ok := report.ByMethod[row.PaymentMethod]
		if !ok {
			summary = &MethodSummary{Total: decimal.Zero}
			report.ByMethod[row.PaymentMethod] = summary
		}
		summary.Count += row.Count
		switch row.Status {
		case models.PaymentStatusCompleted:
			summary.Completed += row.Count
			summary.Total = summary.Total.Add(row.Total)
		case models.PaymentStatusFailed:
			summary.Failed += row.Count
		case models.PaymentStatusPending:
			summary.Pending += row.Count
		}
		report.ByStatus[row.Status] += row.Count
	}

	settled := report.ByStatus[models.PaymentStatusCompleted] + report.ByStatus[models.PaymentStatusFailed]
	if settled > 0 {
		report.SuccessRate = float64(report.ByStatus[models.PaymentStatusCompleted]) / float64(settled)
	}
	return report, nil
}

func clampMonths(months int) int {
	switch {
	case months <= 0:
		return 6
	case months > 24:
		return 24
	}
	return months
}

// monthWindow returns the first instant of the oldest month in a window of
// n months ending with now's month, and the window's month keys in order.
func monthWindow(now time.Time, n int) (time.Time, []string) {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := current.AddDate(0, -(n - 1), 0)

	keys := make([]string, 0, n)
	for m := start; !m.After(current); m = m.AddDate(0, 1, 0) {
		keys = append(keys, m.Format(monthLayout))
	}
	return start, keys
}
