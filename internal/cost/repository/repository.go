package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() costdomain.Repository {
	return &repo{}
}

// forUpdate returns the row-lock suffix for dialects that support it.
// SQLite serializes writers on its own and rejects the clause.
func forUpdate(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	switch db.Dialector.Name() {
	case "postgres":
		return " FOR UPDATE"
	default:
		return ""
	}
}

func (r *repo) FindPeriodByWindow(ctx context.Context, db *gorm.DB, start, end time.Time) (*costdomain.BillingPeriod, error) {
	var period costdomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, start_date, end_date, is_current, created_at
		 FROM billing_period WHERE start_date = ? AND end_date = ?`,
		start,
		end,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) FindPeriodByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*costdomain.BillingPeriod, error) {
	var period costdomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, start_date, end_date, is_current, created_at
		 FROM billing_period WHERE id = ?`,
		id,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) FindCurrentPeriod(ctx context.Context, db *gorm.DB) (*costdomain.BillingPeriod, error) {
	var period costdomain.BillingPeriod
	err := db.WithContext(ctx).Raw(
		`SELECT id, start_date, end_date, is_current, created_at
		 FROM billing_period WHERE is_current = ?`,
		true,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) LockCurrentPeriods(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM billing_period WHERE is_current = ?`+forUpdate(db),
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ClearCurrentPeriods(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_period SET is_current = ? WHERE is_current = ?`,
		false,
		true,
	).Error
}

func (r *repo) MarkPeriodCurrent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_period SET is_current = ? WHERE id = ?`,
		true,
		id,
	).Error
}

func (r *repo) InsertPeriod(ctx context.Context, db *gorm.DB, p *costdomain.BillingPeriod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_period (id, start_date, end_date, is_current, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID,
		p.StartDate,
		p.EndDate,
		p.IsCurrent,
		p.CreatedAt,
	).Error
}

func (r *repo) ListPeriods(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]costdomain.BillingPeriod, error) {
	var periods []costdomain.BillingPeriod
	query := `SELECT id, start_date, end_date, is_current, created_at FROM billing_period`
	args := []any{}
	if afterID != 0 {
		query += ` WHERE id < ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) CountCurrentPeriods(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM billing_period WHERE is_current = ?`,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindServiceByName(ctx context.Context, db *gorm.DB, name string) (*costdomain.AzureService, error) {
	var service costdomain.AzureService
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, category, created_at FROM azure_service WHERE name = ?`,
		name,
	).Scan(&service).Error
	if err != nil {
		return nil, err
	}
	if service.ID == 0 {
		return nil, nil
	}
	return &service, nil
}

func (r *repo) InsertService(ctx context.Context, db *gorm.DB, s *costdomain.AzureService) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO azure_service (id, name, category, created_at) VALUES (?, ?, ?, ?)`,
		s.ID,
		s.Name,
		s.Category,
		s.CreatedAt,
	).Error
}

func (r *repo) FindServiceCost(ctx context.Context, db *gorm.DB, serviceID, periodID snowflake.ID) (*costdomain.ServiceCost, error) {
	var cost costdomain.ServiceCost
	err := db.WithContext(ctx).Raw(
		`SELECT id, service_id, billing_period_id, currency_code, cost_amount, fetched_at, created_at, updated_at
		 FROM service_cost WHERE service_id = ? AND billing_period_id = ?`,
		serviceID,
		periodID,
	).Scan(&cost).Error
	if err != nil {
		return nil, err
	}
	if cost.ID == 0 {
		return nil, nil
	}
	return &cost, nil
}

func (r *repo) InsertServiceCost(ctx context.Context, db *gorm.DB, c *costdomain.ServiceCost) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO service_cost (id, service_id, billing_period_id, currency_code, cost_amount, fetched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.ServiceID,
		c.BillingPeriodID,
		c.CurrencyCode,
		c.CostAmount,
		c.FetchedAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) UpdateServiceCost(ctx context.Context, db *gorm.DB, c *costdomain.ServiceCost) error {
	return db.WithContext(ctx).Exec(
		`UPDATE service_cost
		 SET currency_code = ?, cost_amount = ?, fetched_at = ?, updated_at = ?
		 WHERE id = ?`,
		c.CurrencyCode,
		c.CostAmount,
		c.FetchedAt,
		c.UpdatedAt,
		c.ID,
	).Error
}

func (r *repo) ListServiceCosts(ctx context.Context, db *gorm.DB, periodID snowflake.ID) ([]costdomain.ServiceCostView, error) {
	var costs []costdomain.ServiceCostView
	err := db.WithContext(ctx).Raw(
		`SELECT sc.id, sc.service_id, s.name AS service_name, s.category AS service_category,
		        sc.billing_period_id, sc.currency_code, sc.cost_amount, sc.fetched_at, sc.updated_at
		 FROM service_cost sc
		 JOIN azure_service s ON s.id = sc.service_id
		 WHERE sc.billing_period_id = ?
		 ORDER BY sc.cost_amount DESC, s.name ASC`,
		periodID,
	).Scan(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}

func (r *repo) FindDailyCost(ctx context.Context, db *gorm.DB, usageDate time.Time, periodID snowflake.ID) (*costdomain.DailyCost, error) {
	var cost costdomain.DailyCost
	err := db.WithContext(ctx).Raw(
		`SELECT id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at, created_at, updated_at
		 FROM daily_cost WHERE usage_date = ? AND billing_period_id = ?`,
		usageDate,
		periodID,
	).Scan(&cost).Error
	if err != nil {
		return nil, err
	}
	if cost.ID == 0 {
		return nil, nil
	}
	return &cost, nil
}

func (r *repo) InsertDailyCost(ctx context.Context, db *gorm.DB, c *costdomain.DailyCost) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO daily_cost (id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.BillingPeriodID,
		c.UsageDate,
		c.CurrencyCode,
		c.CostAmount,
		c.FetchedAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) UpdateDailyCost(ctx context.Context, db *gorm.DB, c *costdomain.DailyCost) error {
	return db.WithContext(ctx).Exec(
		`UPDATE daily_cost
		 SET currency_code = ?, cost_amount = ?, fetched_at = ?, updated_at = ?
		 WHERE id = ?`,
		c.CurrencyCode,
		c.CostAmount,
		c.FetchedAt,
		c.UpdatedAt,
		c.ID,
	).Error
}

func (r *repo) ListDailyCosts(ctx context.Context, db *gorm.DB, periodID snowflake.ID) ([]costdomain.DailyCost, error) {
	var costs []costdomain.DailyCost
	err := db.WithContext(ctx).Raw(
		`SELECT id, billing_period_id, usage_date, currency_code, cost_amount, fetched_at, created_at, updated_at
		 FROM daily_cost WHERE billing_period_id = ? ORDER BY usage_date ASC`,
		periodID,
	).Scan(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}
