package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/azurecost/internal/clock"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/pkg/db"
	"github.com/smallbiznis/azurecost/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxPeriodAttempts = 3

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  costdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  costdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) costdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("cost.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: c,
	}
}

func (s *Service) GetOrCreatePeriod(ctx context.Context, start, end time.Time) (*costdomain.BillingPeriod, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, costdomain.ErrInvalidWindow
	}

	existing, err := s.repo.FindPeriodByWindow(ctx, s.db, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: find billing period: %w", costdomain.ErrPersistence, err)
	}
	if existing != nil && existing.IsCurrent {
		return existing, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxPeriodAttempts; attempt++ {
		period, err := s.reconcilePeriod(ctx, start, end)
		if err == nil {
			return period, nil
		}
		lastErr = err
		if ctx.Err() != nil || !(db.IsDuplicateKeyErr(err) || db.IsSerializationErr(err)) {
			break
		}
		s.log.Warn("billing period reconcile conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
	}

	return nil, fmt.Errorf("%w: resolve billing period: %w", costdomain.ErrPersistence, lastErr)
}

// reconcilePeriod clears the current flag and sets it on the requested
// window inside one transaction. The current rows are locked first so
// concurrent callers serialize on them.
func (s *Service) reconcilePeriod(ctx context.Context, start, end time.Time) (*costdomain.BillingPeriod, error) {
	var period *costdomain.BillingPeriod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.LockCurrentPeriods(ctx, tx); err != nil {
			return err
		}

		found, err := s.repo.FindPeriodByWindow(ctx, tx, start, end)
		if err != nil {
			return err
		}
		if found != nil && found.IsCurrent {
			period = found
			return nil
		}

		if err := s.repo.ClearCurrentPeriods(ctx, tx); err != nil {
			return err
		}

		if found != nil {
			if err := s.repo.MarkPeriodCurrent(ctx, tx, found.ID); err != nil {
				return err
			}
			found.IsCurrent = true
			period = found
			return nil
		}

		created := &costdomain.BillingPeriod{
			ID:        s.genID.Generate(),
			StartDate: start,
			EndDate:   end,
			IsCurrent: true,
			CreatedAt: s.clock.Now(),
		}
		if err := s.repo.InsertPeriod(ctx, tx, created); err != nil {
			return err
		}
		period = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("billing period resolved",
		zap.String("billing_period_id", period.ID.String()),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return period, nil
}

// getOrCreateService runs inside the caller's transaction. A racing insert
// of the same name is rolled back to a savepoint and re-read.
func (s *Service) getOrCreateService(ctx context.Context, tx *gorm.DB, name string, category *string) (*costdomain.AzureService, error) {
	existing, err := s.repo.FindServiceByName(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	svc := &costdomain.AzureService{
		ID:        s.genID.Generate(),
		Name:      name,
		Category:  category,
		CreatedAt: s.clock.Now(),
	}
	savepoint := "svc_" + svc.ID.String()
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return nil, err
	}
	err = s.repo.InsertService(ctx, tx, svc)
	if err == nil {
		return svc, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	if err := tx.RollbackTo(savepoint).Error; err != nil {
		return nil, err
	}
	existing, err = s.repo.FindServiceByName(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("service %q vanished after duplicate insert", name)
	}
	return existing, nil
}

func (s *Service) SaveServiceCosts(ctx context.Context, periodID snowflake.ID, records []costdomain.ServiceCostRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			rec := records[i]
			svc, err := s.getOrCreateService(ctx, tx, rec.ServiceName, rec.ServiceCategory)
			if err != nil {
				return err
			}
			if err := s.upsertServiceCost(ctx, tx, svc.ID, periodID, rec); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to save service costs",
			zap.String("billing_period_id", periodID.String()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("%w: save service costs: %w", costdomain.ErrPersistence, err)
	}

	s.log.Info("service costs saved",
		zap.String("billing_period_id", periodID.String()),
		zap.Int("saved_count", saved),
	)
	return saved, nil
}

func (s *Service) upsertServiceCost(ctx context.Context, tx *gorm.DB, serviceID, periodID snowflake.ID, rec costdomain.ServiceCostRecord) error {
	now := s.clock.Now()
	existing, err := s.repo.FindServiceCost(ctx, tx, serviceID, periodID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.CostAmount = rec.Cost
		existing.CurrencyCode = rec.Currency
		existing.FetchedAt = rec.FetchedAt
		existing.UpdatedAt = now
		return s.repo.UpdateServiceCost(ctx, tx, existing)
	}

	return s.repo.InsertServiceCost(ctx, tx, &costdomain.ServiceCost{
		ID:              s.genID.Generate(),
		ServiceID:       serviceID,
		BillingPeriodID: periodID,
		CurrencyCode:    rec.Currency,
		CostAmount:      rec.Cost,
		FetchedAt:       rec.FetchedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (s *Service) SaveDailyCosts(ctx context.Context, periodID snowflake.ID, records []costdomain.DailyCostRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := s.upsertDailyCost(ctx, tx, periodID, records[i]); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to save daily costs",
			zap.String("billing_period_id", periodID.String()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("%w: save daily costs: %w", costdomain.ErrPersistence, err)
	}

	s.log.Info("daily costs saved",
		zap.String("billing_period_id", periodID.String()),
		zap.Int("saved_count", saved),
	)
	return saved, nil
}

func (s *Service) upsertDailyCost(ctx context.Context, tx *gorm.DB, periodID snowflake.ID, rec costdomain.DailyCostRecord) error {
	now := s.clock.Now()
	existing, err := s.repo.FindDailyCost(ctx, tx, rec.UsageDate, periodID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.CostAmount = rec.Cost
		existing.CurrencyCode = rec.Currency
		existing.FetchedAt = rec.FetchedAt
		existing.UpdatedAt = now
		return s.repo.UpdateDailyCost(ctx, tx, existing)
	}

	return s.repo.InsertDailyCost(ctx, tx, &costdomain.DailyCost{
		ID:              s.genID.Generate(),
		BillingPeriodID: periodID,
		UsageDate:       rec.UsageDate,
		CurrencyCode:    rec.Currency,
		CostAmount:      rec.Cost,
		FetchedAt:       rec.FetchedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (s *Service) ListPeriods(ctx context.Context, req costdomain.ListPeriodsRequest) (costdomain.ListPeriodsResponse, error) {
	page := pagination.Pagination{PageToken: strings.TrimSpace(req.PageToken), PageSize: req.PageSize}
	limit := page.Limit()

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return costdomain.ListPeriodsResponse{}, costdomain.ErrInvalidPageToken
		}
		afterID, err = costdomain.ParseID(cursor.ID)
		if err != nil {
			return costdomain.ListPeriodsResponse{}, costdomain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.ListPeriods(ctx, s.db, afterID, limit+1)
	if err != nil {
		return costdomain.ListPeriodsResponse{}, err
	}

	items, info, err := pagination.Page(items, limit, func(p costdomain.BillingPeriod) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String()}
	})
	if err != nil {
		return costdomain.ListPeriodsResponse{}, err
	}

	return costdomain.ListPeriodsResponse{
		Periods:       items,
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}

func (s *Service) GetCurrentPeriod(ctx context.Context) (*costdomain.BillingPeriod, error) {
	period, err := s.repo.FindCurrentPeriod(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, costdomain.ErrPeriodNotFound
	}
	return period, nil
}

func (s *Service) ListServiceCosts(ctx context.Context, periodID string) ([]costdomain.ServiceCostView, error) {
	period, err := s.findPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListServiceCosts(ctx, s.db, period.ID)
}

func (s *Service) ListDailyCosts(ctx context.Context, periodID string) ([]costdomain.DailyCost, error) {
	period, err := s.findPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDailyCosts(ctx, s.db, period.ID)
}

func (s *Service) findPeriod(ctx context.Context, value string) (*costdomain.BillingPeriod, error) {
	id, err := costdomain.ParseID(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return nil, costdomain.ErrInvalidPeriodID
	}
	period, err := s.repo.FindPeriodByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, costdomain.ErrPeriodNotFound
	}
	return period, nil
}
