package azure

import (
	"github.com/smallbiznis/azurecost/internal/billingapi"
	"github.com/smallbiznis/azurecost/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the pooled Azure fetcher used by the ingestion pipeline.
var Module = fx.Module("billingapi.azure",
	fx.Provide(billingapi.ProvidePool),
	fx.Provide(provideFetcher),
)

func provideFetcher(cfg config.Config, pool *billingapi.Pool, log *zap.Logger) (billingapi.Fetcher, error) {
	client, err := New(cfg.Azure, log)
	if err != nil {
		return nil, err
	}
	return billingapi.NewPooledFetcher(client, pool, cfg.Ingest.FetchTimeout), nil
}
