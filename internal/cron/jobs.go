package cron

import (
	"context"
	"fmt"

	"github.com/praktis/pricecompare/pkg/backend"
	"github.com/praktis/pricecompare/pkg/logger"
)

const defaultAssetsSyncLimit = 500

// Triggerer is the slice of the backend client the scheduled jobs call.
type Triggerer interface {
	TriggerScrapeAll(ctx context.Context) (backend.JobResult, error)
	SyncAssets(ctx context.Context, req backend.AssetsSyncRequest) (*backend.AssetsSyncResult, error)
}

// NewScrapeAllJob builds the job that refreshes competitor snapshots for
// every matched product.
func NewScrapeAllJob(logg *logger.Logger, client Triggerer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("backend client required")
	}
	return &scrapeAllJob{logg: logg, client: client}, nil
}

type scrapeAllJob struct {
	logg   *logger.Logger
	client Triggerer
}

func (j *scrapeAllJob) Name() string { return "scrape_all" }

func (j *scrapeAllJob) Run(ctx context.Context) error {
	result, err := j.client.TriggerScrapeAll(ctx)
	if err != nil {
		return fmt.Errorf("scrape all: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any(result)), "scrape all triggered")
	return nil
}

// NewAssetsSyncJob builds the job that refreshes merchant product URLs and images.
func NewAssetsSyncJob(logg *logger.Logger, client Triggerer, limit int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("backend client required")
	}
	if limit <= 0 {
		limit = defaultAssetsSyncLimit
	}
	return &assetsSyncJob{logg: logg, client: client, limit: limit}, nil
}

type assetsSyncJob struct {
	logg   *logger.Logger
	client Triggerer
	limit  int
}

func (j *assetsSyncJob) Name() string { return "assets_sync" }

func (j *assetsSyncJob) Run(ctx context.Context) error {
	result, err := j.client.SyncAssets(ctx, backend.AssetsSyncRequest{Limit: j.limit})
	if err != nil {
		return fmt.Errorf("assets sync: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"limit":   j.limit,
		"checked": result.Checked,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"errors":  result.Errors,
	})
	j.logg.Info(logCtx, "assets sync complete")
	return nil
}
