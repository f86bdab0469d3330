package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PriceSource is the authoritative price store.
type PriceSource interface {
	GetPriceRowsByIDs(ctx context.Context, ids []string) ([]models.PriceRow, error)
}

// PriceCache is a short-lived copy of price rows used for display only.
type PriceCache interface {
	GetCachedPriceRows(ctx context.Context, ids []string) (map[string]models.PriceRow, []string, error)
	CachePriceRows(ctx context.Context, rows []models.PriceRow, ttl time.Duration) error
}

// CatalogLookup resolves price row ids to their current rows.
type CatalogLookup struct {
	source PriceSource
	cache  PriceCache
	ttl    time.Duration
	sfg    singleflight.Group
	logger *zap.Logger
}

// NewCatalogLookup creates a lookup. cache may be nil, in which case
// LookupCached behaves like Lookup.
func NewCatalogLookup(source PriceSource, cache PriceCache, ttl time.Duration) *CatalogLookup {
	return &CatalogLookup{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Lookup fetches rows straight from the source. Ids without a row are
// absent from the result; that is not an error.
func (c *CatalogLookup) Lookup(ctx context.Context, ids []string) (map[string]models.PriceRow, error) {
	ctx, span := util.StartSpan(ctx, "CatalogLookup.Lookup")
	defer span.End()

	ids = uniqueSorted(ids)
	result := make(map[string]models.PriceRow, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	start := time.Now()
	rows, err := c.source.GetPriceRowsByIDs(ctx, ids)
	util.CatalogLookupLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("lookup price rows: %w", err)
	}

	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

// LookupCached serves rows from the cache where possible and fetches the
// rest. Cache failures fall back to the source. Concurrent lookups of the
// same missing ids share one fetch. Never use this for checkout.
func (c *CatalogLookup) LookupCached(ctx context.Context, ids []string) (map[string]models.PriceRow, error) {
	if c.cache == nil {
		return c.Lookup(ctx, ids)
	}

	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return map[string]models.PriceRow{}, nil
	}

	hits, misses, err := c.cache.GetCachedPriceRows(ctx, ids)
	if err != nil {
		c.logger.Warn("Catalog cache read failed", zap.Error(err))
		util.CatalogCacheResults.WithLabelValues("error").Inc()
		hits, misses = map[string]models.PriceRow{}, ids
	}
	util.CatalogCacheResults.WithLabelValues("hit").Add(float64(len(hits)))
	util.CatalogCacheResults.WithLabelValues("miss").Add(float64(len(misses)))

	result := make(map[string]models.PriceRow, len(ids))
	for id, row := range hits {
		result[id] = row
	}
	if len(misses) == 0 {
		return result, nil
	}

	v, err, _ := c.sfg.Do(strings.Join(misses, ","), func() (interface{}, error) {
		fetched, err := c.Lookup(ctx, misses)
		if err != nil {
			return nil, err
		}

		rows := make([]models.PriceRow, 0, len(fetched))
		for _, row := range fetched {
			rows = append(rows, row)
		}
		if err := c.cache.CachePriceRows(ctx, rows, c.ttl); err != nil {
			c.logger.Warn("Catalog cache write failed", zap.Error(err))
		}
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	for id, row := range v.(map[string]models.PriceRow) {
		result[id] = row
	}
	return result, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
