package store

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const priceRowsQuery = `
	SELECT pr.id, pr.unit_amount, pr.currency, pr.active,
	       COALESCE(pr.stripe_price_id, '') AS stripe_price_id,
	       p.id AS "product.id", p.slug AS "product.slug", p.name AS "product.name",
	       p.kind AS "product.kind", p.active AS "product.active"
	FROM prices pr
	JOIN products p ON p.id = pr.product_id
	WHERE pr.id IN (?)`

const addonMappingsQuery = `
	SELECT base_product_id, addon_product_id
	FROM product_addons
	WHERE addon_product_id IN (?) AND base_product_id IN (?)`

// GetPriceRowsByIDs retrieves price rows with their parent product.
// Identifiers with no row are simply absent from the result.
func (s *Store) GetPriceRowsByIDs(ctx context.Context, ids []string) ([]models.PriceRow, error) {
	if len(ids) == 0 {
		return []models.PriceRow{}, nil
	}

	query, args, err := sqlx.In(priceRowsQuery, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []models.PriceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select price rows: %w", err)
	}
	return rows, nil
}

// GetAddonMappings retrieves the (base, addon) pairs restricted to the given
// add-on and base product sets.
func (s *Store) GetAddonMappings(ctx context.Context, addonProductIDs, baseProductIDs []string) ([]models.AddonMapping, error) {
	if len(addonProductIDs) == 0 || len(baseProductIDs) == 0 {
		return []models.AddonMapping{}, nil
	}

	query, args, err := sqlx.In(addonMappingsQuery, addonProductIDs, baseProductIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var mappings []models.AddonMapping
	if err := s.db.SelectContext(ctx, &mappings, query, args...); err != nil {
		return nil, fmt.Errorf("select addon mappings: %w", err)
	}
	return mappings, nil
}
