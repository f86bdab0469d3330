package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// MappingSource returns the legal (base, addon) pairs among the given sets.
type MappingSource interface {
	GetAddonMappings(ctx context.Context, addonProductIDs, baseProductIDs []string) ([]models.AddonMapping, error)
}

type AddonReason string

const (
	AddonReasonNone     AddonReason = ""
	AddonReasonNoBase   AddonReason = "no_base"
	AddonReasonUnpaired AddonReason = "unpaired"
)

// AddonResult is the outcome of an add-on pairing check
type AddonResult struct {
	Valid       bool
	Reason      AddonReason
	FailedAddon string
}

// AddonPolicy checks that every requested add-on has an eligible base
type AddonPolicy struct {
	source MappingSource
}

func NewAddonPolicy(source MappingSource) *AddonPolicy {
	return &AddonPolicy{source: source}
}

// Check validates add-on product ids against the base/bundle product ids
// present in the same request. It is all-or-nothing: one unpaired add-on
// invalidates the whole set.
func (p *AddonPolicy) Check(ctx context.Context, baseProductIDs, addonProductIDs []string) (AddonResult, error) {
	addons := uniqueSorted(addonProductIDs)
	if len(addons) == 0 {
		return AddonResult{Valid: true}, nil
	}

	bases := uniqueSorted(baseProductIDs)
	if len(bases) == 0 {
		return AddonResult{Reason: AddonReasonNoBase, FailedAddon: addons[0]}, nil
	}

	mappings, err := p.source.GetAddonMappings(ctx, addons, bases)
	if err != nil {
		return AddonResult{}, fmt.Errorf("fetch addon mappings: %w", err)
	}

	baseSet := make(map[string]struct{}, len(bases))
	for _, id := range bases {
		baseSet[id] = struct{}{}
	}

	paired := make(map[string]struct{}, len(addons))
	for _, m := range mappings {
		if _, ok := baseSet[m.BaseProductID]; ok {
			paired[m.AddonProductID] = struct{}{}
		}
	}

	for _, addon := range addons {
		if _, ok := paired[addon]; !ok {
			return AddonResult{Reason: AddonReasonUnpaired, FailedAddon: addon}, nil
		}
	}
	return AddonResult{Valid: true}, nil
}
