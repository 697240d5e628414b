// Package pricing computes per-image generation cost for image backends.
//
// Every backend model carries its own rate shape: a flat per-image price by
// resolution tier (Gemini), or a base price plus an increment per extra
// megapixel (BFL Flux). Unknown models are priced at a flagged fallback rate
// so spend totals stay plausible while the gap is visible in the ledger.
package pricing

import (
	"math"
	"sort"

	"github.com/tommybebe/novel-to-toon/pkg/models"
)

// FallbackUSD is the per-image estimate applied when a model is missing from
// the table.
const FallbackUSD = 0.05

// Rate defines how one backend model is billed.
type Rate struct {
	// PerImage maps a resolution tier to a flat per-image price.
	PerImage map[models.ResolutionTier]float64 `yaml:"per_image,omitempty"`
	// Default applies when the requested tier has no entry.
	Default float64 `yaml:"default,omitempty"`
	// BaseMegapixels is the output size covered by the unit price. Each
	// started megapixel beyond it adds PerExtraMegapixel.
	BaseMegapixels    float64 `yaml:"base_megapixels,omitempty"`
	PerExtraMegapixel float64 `yaml:"per_extra_megapixel,omitempty"`
	// BatchDiscount multiplies the price for batch-channel calls.
	// Zero means the backend has no batch channel.
	BatchDiscount float64 `yaml:"batch_discount,omitempty"`
}

// unit resolves the tier price, reporting whether the rate covers the tier.
func (r Rate) unit(tier models.ResolutionTier) (float64, bool) {
	if p, ok := r.PerImage[tier]; ok {
		return p, true
	}
	if r.Default > 0 {
		return r.Default, true
	}
	return 0, false
}

// Quote is a priced lookup result. Fallback marks estimates for models or
// tiers the table does not cover.
type Quote struct {
	USD      float64
	Fallback bool
}

// Table is the immutable pricing lookup for a session.
type Table struct {
	rates    map[string]Rate
	fallback Rate
}

// NewTable builds a Table. A non-positive fallbackUSD keeps FallbackUSD.
func NewTable(rates map[string]Rate, fallbackUSD float64) *Table {
	if fallbackUSD <= 0 {
		fallbackUSD = FallbackUSD
	}
	if rates == nil {
		rates = make(map[string]Rate)
	}
	return &Table{
		rates:    rates,
		fallback: Rate{Default: fallbackUSD, BatchDiscount: 0.5},
	}
}

// Default returns the table for the backends the pipeline uses, at published
// rates: Gemini per-image by tier with a 50% batch discount, Flux billed by
// megapixel.
func Default() *Table {
	return NewTable(DefaultRates(), FallbackUSD)
}

// DefaultRates returns a fresh copy of the built-in rates, so callers can
// overlay their own entries before building a table.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"gemini-3-pro-image-preview": {
			PerImage: map[models.ResolutionTier]float64{
				models.Resolution1K: 0.134,
				models.Resolution2K: 0.134,
				models.Resolution4K: 0.24,
			},
			Default:       0.134,
			BatchDiscount: 0.5,
		},
		"gemini-2.5-flash-image": {
			PerImage: map[models.ResolutionTier]float64{
				models.Resolution1K: 0.039,
				models.Resolution2K: 0.039,
				models.Resolution4K: 0.039,
			},
			Default:       0.039,
			BatchDiscount: 0.5,
		},
		"flux-2-pro": {
			Default:           0.03,
			BaseMegapixels:    1,
			PerExtraMegapixel: 0.015,
		},
		"flux-1.1-pro": {
			Default: 0.04,
		},
	}
}

// Price returns the unit price for a (model, tier, batch) triple.
func (t *Table) Price(model string, tier models.ResolutionTier, batch bool) Quote {
	return t.Quote(model, tier, batch, 0)
}

// Quote prices one call. Megapixels only matters for megapixel-billed rates
// and may be zero when the backend does not report output size. The same
// inputs always produce the same price.
func (t *Table) Quote(model string, tier models.ResolutionTier, batch bool, megapixels float64) Quote {
	rate, ok := t.rates[model]
	fallback := !ok
	if !ok {
		rate = t.fallback
	}

	usd, priced := rate.unit(tier)
	if !priced {
		// Known model with an unpriced tier and no declared default.
		rate = t.fallback
		fallback = true
		usd, _ = rate.unit(tier)
	}

	if rate.PerExtraMegapixel > 0 && megapixels > rate.BaseMegapixels {
		usd += math.Ceil(megapixels-rate.BaseMegapixels) * rate.PerExtraMegapixel
	}

	if batch && rate.BatchDiscount > 0 {
		usd *= rate.BatchDiscount
	}

	return Quote{USD: usd, Fallback: fallback}
}

// Models returns the table's model names, sorted.
func (t *Table) Models() []string {
	names := make([]string, 0, len(t.rates))
	for name := range t.rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rate returns the rate for a model, if the table covers it.
func (t *Table) Rate(model string) (Rate, bool) {
	r, ok := t.rates[model]
	return r, ok
}
