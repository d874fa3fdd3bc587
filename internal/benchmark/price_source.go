// Package benchmark implements the synthetic price-update stream used to
// load-test a price-store program: one goroutine per publisher, each
// generating deterministic noisy prices and fanning them out over UDP.
package benchmark

import (
	"math"
	"math/rand"

	"github.com/ojrac/opensimplex-go"
)

// PriceSource generates a deterministic-per-seed, smoothly varying price
// and confidence pair from a time parameter. Two PriceSources constructed
// with different seeds never correlate; the same PriceSource called twice
// with the same t always returns the same values.
type PriceSource struct {
	priceMean       int64
	priceRange      uint64
	confidenceMean  uint64
	confidenceRange uint64

	noise opensimplex.Noise
}

// PriceSourceConfig parameterizes NewPriceSource.
type PriceSourceConfig struct {
	PriceMean       int64
	PriceRange      uint64
	ConfidenceMean  uint64
	ConfidenceRange uint64
}

// NewPriceSource builds a PriceSource seeded from the package-level random
// source. The seed is drawn once, at construction, never re-drawn inside
// Get — Get must stay pure in its input t.
func NewPriceSource(cfg PriceSourceConfig) *PriceSource {
	return &PriceSource{
		priceMean:       cfg.PriceMean,
		priceRange:      cfg.PriceRange,
		confidenceMean:  cfg.ConfidenceMean,
		confidenceRange: cfg.ConfidenceRange,
		noise:           opensimplex.NewNormalized(rand.Int63()),
	}
}

// Get returns the (price, confidence) pair for time parameter t.
func (p *PriceSource) Get(t float64) (price int64, confidence uint64) {
	priceNoise := p.noise.Eval2(t, t*0.5)*2 - 1
	confidenceNoise := p.noise.Eval2(t*0.5, t)*2 - 1

	price = saturatingAddI64(p.priceMean, int64(float64(p.priceRange)*priceNoise))

	rawConfidence := saturatingAddI64(int64(p.confidenceMean), int64(float64(p.confidenceRange)*confidenceNoise))
	if rawConfidence < 0 {
		rawConfidence = 0
	}
	confidence = uint64(rawConfidence)
	return price, confidence
}

// saturatingAddI64 adds a and b, clamping to the int64 range instead of
// wrapping on overflow.
func saturatingAddI64(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return sum
}
