package engine

import (
	"math"

	"vortexflow/internal/model"
)

const rangeEpsilon = 1e-9

// windowStats aggregates one pass over the windowed trades.
type windowStats struct {
	BuyVolume  float64
	SellVolume float64
	BuyCount   int
	SellCount  int
	VolumeUSD  float64
	MinPrice   float64
	MaxPrice   float64
	FirstPrice float64
	LastPrice  float64
	BidWallQty float64
	AskWallQty float64
	NewestMs   int64
	TradeCount int
}

func computeWindowStats(trades []model.Trade) windowStats {
	var s windowStats
	s.TradeCount = len(trades)

	for i, t := range trades {
		if i == 0 {
			s.MinPrice = t.Price
			s.MaxPrice = t.Price
			s.FirstPrice = t.Price
		}
		if t.Price < s.MinPrice {
			s.MinPrice = t.Price
		}
		if t.Price > s.MaxPrice {
			s.MaxPrice = t.Price
		}
		s.LastPrice = t.Price

		if t.TakerIsSeller {
			s.SellVolume += t.Quantity
			s.SellCount++
			// Sell aggression is absorbed by resting bids.
			s.BidWallQty += t.Quantity
		} else {
			s.BuyVolume += t.Quantity
			s.BuyCount++
			s.AskWallQty += t.Quantity
		}

		s.VolumeUSD += t.NotionalUSD()
		if t.TimestampMs > s.NewestMs {
			s.NewestMs = t.TimestampMs
		}
	}
	return s
}

func (s windowStats) NetDelta() float64 {
	return s.BuyVolume - s.SellVolume
}

func (s windowStats) PriceRange() float64 {
	return s.MaxPrice - s.MinPrice
}

func (s windowStats) PriceChange() float64 {
	return s.LastPrice - s.FirstPrice
}

func priceRangePct(priceRange, lastPrice float64) float64 {
	if lastPrice == 0 {
		return 0
	}
	return priceRange / lastPrice
}

func absorptionScore(volumeUSD, rangePct float64) float64 {
	score := (volumeUSD / 100000) / (math.Max(rangePct, rangeEpsilon) * 10000)
	return math.Min(100, score)
}

// densityLabel classifies how much volume each unit of price displacement
// soaked up. A zero range with nonzero volume is maximally dense.
func densityLabel(volumeUSD, priceRange float64) (string, model.StatusColor) {
	if priceRange == 0 {
		return model.StatusDiamond, model.ColorBlue
	}
	ratio := volumeUSD / priceRange
	switch {
	case ratio > 1e6:
		return model.StatusDiamond, model.ColorBlue
	case ratio > 1e5:
		return model.StatusConcrete, model.ColorGreen
	default:
		return model.StatusAir, model.ColorGray
	}
}

// divergenceLabel is a pure function of the signs of the window price
// change and the net taker delta.
func divergenceLabel(priceChange, netDelta float64) (string, model.StatusColor) {
	switch {
	case priceChange > 0 && netDelta < 0:
		return model.StatusBearishDiv, model.ColorRed
	case priceChange < 0 && netDelta > 0:
		return model.StatusBullishDiv, model.ColorGreen
	default:
		return model.StatusSynced, model.ColorGray
	}
}

func orderSkew(buyCount, sellCount int) float64 {
	if buyCount == 0 || sellCount == 0 {
		return 1.0
	}
	return float64(buyCount) / float64(sellCount)
}

func vcsRaw(momentum, execVelocity, fundingAccelBps float64) float64 {
	return 0.5*momentum + 0.2*execVelocity - 2000*fundingAccelBps
}

func vcsScore(raw float64) float64 {
	return clamp(math.Abs(raw)/10, 0, 100)
}

// vcsStatus buckets the signed raw value. Thresholds are heuristic: strong
// positive flow reads as a burst, strong negative as a dump, a raw value
// near zero as coiling.
func vcsStatus(raw float64) string {
	switch {
	case raw > 50:
		return model.StatusBurst
	case raw < -50:
		return model.StatusDump
	case math.Abs(raw) < 5:
		return model.StatusCoiling
	default:
		return model.StatusNeutral
	}
}

func ejectionPower(absorption, oidDivergence float64) float64 {
	return clamp(absorption+20*math.Abs(oidDivergence), 0, 100)
}

func ejectionStatus(power float64) string {
	if power >= 80 {
		return model.StatusEjectionCritical
	}
	return model.StatusEjectionFading
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
