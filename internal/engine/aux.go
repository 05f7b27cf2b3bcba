package engine

import "sync"

// AuxSnapshot is a point-in-time copy of the slow-moving auxiliary values.
type AuxSnapshot struct {
	FundingRate            float64
	OpenInterest           float64
	FundingAccelBps        float64
	OIDDivergenceScore     float64
	LiquidationAccumulator float64
	LastLiquidationPrice   float64
	LastLiquidationMs      int64
}

// AuxState holds the funding, open-interest and liquidation inputs that
// change slower than the tick rate. The poller writes funding and OI
// deltas, the engine drain folds liquidations in, and the tick decays the
// accumulator and reads a snapshot.
type AuxState struct {
	mu sync.Mutex

	fundingRate            float64
	openInterest           float64
	fundingAccelBps        float64
	oidDivergenceScore     float64
	liquidationAccumulator float64
	lastLiquidationPrice   float64
	lastLiquidationMs      int64

	prevFundingRate  float64
	prevOpenInterest float64
	prevPollPrice    float64
	havePrevPoll     bool
}

func NewAuxState() *AuxState {
	return &AuxState{}
}

// RecordPoll ingests one funding/OI sample together with the trade price
// observed at poll time. Deltas are only produced once a previous sample
// exists; the first poll seeds the baselines.
func (a *AuxState) RecordPoll(fundingRate, openInterest, lastPrice float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.havePrevPoll {
		a.fundingAccelBps = (fundingRate - a.prevFundingRate) * 10000
		if a.prevOpenInterest != 0 && a.prevPollPrice != 0 {
			oiChange := (openInterest - a.prevOpenInterest) / a.prevOpenInterest
			priceChange := (lastPrice - a.prevPollPrice) / a.prevPollPrice
			a.oidDivergenceScore = (oiChange - priceChange) * 100
		}
	}

	a.fundingRate = fundingRate
	a.openInterest = openInterest
	a.prevFundingRate = fundingRate
	a.prevOpenInterest = openInterest
	a.prevPollPrice = lastPrice
	a.havePrevPoll = true
}

// ApplyLiquidation adds a forced-close notional to the accumulator and
// remembers the price level it hit.
func (a *AuxState) ApplyLiquidation(notionalUSD, price float64, timestampMs int64) {
	a.mu.Lock()
	a.liquidationAccumulator += notionalUSD
	a.lastLiquidationPrice = price
	a.lastLiquidationMs = timestampMs
	a.mu.Unlock()
}

// Decay multiplies the liquidation accumulator by the given factor and
// returns a snapshot of all auxiliary values for the current tick.
func (a *AuxState) Decay(factor float64) AuxSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.liquidationAccumulator *= factor
	return AuxSnapshot{
		FundingRate:            a.fundingRate,
		OpenInterest:           a.openInterest,
		FundingAccelBps:        a.fundingAccelBps,
		OIDDivergenceScore:     a.oidDivergenceScore,
		LiquidationAccumulator: a.liquidationAccumulator,
		LastLiquidationPrice:   a.lastLiquidationPrice,
		LastLiquidationMs:      a.lastLiquidationMs,
	}
}

// Snapshot returns the current values without decaying.
func (a *AuxState) Snapshot() AuxSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AuxSnapshot{
		FundingRate:            a.fundingRate,
		OpenInterest:           a.openInterest,
		FundingAccelBps:        a.fundingAccelBps,
		OIDDivergenceScore:     a.oidDivergenceScore,
		LiquidationAccumulator: a.liquidationAccumulator,
		LastLiquidationPrice:   a.lastLiquidationPrice,
		LastLiquidationMs:      a.lastLiquidationMs,
	}
}

// Reset zeroes every auxiliary value, including the poll baselines.
func (a *AuxState) Reset() {
	a.mu.Lock()
	a.fundingRate = 0
	a.openInterest = 0
	a.fundingAccelBps = 0
	a.oidDivergenceScore = 0
	a.liquidationAccumulator = 0
	a.lastLiquidationPrice = 0
	a.lastLiquidationMs = 0
	a.prevFundingRate = 0
	a.prevOpenInterest = 0
	a.prevPollPrice = 0
	a.havePrevPoll = false
	a.mu.Unlock()
}
