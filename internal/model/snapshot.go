package model

import "time"

// StatusColor is the closed categorical tag the presentation layer maps to a
// colour. The engine never emits anything outside this set.
type StatusColor string

const (
	ColorGray  StatusColor = "gray"
	ColorGreen StatusColor = "green"
	ColorRed   StatusColor = "red"
	ColorPink  StatusColor = "pink"
	ColorBlue  StatusColor = "blue"
)

// Status labels for the composite gauges and the per-indicator tags. The set
// is closed so the presentation layer can switch on it.
const (
	StatusAwaitingFlow = "AWAITING FLOW..."
	StatusBurst        = "FLOW BURST"
	StatusDump         = "FLOW DUMP"
	StatusCoiling      = "COILING"
	StatusNeutral      = "NEUTRAL"

	StatusEjectionCritical = "CRITICAL MASS"
	StatusEjectionFading   = "EXHAUSTED/FADING"

	StatusBullish    = "BULLISH"
	StatusBearish    = "BEARISH"
	StatusActive     = "ACTIVE"
	StatusQuiet      = "QUIET"
	StatusHighAbsorp = "HIGH ABSORP"
	StatusLowAbsorp  = "LOW ABSORP"
	StatusVolatile   = "VOLATILE"
	StatusCalm       = "CALM"
	StatusBearishDiv = "BEARISH DIVERGENCE"
	StatusBullishDiv = "BULLISH DIVERGENCE"
	StatusSynced     = "SYNCED"
	StatusTurbulent  = "TURBULENT"
	StatusStable     = "STABLE"
	StatusBuySkew    = "BUY SKEW"
	StatusSellSkew   = "SELL SKEW"
	StatusBalanced   = "BALANCED"
	StatusFairValue  = "FAIR VALUE"
	StatusDivergent  = "DIVERGENT"
	StatusDiamond    = "DIAMOND"
	StatusConcrete   = "CONCRETE"
	StatusAir        = "AIR"
	StatusStrong     = "STRONG"
	StatusWeak       = "WEAK"
	StatusInactive   = "INACTIVE"
)

// Fixed identifiers of the twelve published indicators, in publication order.
const (
	IndicatorTakerDelta = iota + 1
	IndicatorLiquidationTape
	IndicatorWhaleAbsorption
	IndicatorFundingAccel
	IndicatorCVDDivergence
	IndicatorCVDVelocity
	IndicatorSentimentSkew
	IndicatorOIDDivergence
	IndicatorFractalDensity
	IndicatorBidWall
	IndicatorAskWall
	IndicatorRecentBruise
)

// IndicatorLabels holds the fixed display labels keyed by indicator ID.
var IndicatorLabels = map[int]string{
	IndicatorTakerDelta:      "1. TAKER DELTA D2 (60s)",
	IndicatorLiquidationTape: "2. LIQUIDATION TAPE (60s USD)",
	IndicatorWhaleAbsorption: "3. WHALE ABSORPTION (USD %)",
	IndicatorFundingAccel:    "4. FUNDING RATE ACCEL (BPS/min)",
	IndicatorCVDDivergence:   "5. CVD DIVERGENCE INDEX (CDI)",
	IndicatorCVDVelocity:     "6. CVD VELOCITY (Contracts/min)",
	IndicatorSentimentSkew:   "7. MARKET SENTIMENT SKEW (MSS %)",
	IndicatorOIDDivergence:   "8. OID DIVERGENCE (NORMALIZED x)",
	IndicatorFractalDensity:  "9. LIQUIDITY FRACTAL DENSITY (LFD /min)",
	IndicatorBidWall:         "10. BID WALL (DEFENSE QTY)",
	IndicatorAskWall:         "11. ASK WALL (RESIST QTY)",
	IndicatorRecentBruise:    "12. RECENT BRUISE (PRICE TARGET)",
}

// Indicator is one named metric row in a snapshot.
type Indicator struct {
	ID          int         `json:"id"`
	Label       string      `json:"label"`
	Value       string      `json:"value"`
	StatusLabel string      `json:"status_label"`
	StatusColor StatusColor `json:"status_color"`
	Highlighted bool        `json:"highlighted,omitempty"`
}

// ChartPoint is one second of price history. Points are value types; history
// updates replace the element rather than mutating a shared object.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// MetricSnapshot is the unit of publication to subscribers. It is immutable
// once constructed: History is a private copy and Metrics are value elements.
type MetricSnapshot struct {
	Market         MarketDef    `json:"market"`
	Timestamp      time.Time    `json:"timestamp"`
	Price          float64      `json:"price"`
	LagMs          int64        `json:"lag_ms"`
	VCSScore       float64      `json:"vcs_score"`
	VCSStatus      string       `json:"vcs_status"`
	EjectionPower  float64      `json:"ejection_power"`
	EjectionStatus string       `json:"ejection_status"`
	Metrics        []Indicator  `json:"metrics"`
	History        []ChartPoint `json:"history"`
}
