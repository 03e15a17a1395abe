// Package engine computes multi-leg option strategy positions from chain
// snapshots: strike selection, risk metrics, outcome probabilities, expected
// moves, and volatility surfaces. Every function here is pure; provider I/O
// happens only in the Calculator at the package boundary.
package engine

import (
	"fmt"
	"time"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/strategy"
)

//
// ==========================
// Risk bounds
// ==========================
//

// Bound is a risk figure that is either a finite per-share dollar amount or
// open-ended. A nil *Bound means the figure could not be computed, which is
// a different statement than "unbounded".
type Bound struct {
	Amount    float64 `json:"amount"`
	Unbounded bool    `json:"unbounded"`
}

// Finite wraps a computed dollar amount.
func Finite(v float64) *Bound { return &Bound{Amount: v} }

// Open marks a figure with no finite bound, like a long call's upside.
func Open() *Bound { return &Bound{Unbounded: true} }

func (b *Bound) String() string {
	if b == nil {
		return "unknown"
	}
	if b.Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%.2f", b.Amount)
}

//
// ==========================
// Positions
// ==========================
//

// StrategyLeg is one traded leg of a position. Premium is the bid/ask mid of
// the contract the selector chose. Quantity is per-leg contract count, so a
// butterfly body carries 2.
type StrategyLeg struct {
	Action       strategy.Side           `json:"action"`
	ContractType marketdata.ContractType `json:"contract_type"`
	Strike       float64                 `json:"strike"`
	Premium      float64                 `json:"premium"`
	Quantity     int                     `json:"quantity"`
	Expiration   time.Time               `json:"expiration"`
	Contract     string                  `json:"contract,omitempty"`
}

// LegTrace records how one leg's strike was chosen, replacing log narration
// with something tests can assert on.
type LegTrace struct {
	Rule       string  `json:"rule"`
	Target     float64 `json:"target"`
	Chosen     float64 `json:"chosen"`
	Candidates int     `json:"candidates"`
	TieBreak   string  `json:"tie_break,omitempty"`
	FellBack   bool    `json:"fell_back,omitempty"`
}

// SelectionTrace explains the selector's decisions for a whole position.
type SelectionTrace struct {
	BandRelaxed        bool       `json:"band_relaxed,omitempty"`
	SeparationAdjusted bool       `json:"separation_adjusted,omitempty"`
	Legs               []LegTrace `json:"legs"`
}

// StrategyPosition is the complete computed result for one strategy request.
// MaxLoss and MaxProfit are nil when unknown, and carry the unbounded flag
// instead of an infinity. NetPremium is per share: positive means a debit
// paid, negative a credit received.
type StrategyPosition struct {
	ID           string              `json:"id"`
	Symbol       string              `json:"symbol"`
	Strategy     strategy.Type       `json:"strategy"`
	Legs         []StrategyLeg       `json:"legs"`
	Lower        *float64            `json:"lower_breakeven,omitempty"`
	Upper        *float64            `json:"upper_breakeven,omitempty"`
	MaxLoss      *Bound              `json:"max_loss,omitempty"`
	MaxProfit    *Bound              `json:"max_profit,omitempty"`
	NetPremium   float64             `json:"net_premium"`
	Collateral   string              `json:"collateral,omitempty"`
	ImpliedVol   float64             `json:"implied_vol"`
	IVPercentile float64             `json:"iv_percentile"`
	DaysToExpiry int                 `json:"days_to_expiry"`
	Expiration   time.Time           `json:"expiration"`
	Underlying   float64             `json:"underlying_price"`
	CalculatedAt time.Time           `json:"calculated_at"`
	Probability  *ProbabilitySummary `json:"probability,omitempty"`
	Trace        *SelectionTrace     `json:"trace,omitempty"`
}

//
// ==========================
// Probability outputs
// ==========================
//

// ProbabilityCurvePoint is one sample of the modeled outcome distribution,
// ready for charting.
type ProbabilityCurvePoint struct {
	Price           float64 `json:"price"`
	Density         float64 `json:"density"`
	CumulativeBelow float64 `json:"cumulative_below"`
	PnL             float64 `json:"pnl"`
	IsProfitable    bool    `json:"is_profitable"`
	ZScore          float64 `json:"z_score"`
}

// ProbabilitySummary carries the derived scalars of the outcome model. The
// breakeven probabilities read zero when the position has no breakeven on
// that side. Degenerate marks the zero-stdDev point-mass branch; it is a
// property of the inputs, not a failure.
type ProbabilitySummary struct {
	StdDev         float64 `json:"std_dev"`
	ProbBelowLower float64 `json:"prob_below_lower"`
	ProbAboveUpper float64 `json:"prob_above_upper"`
	ProbBetween    float64 `json:"prob_between"`
	ProbOfProfit   float64 `json:"prob_of_profit"`
	Degenerate     bool    `json:"degenerate,omitempty"`
}

//
// ==========================
// Expected move
// ==========================
//

// MoveBand is a one-standard-deviation price band over some horizon.
type MoveBand struct {
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Move    float64 `json:"move"`
	MovePct float64 `json:"move_pct"`
}

// ExpectedMove holds the 1-day and 1-week bands, plus the band out to the
// requested expiry when a positive DTE was given.
type ExpectedMove struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	IV       float64   `json:"implied_vol"`
	Daily    MoveBand  `json:"daily"`
	Weekly   MoveBand  `json:"weekly"`
	ToExpiry *MoveBand `json:"to_expiry,omitempty"`
}

//
// ==========================
// Volatility surface
// ==========================
//

// TermStructure classifies the slope of ATM IV across expirations.
type TermStructure string

const (
	TermUpward   TermStructure = "upward"
	TermDownward TermStructure = "downward"
	TermFlat     TermStructure = "flat"
)

// VolatilitySurfacePoint is one (strike, expiration) cell of the IV grid.
// ImpliedVol is clamped to [5, 150] vol points.
type VolatilitySurfacePoint struct {
	Strike     float64   `json:"strike"`
	Expiration time.Time `json:"expiration"`
	DaysToExp  int       `json:"days_to_exp"`
	ImpliedVol float64   `json:"implied_vol"`
	Moneyness  float64   `json:"moneyness"`
	FromChain  bool      `json:"from_chain"`
}

// SurfaceStats summarizes a surface: IV range, put skew (OTM-put average
// minus ATM average), and the term-structure classification.
type SurfaceStats struct {
	AvgIV         float64       `json:"avg_iv"`
	MinIV         float64       `json:"min_iv"`
	MaxIV         float64       `json:"max_iv"`
	PutSkew       float64       `json:"put_skew"`
	TermStructure TermStructure `json:"term_structure"`
}

// VolatilitySurfaceData is the full payload handed to visualization.
type VolatilitySurfaceData struct {
	Symbol       string                   `json:"symbol"`
	CurrentPrice float64                  `json:"current_price"`
	Points       []VolatilitySurfacePoint `json:"points"`
	Stats        SurfaceStats             `json:"stats"`
	Source       string                   `json:"source"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// Analysis bundles everything one strategy request produces: the position
// for persistence, the curve for charting, and the expected-move bands.
type Analysis struct {
	Position     StrategyPosition        `json:"position"`
	Curve        []ProbabilityCurvePoint `json:"curve"`
	ExpectedMove ExpectedMove            `json:"expected_move"`
}

// daysBetween rounds the span between two instants to whole days, never
// negative.
func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from).Hours()/24 + 0.5)
	if d < 0 {
		return 0
	}
	return d
}

// floatPtr is shorthand for optional numeric fields.
func floatPtr(v float64) *float64 { return &v }
