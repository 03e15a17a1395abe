package strategy

import (
	"fmt"

	"github.com/optionlab/stratcalc/internal/marketdata"
)

// Params tunes where each strategy places its strikes. Zero values fall
// back to the defaults below, so a partially filled struct is usable.
type Params struct {
	StrangleOTMPct    float64 // put and call distance from spot for strangles
	CondorShortOTMPct float64 // distance of the condor's short strikes
	CondorWingPct     float64 // wing width as a fraction of spot
	ButterflyWingPct  float64 // wing width as a fraction of spot
	CalendarNearDTE   int     // target days to expiry for the short calendar leg
	CalendarFarDTE    int     // target days to expiry for the long calendar leg
	CalendarOTMPct    float64 // call distance from spot for the diagonal calendar
}

// DefaultParams places strangle legs 5% out of the money, condor shorts 2%
// out with 2% wings, butterfly wings 3% wide, and calendar legs 30 and 60
// days out.
func DefaultParams() Params {
	return Params{
		StrangleOTMPct:    5,
		CondorShortOTMPct: 2,
		CondorWingPct:     2,
		ButterflyWingPct:  3,
		CalendarNearDTE:   30,
		CalendarFarDTE:    60,
		CalendarOTMPct:    5,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.StrangleOTMPct <= 0 {
		p.StrangleOTMPct = def.StrangleOTMPct
	}
	if p.CondorShortOTMPct <= 0 {
		p.CondorShortOTMPct = def.CondorShortOTMPct
	}
	if p.CondorWingPct <= 0 {
		p.CondorWingPct = def.CondorWingPct
	}
	if p.ButterflyWingPct <= 0 {
		p.ButterflyWingPct = def.ButterflyWingPct
	}
	if p.CalendarNearDTE <= 0 {
		p.CalendarNearDTE = def.CalendarNearDTE
	}
	if p.CalendarFarDTE <= p.CalendarNearDTE {
		p.CalendarFarDTE = p.CalendarNearDTE + 30
	}
	if p.CalendarOTMPct <= 0 {
		p.CalendarOTMPct = def.CalendarOTMPct
	}
	return p
}

// Legs returns the leg rules for a strategy type. Wing and spread widths
// that depend on spot are expressed through cross-leg expressions so the
// rules stay price-relative.
//
// The switch is exhaustive over the closed set of types; an unknown type
// is an error, never a silent empty slice.
func Legs(t Type, spot float64, p Params) ([]LegRule, error) {
	p = p.withDefaults()

	otm := func(pct float64) string { return fmt.Sprintf("OTM:%g%%", pct) }
	wing := func(pct float64) float64 { return roundDollar(spot * pct / 100) }

	switch t {
	case LongStrangle:
		return []LegRule{
			{Side: Buy, OptionType: marketdata.Put, StrikeRule: otm(p.StrangleOTMPct), Snap: SnapFloor},
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: otm(p.StrangleOTMPct), Snap: SnapFloor},
		}, nil

	case ShortStrangle:
		return []LegRule{
			{Side: Sell, OptionType: marketdata.Put, StrikeRule: otm(p.StrangleOTMPct), Snap: SnapFloor},
			{Side: Sell, OptionType: marketdata.Call, StrikeRule: otm(p.StrangleOTMPct), Snap: SnapFloor},
		}, nil

	case LongStraddle:
		return []LegRule{
			{Side: Buy, OptionType: marketdata.Put, StrikeRule: "ATM"},
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: "ATM"},
		}, nil

	case ShortStraddle:
		return []LegRule{
			{Side: Sell, OptionType: marketdata.Put, StrikeRule: "ATM"},
			{Side: Sell, OptionType: marketdata.Call, StrikeRule: "ATM"},
		}, nil

	case IronCondor:
		w := wing(p.CondorWingPct)
		return []LegRule{
			{Side: Sell, OptionType: marketdata.Put, StrikeRule: otm(p.CondorShortOTMPct), Snap: SnapFloor},
			{Side: Buy, OptionType: marketdata.Put, StrikeRule: fmt.Sprintf("{LEG1.STRIKE}-%g", w), Snap: SnapBeyond},
			{Side: Sell, OptionType: marketdata.Call, StrikeRule: otm(p.CondorShortOTMPct), Snap: SnapFloor},
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: fmt.Sprintf("{LEG3.STRIKE}+%g", w), Snap: SnapBeyond},
		}, nil

	case ButterflySpread:
		w := wing(p.ButterflyWingPct)
		return []LegRule{
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: fmt.Sprintf("ATM:-%g", w)},
			{Side: Sell, OptionType: marketdata.Call, StrikeRule: "ATM", Qty: 2},
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: fmt.Sprintf("{LEG2.STRIKE}+%g", w)},
		}, nil

	case DiagonalCalendar:
		return []LegRule{
			{Side: Sell, OptionType: marketdata.Call, StrikeRule: "ATM", DTEOffset: 0},
			{Side: Buy, OptionType: marketdata.Call, StrikeRule: otm(p.CalendarOTMPct), Snap: SnapFloor, DTEOffset: p.CalendarFarDTE - p.CalendarNearDTE},
		}, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
}

// roundDollar rounds a width to the nearest dollar, never below one. Wing
// widths land on listed strikes more often that way.
func roundDollar(v float64) float64 {
	d := float64(int(v + 0.5))
	if d < 1 {
		return 1
	}
	return d
}

// Description is a human-readable catalog entry for one strategy.
type Description struct {
	Type    Type   `json:"type"`
	Name    string `json:"name"`
	Legs    string `json:"legs"`
	Outlook string `json:"outlook"`
	Credit  bool   `json:"credit"`
}

// Catalog lists every supported strategy with a short description, in the
// order the types are declared. The CLI prints this table.
func Catalog() []Description {
	entries := map[Type]Description{
		LongStrangle:     {Name: "Long Strangle", Legs: "buy OTM put + buy OTM call", Outlook: "big move either way"},
		ShortStrangle:    {Name: "Short Strangle", Legs: "sell OTM put + sell OTM call", Outlook: "rangebound, collect premium"},
		LongStraddle:     {Name: "Long Straddle", Legs: "buy ATM put + buy ATM call", Outlook: "big move, direction unknown"},
		ShortStraddle:    {Name: "Short Straddle", Legs: "sell ATM put + sell ATM call", Outlook: "pinned near spot"},
		IronCondor:       {Name: "Iron Condor", Legs: "put credit spread + call credit spread", Outlook: "rangebound with defined risk"},
		ButterflySpread:  {Name: "Butterfly Spread", Legs: "buy wing, sell 2x body, buy wing", Outlook: "pin at the body strike"},
		DiagonalCalendar: {Name: "Diagonal Calendar", Legs: "sell near-dated ATM call + buy far-dated OTM call", Outlook: "slow grind up, harvest near-term decay"},
	}

	out := make([]Description, 0, len(entries))
	for _, t := range All() {
		d := entries[t]
		d.Type = t
		d.Credit = t.IsCredit()
		out = append(out, d)
	}
	return out
}
