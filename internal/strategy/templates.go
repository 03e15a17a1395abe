package strategy

import "github.com/optionlab/stratcalc/internal/marketdata"

// TemplateLeg is one leg of a library template. Option legs carry a strike
// rule in the same grammar LegRule uses; stock legs carry shares instead.
type TemplateLeg struct {
	Side       Side                    `json:"side"`
	OptionType marketdata.ContractType `json:"option_type,omitempty"`
	StrikeRule string                  `json:"strike_rule,omitempty"`
	Snap       SnapMode                `json:"-"`
	Qty        int                     `json:"qty,omitempty"`
	DTEOffset  int                     `json:"dte_offset,omitempty"`
	Stock      bool                    `json:"stock,omitempty"` // 100 shares per contract
}

// Template is a data-only entry in the broader strategy library. The engine
// does not price templates, but every option leg's strike rule resolves
// through ResolveTarget, so a template can be turned into concrete strikes
// against any chain.
type Template struct {
	Key     string        `json:"key"`
	Name    string        `json:"name"`
	Outlook string        `json:"outlook"`
	Credit  bool          `json:"credit"`
	Legs    []TemplateLeg `json:"legs"`
}

// Templates lists the library beyond the computed strategies: stock-hedge
// structures and verticals, expressed in the shared strike-rule grammar.
func Templates() []Template {
	return []Template{
		{
			Key:     "covered_call",
			Name:    "Covered Call",
			Outlook: "neutral to mildly bullish, harvest premium against shares",
			Credit:  true,
			Legs: []TemplateLeg{
				{Side: Buy, Stock: true},
				{Side: Sell, OptionType: marketdata.Call, StrikeRule: "DELTA:0.30"},
			},
		},
		{
			Key:     "cash_secured_put",
			Name:    "Cash-Secured Put",
			Outlook: "willing buyer below spot, paid to wait",
			Credit:  true,
			Legs: []TemplateLeg{
				{Side: Sell, OptionType: marketdata.Put, StrikeRule: "DELTA:0.30"},
			},
		},
		{
			Key:     "protective_put",
			Name:    "Protective Put",
			Outlook: "long shares with a floor under them",
			Legs: []TemplateLeg{
				{Side: Buy, Stock: true},
				{Side: Buy, OptionType: marketdata.Put, StrikeRule: "OTM:5%", Snap: SnapFloor},
			},
		},
		{
			Key:     "collar",
			Name:    "Collar",
			Outlook: "long shares, downside floored, upside capped",
			Legs: []TemplateLeg{
				{Side: Buy, Stock: true},
				{Side: Buy, OptionType: marketdata.Put, StrikeRule: "OTM:5%", Snap: SnapFloor},
				{Side: Sell, OptionType: marketdata.Call, StrikeRule: "DELTA:0.25"},
			},
		},
		{
			Key:     "bull_call_spread",
			Name:    "Bull Call Spread",
			Outlook: "moderately bullish with defined cost",
			Legs: []TemplateLeg{
				{Side: Buy, OptionType: marketdata.Call, StrikeRule: "ATM"},
				{Side: Sell, OptionType: marketdata.Call, StrikeRule: "{LEG1.STRIKE}*1.05", Snap: SnapBeyond},
			},
		},
		{
			Key:     "bear_put_spread",
			Name:    "Bear Put Spread",
			Outlook: "moderately bearish with defined cost",
			Legs: []TemplateLeg{
				{Side: Buy, OptionType: marketdata.Put, StrikeRule: "ATM"},
				{Side: Sell, OptionType: marketdata.Put, StrikeRule: "{LEG1.STRIKE}*0.95", Snap: SnapBeyond},
			},
		},
		{
			Key:     "bull_put_spread",
			Name:    "Bull Put Spread",
			Outlook: "rangebound or rising, collect the put spread",
			Credit:  true,
			Legs: []TemplateLeg{
				{Side: Sell, OptionType: marketdata.Put, StrikeRule: "OTM:3%", Snap: SnapFloor},
				{Side: Buy, OptionType: marketdata.Put, StrikeRule: "{LEG1.STRIKE}*0.95", Snap: SnapBeyond},
			},
		},
		{
			Key:     "bear_call_spread",
			Name:    "Bear Call Spread",
			Outlook: "rangebound or falling, collect the call spread",
			Credit:  true,
			Legs: []TemplateLeg{
				{Side: Sell, OptionType: marketdata.Call, StrikeRule: "OTM:3%", Snap: SnapFloor},
				{Side: Buy, OptionType: marketdata.Call, StrikeRule: "{LEG1.STRIKE}*1.05", Snap: SnapBeyond},
			},
		},
		{
			Key:     "calendar_call_spread",
			Name:    "Calendar Call Spread",
			Outlook: "pinned near spot while near-term decay outruns far-term",
			Legs: []TemplateLeg{
				{Side: Sell, OptionType: marketdata.Call, StrikeRule: "ATM"},
				{Side: Buy, OptionType: marketdata.Call, StrikeRule: "{LEG1.STRIKE}", DTEOffset: 30},
			},
		},
	}
}
