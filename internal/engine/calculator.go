package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/pricing"
	"github.com/optionlab/stratcalc/internal/strategy"
)

// Config collects every tunable the pipeline reads. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	Filter       FilterConfig
	Selector     SelectorConfig
	Grid         GridConfig
	Surface      SurfaceConfig
	Strategy     strategy.Params
	RiskFreeRate float64
	TargetDTE    int // default days to expiry when a request names none
	HistoryDays  int // daily-bar lookback for the IV percentile
}

// DefaultConfig returns the documented heuristics.
func DefaultConfig() Config {
	return Config{
		Filter:       DefaultFilterConfig(),
		Selector:     DefaultSelectorConfig(),
		Grid:         DefaultGridConfig(),
		Surface:      DefaultSurfaceConfig(),
		Strategy:     strategy.DefaultParams(),
		RiskFreeRate: 0.02,
		TargetDTE:    30,
		HistoryDays:  365,
	}
}

// Request names one strategy calculation.
type Request struct {
	Symbol   string
	Strategy strategy.Type

	// DTE targets an expiration this many days out; zero uses the
	// configured default. Expiration, when set, overrides DTE.
	DTE        int
	Expiration time.Time
}

// Calculator drives filter, selection, pricing, and the probability model
// against a market-data provider. All engine math stays pure; the
// calculator owns the provider I/O and the fallback policies around it.
type Calculator struct {
	provider marketdata.Provider
	surfaces *SurfaceBuilder
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// New constructs a calculator.
func New(provider marketdata.Provider, cfg Config, log zerolog.Logger) *Calculator {
	return &Calculator{
		provider: provider,
		surfaces: NewSurfaceBuilder(cfg.Surface),
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock fixes the calculator's notion of now, used by tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	c.surfaces.WithClock(now)
	return c
}

// Analyze runs the full pipeline for one request: quote, chain, filter,
// strike selection with a single band relaxation, pricing, probability
// model, expected move, and IV percentile. Failures map onto the typed
// sentinels so batch callers can sort outcomes per symbol.
func (c *Calculator) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if req.Symbol == "" {
		return nil, invalidf("empty symbol")
	}
	if !req.Strategy.Valid() {
		return nil, invalidf("unknown strategy type %d", int(req.Strategy))
	}

	now := c.now()

	quote, err := c.provider.GetStockQuote(ctx, req.Symbol)
	if err != nil {
		return nil, &DataError{Symbol: req.Symbol, Op: "quote", Err: err}
	}
	spot := quote.Price
	if spot <= 0 {
		return nil, invalidf("non-positive price %.2f for %s", spot, req.Symbol)
	}

	chain, err := c.provider.GetChain(ctx, req.Symbol)
	if err != nil {
		return nil, &DataError{Symbol: req.Symbol, Op: "chain", Err: err}
	}
	exps := chain.Expirations()

	baseExp := c.pickExpiration(now, req, exps)
	dte := daysBetween(now, baseExp)
	if dte <= 0 {
		return nil, invalidf("expiration %s is not in the future", baseExp.Format("2006-01-02"))
	}

	rules, err := strategy.Legs(req.Strategy, spot, c.cfg.Strategy)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	ivPct := atmIV(chain.ForExpiration(baseExp), spot)
	if ivPct <= 0 {
		ivPct = solveStraddleIV(chain.ForExpiration(baseExp), spot, float64(dte), c.cfg.RiskFreeRate)
	}
	if ivPct <= 0 {
		ivPct = c.fallbackIV(req.Symbol)
	}

	c.log.Debug().
		Str("symbol", req.Symbol).
		Str("strategy", req.Strategy.String()).
		Float64("spot", spot).
		Int("dte", dte).
		Int("listed_strikes", len(chain.Strikes())).
		Msg("selecting strikes")

	legs, trace, err := c.selectWithRelaxation(req, rules, chain, exps, baseExp, now, spot, ivPct)
	if err != nil {
		return nil, err
	}

	rp, err := PriceStrategy(req.Strategy, legs)
	if err != nil {
		return nil, err
	}

	payoff := PositionPayoff(legs, baseExp, ivPct, c.cfg.RiskFreeRate)
	curve, summary := BuildCurve(spot, ivPct, float64(dte), payoff, rp.Lower, rp.Upper, c.cfg.Grid)

	move, err := ComputeExpectedMove(req.Symbol, spot, ivPct, dte)
	if err != nil {
		return nil, err
	}

	pos := StrategyPosition{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		Strategy:     req.Strategy,
		Legs:         legs,
		Lower:        rp.Lower,
		Upper:        rp.Upper,
		MaxLoss:      rp.MaxLoss,
		MaxProfit:    rp.MaxProfit,
		NetPremium:   rp.NetPremium,
		Collateral:   rp.Collateral,
		ImpliedVol:   ivPct,
		IVPercentile: c.ivPercentile(ctx, req.Symbol, ivPct),
		DaysToExpiry: dte,
		Expiration:   baseExp,
		Underlying:   spot,
		CalculatedAt: now,
		Probability:  &summary,
		Trace:        trace,
	}

	c.log.Debug().
		Str("symbol", req.Symbol).
		Str("position_id", pos.ID).
		Float64("net_premium", pos.NetPremium).
		Float64("prob_of_profit", summary.ProbOfProfit).
		Msg("analysis complete")

	return &Analysis{Position: pos, Curve: curve, ExpectedMove: move}, nil
}

// Surface builds the volatility surface for a symbol. A failed chain fetch
// degrades to the parametric surface rather than failing the call.
func (c *Calculator) Surface(ctx context.Context, symbol string) (*VolatilitySurfaceData, error) {
	if symbol == "" {
		return nil, invalidf("empty symbol")
	}

	quote, err := c.provider.GetStockQuote(ctx, symbol)
	if err != nil {
		return nil, &DataError{Symbol: symbol, Op: "quote", Err: err}
	}

	var chainPtr *marketdata.Chain
	chain, err := c.provider.GetChain(ctx, symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("chain unavailable, building parametric surface")
	} else {
		chainPtr = &chain
	}

	surface, err := c.surfaces.Build(symbol, quote.Price, chainPtr)
	if err != nil {
		return nil, err
	}
	return &surface, nil
}

// Move computes the expected-move bands for a symbol, reading ATM IV from
// the chain at the target expiration when it is available.
func (c *Calculator) Move(ctx context.Context, symbol string, dte int) (*ExpectedMove, error) {
	if symbol == "" {
		return nil, invalidf("empty symbol")
	}
	if dte <= 0 {
		dte = c.cfg.TargetDTE
	}

	quote, err := c.provider.GetStockQuote(ctx, symbol)
	if err != nil {
		return nil, &DataError{Symbol: symbol, Op: "quote", Err: err}
	}

	now := c.now()
	ivPct := 0.0
	if chain, err := c.provider.GetChain(ctx, symbol); err == nil {
		exps := chain.Expirations()
		exp := c.pickExpiration(now, Request{DTE: dte}, exps)
		contracts := chain.ForExpiration(exp)
		ivPct = atmIV(contracts, quote.Price)
		if ivPct <= 0 {
			ivPct = solveStraddleIV(contracts, quote.Price, float64(daysBetween(now, exp)), c.cfg.RiskFreeRate)
		}
	} else {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("chain unavailable, using base IV")
	}
	if ivPct <= 0 {
		ivPct = c.fallbackIV(symbol)
	}

	move, err := ComputeExpectedMove(symbol, quote.Price, ivPct, dte)
	if err != nil {
		return nil, err
	}
	return &move, nil
}

// pickExpiration maps a request onto a listed expiration: the exact listed
// date if the target is listed, otherwise the next one after it, otherwise
// the nearest. Without any listed dates the target itself is returned and
// downstream selection reports the empty chain.
func (c *Calculator) pickExpiration(now time.Time, req Request, exps []time.Time) time.Time {
	target := req.Expiration
	if target.IsZero() {
		dte := req.DTE
		if dte <= 0 {
			dte = c.cfg.TargetDTE
		}
		target = now.AddDate(0, 0, dte)
	}

	if len(exps) == 0 {
		return target
	}
	if exp := marketdata.MatchDate(target, exps, marketdata.MatchExact); !exp.IsZero() {
		return exp
	}
	if exp := marketdata.MatchDate(target, exps, marketdata.MatchHigher); !exp.IsZero() {
		return exp
	}
	return marketdata.MatchDate(target, exps, marketdata.MatchNearest)
}

// selectWithRelaxation runs strike selection, widening the moneyness band
// once when the first pass cannot fill the legs. A second failure for lack
// of candidates is reported as selection failure per the taxonomy.
func (c *Calculator) selectWithRelaxation(req Request, rules []strategy.LegRule, chain marketdata.Chain, exps []time.Time, baseExp time.Time, now time.Time, spot, ivPct float64) ([]StrategyLeg, *SelectionTrace, error) {
	attempt := func(fc FilterConfig) ([]StrategyLeg, *SelectionTrace, error) {
		cands := c.buildCandidates(rules, chain, exps, baseExp, now, spot, fc)
		return SelectLegs(req.Symbol, req.Strategy, cands, spot, ivPct, c.cfg.Selector)
	}

	legs, trace, err := attempt(c.cfg.Filter)
	if err == nil {
		return legs, trace, nil
	}
	if errors.Is(err, ErrInvalidInput) {
		return nil, nil, err
	}

	c.log.Debug().Err(err).Str("symbol", req.Symbol).Msg("relaxing moneyness band")

	legs, trace, retryErr := attempt(c.cfg.Filter.Relaxed())
	if retryErr == nil {
		trace.BandRelaxed = true
		return legs, trace, nil
	}
	if errors.Is(retryErr, ErrNoLiquidContracts) && !errors.Is(retryErr, ErrStrikeSelectionFailed) {
		return nil, nil, fmt.Errorf("%w after relaxing moneyness band: %w", ErrStrikeSelectionFailed, retryErr)
	}
	return nil, nil, retryErr
}

// buildCandidates filters each leg's expiration and pairs the rule with its
// side of the surviving contracts.
func (c *Calculator) buildCandidates(rules []strategy.LegRule, chain marketdata.Chain, exps []time.Time, baseExp time.Time, now time.Time, spot float64, fc FilterConfig) []LegCandidates {
	filtered := map[int64]FilteredChain{}
	filterFor := func(exp time.Time) FilteredChain {
		key := exp.Unix()
		if f, ok := filtered[key]; ok {
			return f
		}
		f := FilterContracts(chain.ForExpiration(exp), spot, fc)
		filtered[key] = f
		return f
	}

	out := make([]LegCandidates, 0, len(rules))
	for _, rule := range rules {
		exp := baseExp
		if rule.DTEOffset > 0 {
			exp = c.pickExpiration(now, Request{Expiration: baseExp.AddDate(0, 0, rule.DTEOffset)}, exps)
			if !exp.After(baseExp) {
				if next := marketdata.MatchDate(baseExp, exps, marketdata.MatchHigher); !next.IsZero() {
					exp = next
				}
			}
		}

		out = append(out, LegCandidates{
			Rule:       rule,
			Candidates: filterFor(exp).Side(rule.OptionType),
			Expiration: exp,
			DTE:        float64(daysBetween(now, exp)),
		})
	}
	return out
}

// ivPercentile ranks the current IV against the symbol's own realized
// volatility history. Without bar data the neutral midpoint is returned.
func (c *Calculator) ivPercentile(ctx context.Context, symbol string, currentIV float64) float64 {
	bp, ok := c.provider.(marketdata.BarProvider)
	if !ok {
		return 50
	}

	now := c.now()
	bars, err := bp.GetDailyBars(ctx, symbol, now.AddDate(0, 0, -c.cfg.HistoryDays), now)
	if err != nil || len(bars) == 0 {
		if err != nil {
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("bars unavailable, neutral IV percentile")
		}
		return 50
	}

	window := 20
	rolling := pricing.RollingAnnualizedVolatility(marketdata.Closes(bars), window)
	if len(rolling) == 0 {
		return 50
	}

	history := make([]float64, len(rolling))
	for i, v := range rolling {
		history[i] = v * 100
	}
	return pricing.PercentileRank(currentIV, history)
}

// fallbackIV resolves the documented base-IV heuristic for a symbol when
// the chain carries no usable IVs.
func (c *Calculator) fallbackIV(symbol string) float64 {
	if iv, ok := c.cfg.Surface.BaseIV[symbol]; ok {
		return iv
	}
	if c.cfg.Surface.DefaultBaseIV > 0 {
		return c.cfg.Surface.DefaultBaseIV
	}
	return DefaultSurfaceConfig().DefaultBaseIV
}

// atmIV averages the implied vol of the few contracts nearest the money.
func atmIV(contracts []marketdata.Contract, spot float64) float64 {
	type entry struct {
		dist float64
		iv   float64
	}
	var entries []entry
	for _, c := range contracts {
		if c.ImpliedVol <= 0 {
			continue
		}
		entries = append(entries, entry{dist: math.Abs(c.Strike - spot), iv: c.ImpliedVol})
	}
	if len(entries) == 0 {
		return 0
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].dist < entries[j].dist })
	n := 4
	if len(entries) < n {
		n = len(entries)
	}
	var sum float64
	for _, e := range entries[:n] {
		sum += e.iv
	}
	return sum / float64(n)
}

// solveStraddleIV backs an at-the-money vol out of straddle quotes when the
// chain carries prices but no per-contract IVs. The strike is the listed
// strike nearest spot that quotes live on both sides.
func solveStraddleIV(contracts []marketdata.Contract, spot, dte, riskFree float64) float64 {
	if spot <= 0 || dte <= 0 {
		return 0
	}

	type mids struct{ call, put float64 }
	byStrike := map[float64]*mids{}
	for _, ct := range contracts {
		if !ct.HasLiveQuote() {
			continue
		}
		m := byStrike[ct.Strike]
		if m == nil {
			m = &mids{}
			byStrike[ct.Strike] = m
		}
		if ct.Type == marketdata.Call {
			m.call = ct.Mid()
		} else {
			m.put = ct.Mid()
		}
	}

	var strikes []float64
	for k, m := range byStrike {
		if m.call > 0 && m.put > 0 {
			strikes = append(strikes, k)
		}
	}
	sort.Float64s(strikes)

	k, ok := marketdata.ClosestStrike(strikes, spot)
	if !ok {
		return 0
	}

	m := byStrike[k]
	iv, err := pricing.ImpliedVolATM(spot, k, dte/365, riskFree, m.call, m.put)
	if err != nil {
		return 0
	}
	return iv * 100
}
