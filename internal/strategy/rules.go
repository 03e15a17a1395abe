package strategy

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/pricing"
)

//
// ==========================
// Error taxonomy
// ==========================
//

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	ErrInvalidStrikeRule  = errors.New("invalid strike rule")
	ErrLegIndexOutOfRange = errors.New("leg index out of range")
)

//
// ==========================
// Leg rules
// ==========================
//

// Side is the traded direction of a leg.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// SnapMode controls how a resolved target price snaps to a listed strike.
type SnapMode int

const (
	// SnapNearest takes the listed strike closest to the target.
	SnapNearest SnapMode = iota
	// SnapFloor takes the largest listed strike at or below the target.
	// Percentage-OTM targets snap this way on both sides.
	SnapFloor
	// SnapBeyond takes the nearest strike at or past the target moving away
	// from the money: upward for calls, downward for puts. Protective wings
	// snap this way so the wing never lands inside its short strike.
	SnapBeyond
)

// LegRule declares one leg of a strategy as intent: which side and option
// type to trade and where its strike should land. The strike rule grammar:
//
//	ATM              the money
//	ATM:+10 ATM:-5%  absolute or percentage offset from spot
//	OTM:5%           out of the money by 5%: above spot for calls, below for puts
//	DELTA:0.30       the strike carrying the target delta
//	ABS:100          a literal strike
//	{LEG1.STRIKE}+10 arithmetic over previously resolved legs
//
// Rules produce target prices; snapping targets to listed strikes is the
// selector's job.
type LegRule struct {
	Side       Side
	OptionType marketdata.ContractType
	StrikeRule string
	Snap       SnapMode
	Qty        int // defaults to one
	DTEOffset  int // extra calendar days past the base expiration, for calendar legs
}

// PriorLeg carries the already-resolved values a later rule may reference.
type PriorLeg struct {
	Strike  float64
	Premium float64
}

// RuleContext supplies the market inputs strike rules resolve against.
type RuleContext struct {
	Spot  float64
	IVPct float64    // annualized IV in vol points, for DELTA rules
	DTE   float64    // days to expiry, for DELTA rules
	Prior []PriorLeg // legs resolved earlier in the same strategy
}

var legRefRe = regexp.MustCompile(`\{LEG(\d)\.(STRIKE|PREMIUM)\}`)

// ResolveTarget converts a strike rule into a target price.
//
// Supported formats are documented on LegRule. The returned value is a raw
// target, not necessarily a listed strike.
func ResolveTarget(rule string, optType marketdata.ContractType, ctx RuleContext) (float64, error) {
	rule = strings.TrimSpace(strings.ToUpper(rule))

	if ctx.Spot <= 0 {
		return 0, fmt.Errorf("%w: non-positive spot", ErrInvalidStrikeRule)
	}

	if rule == "ATM" {
		return ctx.Spot, nil
	}

	if offset, ok := strings.CutPrefix(rule, "ATM:"); ok {
		return applyOffset(offset, ctx.Spot)
	}

	if pctStr, ok := strings.CutPrefix(rule, "OTM:"); ok {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(pctStr, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, rule)
		}
		if optType == marketdata.Put {
			return ctx.Spot * (1 - pct/100), nil
		}
		return ctx.Spot * (1 + pct/100), nil
	}

	if deltaStr, ok := strings.CutPrefix(rule, "DELTA:"); ok {
		targetDelta, err := strconv.ParseFloat(deltaStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid DELTA value: %w", err)
		}
		sigma := ctx.IVPct / 100
		T := ctx.DTE / 365.0
		return pricing.StrikeFromDelta(ctx.Spot, targetDelta, 0.02, 0.0, sigma, T, optType == marketdata.Call), nil
	}

	if absStr, ok := strings.CutPrefix(rule, "ABS:"); ok {
		strike, err := strconv.ParseFloat(absStr, 64)
		if err != nil || strike <= 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, rule)
		}
		return strike, nil
	}

	if strings.Contains(rule, "{LEG") {
		return evaluateLegExpression(rule, ctx.Prior)
	}

	return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, rule)
}

// applyOffset applies an absolute or percentage offset to a price.
func applyOffset(offset string, spot float64) (float64, error) {
	if strings.HasSuffix(offset, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(offset, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: offset %s", ErrInvalidStrikeRule, offset)
		}
		return math.Round((spot+spot*pct/100)*100) / 100, nil
	}

	abs, err := strconv.ParseFloat(offset, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: offset %s", ErrInvalidStrikeRule, offset)
	}

	return math.Round((spot+abs)*100) / 100, nil
}

// evaluateLegExpression evaluates arithmetic referencing prior legs, e.g.
// "{LEG1.STRIKE}-10" or "{LEG2.STRIKE}+{LEG2.PREMIUM}".
func evaluateLegExpression(expr string, prior []PriorLeg) (float64, error) {

	matches := legRefRe.FindAllStringSubmatch(expr, -1)
	if matches == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, expr)
	}

	evalStr := expr

	for _, match := range matches {
		idx, _ := strconv.Atoi(match[1])
		idx-- // LEG1 is index 0

		if idx < 0 || idx >= len(prior) {
			return 0, fmt.Errorf("%w: %s", ErrLegIndexOutOfRange, match[0])
		}

		var value float64
		if match[2] == "STRIKE" {
			value = prior[idx].Strike
		} else {
			value = prior[idx].Premium
		}

		evalStr = strings.Replace(evalStr, match[0], fmt.Sprintf("%f", value), 1)
	}

	evalExpr, err := govaluate.NewEvaluableExpression(evalStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, expr)
	}

	result, err := evalExpr.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, expr)
	}

	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, expr)
	}

	return f, nil
}
