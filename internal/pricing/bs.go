// Package pricing implements the Black-Scholes valuation primitives the
// strategy engine is built on: option prices, greeks, implied-volatility
// solving, and the normal-distribution helpers shared with the probability
// model.
package pricing

import (
	"fmt"
	"math"
)

const sqrt2Pi = 2.5066282746310002

// BlackScholesPrice calculates the price of a European option.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option. If time to expiry or volatility is
//	zero or negative, returns the intrinsic value of the option.
func BlackScholesPrice(
	isCall bool,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if T <= 0 || sigma <= 0 {
		// intrinsic fallback
		if isCall {
			return math.Max(0, S-K)
		}
		return math.Max(0, K-S)
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)

	if isCall {
		return S*NormCDF(d1) - K*math.Exp(-r*T)*NormCDF(d2)
	}
	return K*math.Exp(-r*T)*NormCDF(-d2) - S*NormCDF(-d1)
}

// BlackScholesVega calculates the vega of a European option: the sensitivity
// of the option price to a change in volatility. Calls and puts share the
// same vega. Returns 0 if T or sigma is non-positive.
func BlackScholesVega(
	S float64,
	K float64,
	T float64,
	r float64,
	sigma float64,
) float64 {

	if T <= 0 || sigma <= 0 {
		return 0
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	return S * NormPDF(d1) * math.Sqrt(T)
}

// Greeks holds the first-order sensitivities of a single option.
// Theta is expressed per calendar day and Vega per vol point (1% of sigma),
// the units dashboards quote them in.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// BlackScholesGreeks calculates delta, gamma, theta and vega for a European
// option.
//
// At or past expiry (or with zero volatility) the option behaves like its
// intrinsic payoff: delta collapses to a step function (0.5 exactly at the
// money) and the remaining greeks are zero.
func BlackScholesGreeks(
	isCall bool,
	S, K, T, r, sigma float64,
) Greeks {

	if T <= 0 || sigma <= 0 {
		var delta float64
		switch {
		case S > K:
			delta = 1
		case S < K:
			delta = 0
		default:
			delta = 0.5
		}
		if !isCall {
			delta = delta - 1
		}
		return Greeks{Delta: delta}
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * T)

	delta := NormCDF(d1)
	if !isCall {
		delta = delta - 1
	}

	gamma := NormPDF(d1) / (S * sigma * sqrtT)

	theta := -(S * NormPDF(d1) * sigma) / (2 * sqrtT)
	if isCall {
		theta -= r * K * disc * NormCDF(d2)
	} else {
		theta += r * K * disc * NormCDF(-d2)
	}

	return Greeks{
		Delta: delta,
		Gamma: gamma,
		Theta: theta / 365.0,
		Vega:  S * NormPDF(d1) * sqrtT / 100.0,
	}
}

// ImpliedVol solves for the volatility that makes the Black-Scholes price of
// a single option match the given market price, using Newton-Raphson with
// vega as the derivative.
//
// Returns the implied volatility as a decimal (0.25 = 25%) or an error when
// the expiry is invalid, the price is non-positive, or the solver does not
// converge within its iteration budget.
func ImpliedVol(
	isCall bool,
	S, K, T, r float64,
	marketPrice float64,
) (float64, error) {

	if T <= 0 {
		return 0, fmt.Errorf("invalid expiry")
	}
	if marketPrice <= 0 {
		return 0, fmt.Errorf("invalid market price %.4f", marketPrice)
	}

	// Initial guess: 20%
	sigma := 0.20

	const (
		maxIter = 100
		tol     = 1e-6
	)

	for i := 0; i < maxIter; i++ {
		price := BlackScholesPrice(isCall, S, K, T, r, sigma)
		diff := price - marketPrice

		if math.Abs(diff) < tol {
			return sigma, nil
		}

		vega := BlackScholesVega(S, K, T, r, sigma)
		if vega < 1e-8 {
			break
		}

		sigma -= diff / vega

		// Guardrails
		if sigma <= 0 {
			sigma = 1e-4
		}
		if sigma > 5 {
			sigma = 5
		}
	}

	return 0, fmt.Errorf("implied vol did not converge")
}

// ImpliedVolATM estimates at-the-money implied volatility from a straddle
// quote: it solves against the average of the call and put prices at the
// given strike. Used when per-contract IVs are missing from a chain.
func ImpliedVolATM(
	S, K, T, r float64,
	callPrice, putPrice float64,
) (float64, error) {
	return ImpliedVol(true, S, K, T, r, (callPrice+putPrice)/2)
}

// StrikeFromDelta inverts the Black-Scholes delta to the strike that carries
// the target delta at the given spot, volatility and expiry.
//
// Parameters:
//   - S: spot price
//   - delta: target delta; positive magnitude, e.g. 0.30 for a 30-delta leg
//   - r: risk-free rate
//   - q: dividend yield
//   - sigma: volatility as a decimal
//   - T: time to expiry in years
//   - isCall: leg type; put strikes are solved from -|delta|
//
// With zero time or volatility there is nothing to invert and the spot is
// returned.
func StrikeFromDelta(
	S, delta, r, q, sigma, T float64,
	isCall bool,
) float64 {

	if T <= 0 || sigma <= 0 {
		return S
	}

	d := math.Abs(delta)
	if d >= 1 {
		d = 0.999
	}
	if d <= 0 {
		d = 0.001
	}

	var d1 float64
	if isCall {
		d1 = NormInv(d * math.Exp(q*T))
	} else {
		d1 = -NormInv(d * math.Exp(q*T))
	}

	return S * math.Exp(-(d1*sigma*math.Sqrt(T))+(r-q+0.5*sigma*sigma)*T)
}

// NormPDF calculates the probability density of the standard normal
// distribution at x: exp(-0.5 * x^2) / sqrt(2π).
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// NormCDF computes the cumulative distribution function of the standard
// normal distribution for a given value x using the error function.
// It returns a value between 0 and 1 representing the probability that a
// standard normal random variable is less than or equal to x.
func NormCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// NormInv computes the inverse of the standard normal cumulative distribution
// function (quantile function). It returns the value x such that the
// cumulative probability at x equals p.
//
// The function uses the Acklam rational approximation, accurate to roughly
// 1.15e-9 over the full range. Inputs outside (0, 1) are clamped to the
// nearest representable interior probability so callers never receive NaN.
//
// Example:
//
//	NormInv(0.975) // Returns approximately 1.96 (95% confidence level)
//	NormInv(0.025) // Returns approximately -1.96
func NormInv(p float64) float64 {
	if p <= 0 {
		p = 1e-12
	}
	if p >= 1 {
		p = 1 - 1e-12
	}

	// Coefficients
	a := []float64{
		-3.969683028665376e+01,
		2.209460984245205e+02,
		-2.759285104469687e+02,
		1.383577518672690e+02,
		-3.066479806614716e+01,
		2.506628277459239e+00,
	}

	b := []float64{
		-5.447609879822406e+01,
		1.615858368580409e+02,
		-1.556989798598866e+02,
		6.680131188771972e+01,
		-1.328068155288572e+01,
	}

	c := []float64{
		-7.784894002430293e-03,
		-3.223964580411365e-01,
		-2.400758277161838e+00,
		-2.549732539343734e+00,
		4.374664141464968e+00,
		2.938163982698783e+00,
	}

	d := []float64{
		7.784695709041462e-03,
		3.224671290700398e-01,
		2.445134137142996e+00,
		3.754408661907416e+00,
	}

	plow := 0.02425
	phigh := 1 - plow

	var q, r float64

	if p < plow {
		q = math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}

	if p > phigh {
		q = math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}

	q = p - 0.5
	r = q * q
	return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
		(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
}
