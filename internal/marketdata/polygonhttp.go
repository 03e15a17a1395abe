// Polygon-compatible Provider speaking the REST API directly.
//
// Design notes:
//   - Raw HTTP calls, no vendor SDK
//   - Supports pagination, rate-limit retries, and fallback providers
//   - Contract IVs arrive as decimals and are stored in vol points
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// PolygonProvider implements Provider against a Polygon-style REST API.
type PolygonProvider struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	secondary Provider
}

// chainSnapshotResp models the paginated option-chain snapshot response.
type chainSnapshotResp struct {
	Results []struct {
		Details struct {
			ContractType   string  `json:"contract_type"`
			ExpirationDate string  `json:"expiration_date"`
			StrikePrice    float64 `json:"strike_price"`
			Ticker         string  `json:"ticker"`
		} `json:"details"`
		Greeks struct {
			Delta float64 `json:"delta"`
			Gamma float64 `json:"gamma"`
			Theta float64 `json:"theta"`
			Vega  float64 `json:"vega"`
		} `json:"greeks"`
		ImpliedVolatility float64 `json:"implied_volatility"`
		OpenInterest      float64 `json:"open_interest"`
		LastQuote         struct {
			Bid float64 `json:"bid"`
			Ask float64 `json:"ask"`
		} `json:"last_quote"`
		Day struct {
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		} `json:"day"`
		UnderlyingAsset struct {
			Price float64 `json:"price"`
		} `json:"underlying_asset"`
	} `json:"results"`
	Status  string `json:"status"`
	NextURL string `json:"next_url"`
}

// NewPolygonProvider constructs a Polygon-backed provider with an HTTP client
// tuned for API polling: pooled connections, HTTP/2, gzip decompression.
func NewPolygonProvider(apiKey string, log zerolog.Logger) *PolygonProvider {
	return &PolygonProvider{
		apiKey:  apiKey,
		baseURL: "https://api.polygon.io",
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		log: log.With().Str("provider", "polygon").Logger(),
	}
}

// WithSecondary installs a fallback provider consulted when a request fails.
func (p *PolygonProvider) WithSecondary(s Provider) *PolygonProvider {
	p.secondary = s
	return p
}

// WithBaseURL overrides the API root, used by tests against httptest servers.
func (p *PolygonProvider) WithBaseURL(u string) *PolygonProvider {
	p.baseURL = u
	return p
}

// Secondary returns the configured fallback provider, if any.
func (p *PolygonProvider) Secondary() Provider {
	return p.secondary
}

// GetStockQuote returns the latest close for the symbol from the previous-day
// aggregate endpoint.
func (p *PolygonProvider) GetStockQuote(ctx context.Context, symbol string) (Quote, error) {
	reqURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?adjusted=true&apiKey=%s",
		p.baseURL, symbol, p.apiKey)

	var body struct {
		Results []struct {
			Close     float64 `json:"c"`
			Timestamp int64   `json:"t"`
		} `json:"results"`
		Status string `json:"status"`
	}

	if err := p.getJSON(ctx, reqURL, &body); err != nil {
		if p.secondary != nil {
			p.log.Debug().Str("symbol", symbol).Msg("quote falling back to secondary")
			return p.secondary.GetStockQuote(ctx, symbol)
		}
		return Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if len(body.Results) == 0 || body.Results[0].Close <= 0 {
		if p.secondary != nil {
			return p.secondary.GetStockQuote(ctx, symbol)
		}
		return Quote{}, fmt.Errorf("quote %s: empty result", symbol)
	}

	r := body.Results[0]
	return Quote{
		Symbol: symbol,
		Price:  r.Close,
		AsOf:   time.UnixMilli(r.Timestamp).UTC(),
	}, nil
}

// GetChain fetches the full option-chain snapshot for the underlying across
// all listed expirations, following pagination cursors.
func (p *PolygonProvider) GetChain(ctx context.Context, symbol string) (Chain, error) {
	contracts, spot, err := p.fetchSnapshot(ctx, symbol, time.Time{})
	if err != nil {
		if p.secondary != nil {
			p.log.Debug().Str("symbol", symbol).Msg("chain falling back to secondary")
			return p.secondary.GetChain(ctx, symbol)
		}
		return Chain{}, fmt.Errorf("chain %s: %w", symbol, err)
	}

	if spot <= 0 {
		// snapshot omitted the underlying price, ask the quote endpoint
		q, qerr := p.GetStockQuote(ctx, symbol)
		if qerr != nil {
			return Chain{}, fmt.Errorf("chain %s: no underlying price: %w", symbol, qerr)
		}
		spot = q.Price
	}

	return Chain{
		Symbol:          symbol,
		UnderlyingPrice: spot,
		Contracts:       contracts,
		AsOf:            time.Now().UTC(),
	}, nil
}

// GetChainSnapshot fetches the contracts for a single expiration.
func (p *PolygonProvider) GetChainSnapshot(ctx context.Context, symbol string, expiration time.Time) ([]Contract, error) {
	contracts, _, err := p.fetchSnapshot(ctx, symbol, expiration)
	if err != nil {
		if p.secondary != nil {
			return p.secondary.GetChainSnapshot(ctx, symbol, expiration)
		}
		return nil, fmt.Errorf("chain snapshot %s %s: %w",
			symbol, expiration.Format("2006-01-02"), err)
	}
	return contracts, nil
}

// GetDailyBars retrieves daily OHLCV bars for the symbol.
func (p *PolygonProvider) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	reqURL := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		p.baseURL,
		symbol,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		p.apiKey,
	)

	var body struct {
		Results []struct {
			Open      float64 `json:"o"`
			Close     float64 `json:"c"`
			High      float64 `json:"h"`
			Low       float64 `json:"l"`
			Volume    float64 `json:"v"`
			Timestamp int64   `json:"t"` // epoch millis
		} `json:"results"`
		Status string `json:"status"`
	}

	if err := p.getJSON(ctx, reqURL, &body); err != nil {
		return nil, fmt.Errorf("daily bars %s: %w", symbol, err)
	}

	out := make([]Bar, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, Bar{
			Date:  time.UnixMilli(r.Timestamp).UTC(),
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Vol:   r.Volume,
		})
	}
	return out, nil
}

// fetchSnapshot walks the paginated snapshot endpoint. A zero expiration
// fetches every listing. Returns the contracts and the underlying price when
// the snapshot carries one.
func (p *PolygonProvider) fetchSnapshot(ctx context.Context, symbol string, expiration time.Time) ([]Contract, float64, error) {
	base, err := url.Parse(fmt.Sprintf("%s/v3/snapshot/options/%s", p.baseURL, symbol))
	if err != nil {
		return nil, 0, err
	}

	query := base.Query()
	query.Set("limit", "250")
	if !expiration.IsZero() {
		query.Set("expiration_date", expiration.Format("2006-01-02"))
	}
	query.Set("apiKey", p.apiKey)
	base.RawQuery = query.Encode()

	var (
		out  []Contract
		spot float64
	)

	reqURL := base.String()
	for reqURL != "" {
		var page chainSnapshotResp
		if err := p.getJSON(ctx, reqURL, &page); err != nil {
			return nil, 0, err
		}

		p.log.Trace().Int("contracts", len(page.Results)).Msg("snapshot page")

		for _, r := range page.Results {
			exp, err := time.Parse("2006-01-02", r.Details.ExpirationDate)
			if err != nil {
				continue // skip malformed expiry dates
			}
			ct := Call
			if r.Details.ContractType == "put" {
				ct = Put
			}
			if r.UnderlyingAsset.Price > 0 {
				spot = r.UnderlyingAsset.Price
			}
			out = append(out, Contract{
				Symbol:       r.Details.Ticker,
				Underlying:   symbol,
				Type:         ct,
				Strike:       r.Details.StrikePrice,
				Bid:          r.LastQuote.Bid,
				Ask:          r.LastQuote.Ask,
				Last:         r.Day.Close,
				Volume:       int64(r.Day.Volume),
				OpenInterest: int64(r.OpenInterest),
				ImpliedVol:   r.ImpliedVolatility * 100, // decimal -> vol points
				Delta:        r.Greeks.Delta,
				Gamma:        r.Greeks.Gamma,
				Theta:        r.Greeks.Theta,
				Vega:         r.Greeks.Vega,
				Expiration:   exp,
			})
		}

		reqURL = page.NextURL
		if reqURL != "" {
			// cursor URLs come back without the key
			reqURL += "&apiKey=" + p.apiKey
		}
	}

	return out, spot, nil
}

// getJSON executes a GET with rate-limit handling and decodes the body.
//
// On HTTP 429 it sleeps until the next minute boundary (the API buckets its
// per-minute quota on wall-clock minutes) and retries, unless the context
// ends first.
func (p *PolygonProvider) getJSON(ctx context.Context, reqURL string, v any) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			now := time.Now()
			sleep := time.Until(now.Truncate(time.Minute).Add(time.Minute))
			p.log.Info().Dur("sleep", sleep).Msg("rate limit hit")

			select {
			case <-time.After(sleep):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			var dbg struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(body, &dbg)
			return fmt.Errorf("status %d: %s", resp.StatusCode, dbg.Message)
		}

		if len(body) == 0 {
			return fmt.Errorf("empty response body")
		}

		return json.Unmarshal(body, v)
	}
}
