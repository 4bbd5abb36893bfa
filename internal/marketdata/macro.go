package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/signal"
)

// MacroClient fetches macro indicators (currently the fed funds rate) from
// Alpha Vantage. Without an API key it returns an empty indicator set and the
// macro slot scores neutral.
type MacroClient struct {
	client *resty.Client
	apiKey string
}

// NewMacroClient creates a MacroClient for the given API key (may be empty).
func NewMacroClient(baseURL, apiKey string, timeout time.Duration) *MacroClient {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &MacroClient{client: client, apiKey: apiKey}
}

type macroSeriesResponse struct {
	Data []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"data"`
}

// Indicators returns the latest macro indicator values keyed by name.
func (m *MacroClient) Indicators(ctx context.Context) (map[string]float64, error) {
	if m.apiKey == "" {
		return map[string]float64{}, nil
	}

	// Keyed by the names the macro signal scorer reads, so the values
	// actually tilt its score.
	out := map[string]float64{}
	for name, function := range map[string]string{
		signal.MacroFedFundsRate: "FEDERAL_FUNDS_RATE",
		signal.MacroCPI:          "CPI",
	} {
		var series macroSeriesResponse
		resp, err := m.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"function": function,
				"apikey":   m.apiKey,
			}).
			SetResult(&series).
			Get("/query")
		if err != nil {
			return nil, fmt.Errorf("macro: fetch %s: %w", name, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("macro: fetch %s: status %d: %w", name, resp.StatusCode(), domain.ErrProviderUnavailable)
		}
		if len(series.Data) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(series.Data[0].Value, 64)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}
