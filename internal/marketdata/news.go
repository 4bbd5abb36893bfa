package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quantlab/papertrader/internal/domain"
)

// NewsClient fetches recent headlines from NewsAPI.org. Without an API key it
// degrades to a single stub headline so the sentiment slot still runs.
type NewsClient struct {
	client *resty.Client
	apiKey string
}

// NewNewsClient creates a NewsClient for the given API key (may be empty).
func NewNewsClient(baseURL, apiKey string, timeout time.Duration) *NewsClient {
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &NewsClient{client: client, apiKey: apiKey}
}

type newsResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

// Headlines returns up to limit recent headline strings for the symbol.
func (n *NewsClient) Headlines(ctx context.Context, symbol string, limit int) ([]string, error) {
	symbol = NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 15
	}
	if n.apiKey == "" {
		return []string{fmt.Sprintf("Market update for %s.", symbol)}, nil
	}

	var out newsResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        symbol,
			"from":     time.Now().AddDate(0, 0, -2).Format("2006-01-02"),
			"sortBy":   "publishedAt",
			"language": "en",
			"pageSize": fmt.Sprintf("%d", limit),
			"apiKey":   n.apiKey,
		}).
		SetResult(&out).
		Get("/everything")
	if err != nil {
		return nil, fmt.Errorf("news: fetch %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("news: fetch %s: status %d: %w", symbol, resp.StatusCode(), domain.ErrProviderUnavailable)
	}

	headlines := make([]string, 0, len(out.Articles))
	for _, a := range out.Articles {
		if a.Title != "" {
			headlines = append(headlines, a.Title)
		}
	}
	return headlines, nil
}
