package signal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/quantlab/papertrader/internal/domain"
)

// Sentiment scores a symbol from recent headlines. When an external scoring
// endpoint is configured it is treated as a black box returning score and
// confidence; without one a keyword lexicon keeps the slot alive. Remote
// results are memoized per headline set until the next Refresh.
type Sentiment struct {
	http     *resty.Client
	endpoint string

	mu    sync.Mutex
	memo  map[string]scoredText
}

type scoredText struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

func NewSentiment(endpoint string) *Sentiment {
	return &Sentiment{
		http:     resty.New(),
		endpoint: endpoint,
		memo:     make(map[string]scoredText),
	}
}

func (s *Sentiment) Source() domain.SignalSource { return domain.SignalSentiment }

// Refresh drops the memo so stale headline scores age out between cycles.
func (s *Sentiment) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.memo = make(map[string]scoredText)
	s.mu.Unlock()
	return nil
}

func (s *Sentiment) Score(ctx context.Context, symbol string, in Context) (domain.SignalOutput, error) {
	if len(in.Headlines) == 0 {
		return domain.Neutral(domain.SignalSentiment), nil
	}

	key := symbol + "|" + strings.Join(in.Headlines, "\x1f")
	s.mu.Lock()
	cached, ok := s.memo[key]
	s.mu.Unlock()
	if ok {
		return domain.SignalOutput{Source: domain.SignalSentiment, Score: cached.Score, Confidence: cached.Confidence}, nil
	}

	var st scoredText
	var err error
	if s.endpoint != "" {
		st, err = s.remote(ctx, symbol, in.Headlines)
		if err != nil {
			return domain.SignalOutput{}, err
		}
	} else {
		st = lexiconScore(in.Headlines)
	}

	s.mu.Lock()
	s.memo[key] = st
	s.mu.Unlock()

	return domain.SignalOutput{Source: domain.SignalSentiment, Score: st.Score, Confidence: st.Confidence}, nil
}

func (s *Sentiment) remote(ctx context.Context, symbol string, headlines []string) (scoredText, error) {
	var out scoredText
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"symbol": symbol, "headlines": headlines}).
		SetResult(&out).
		Post(s.endpoint)
	if err != nil {
		return scoredText{}, fmt.Errorf("sentiment: score request: %w", err)
	}
	if resp.IsError() {
		return scoredText{}, fmt.Errorf("sentiment: score request: status %d: %w", resp.StatusCode(), domain.ErrProviderUnavailable)
	}
	out.Score = clamp(out.Score, -1, 1)
	out.Confidence = clamp(out.Confidence, 0, 1)
	return out, nil
}

var (
	bullishWords = []string{"beat", "beats", "surge", "soar", "rally", "upgrade", "record", "growth", "strong", "outperform", "buyback", "raises guidance"}
	bearishWords = []string{"miss", "misses", "plunge", "slump", "downgrade", "lawsuit", "probe", "layoff", "recall", "weak", "cuts guidance", "bankruptcy"}
)

func lexiconScore(headlines []string) scoredText {
	hits := 0
	net := 0
	for _, h := range headlines {
		lower := strings.ToLower(h)
		for _, w := range bullishWords {
			if strings.Contains(lower, w) {
				net++
				hits++
			}
		}
		for _, w := range bearishWords {
			if strings.Contains(lower, w) {
				net--
				hits++
			}
		}
	}
	if hits == 0 {
		return scoredText{}
	}
	return scoredText{
		Score:      clamp(float64(net)/float64(hits), -1, 1),
		Confidence: clamp(float64(hits)/5, 0, 0.8),
	}
}
