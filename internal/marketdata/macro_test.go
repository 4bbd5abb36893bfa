package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantlab/papertrader/internal/signal"
)

func TestIndicatorsUseSignalKeys(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := "2.1"
		if r.URL.Query().Get("function") == "CPI" {
			value = "9.0"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"date":"2026-07-01","value":"` + value + `"}]}`))
	}))
	defer ts.Close()

	c := NewMacroClient(ts.URL, "test-key", time.Second)
	got, err := c.Indicators(context.Background())
	if err != nil {
		t.Fatalf("indicators: %v", err)
	}
	if got[signal.MacroFedFundsRate] != 2.1 {
		t.Errorf("fed funds = %v, want 2.1 under key %q", got[signal.MacroFedFundsRate], signal.MacroFedFundsRate)
	}
	if got[signal.MacroCPI] != 9.0 {
		t.Errorf("cpi = %v, want 9 under key %q", got[signal.MacroCPI], signal.MacroCPI)
	}

	// The hot inflation print fetched above must reach the scorer as a
	// bearish tilt rather than being dropped on a key mismatch.
	out, err := signal.NewMacro().Score(context.Background(), "AAPL", signal.Context{Macro: got})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.Score >= 0 {
		t.Errorf("macro score = %.2f, want bearish (< 0) with cpi at 9", out.Score)
	}
}

func TestIndicatorsEmptyWithoutAPIKey(t *testing.T) {
	c := NewMacroClient("", "", time.Second)
	got, err := c.Indicators(context.Background())
	if err != nil {
		t.Fatalf("indicators: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("indicators = %v, want empty without an API key", got)
	}
}
