package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const chartFixture = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "regularMarketPrice": 190.1, "chartPreviousClose": 188.0},
      "timestamp": [1700000000, 1700086400, 1700172800, 1700259200],
      "indicators": {"quote": [{
        "open":   [189.0, null, 191.0, 190.0],
        "high":   [191.0, 192.0, 190.5, 192.0],
        "low":    [188.5, 189.0, 189.5, 189.0],
        "close":  [190.0, 191.0, 190.0, 191.5],
        "volume": [1000, 2000, 3000, 4000]
      }]}
    }],
    "error": null
  }
}`

func TestYahooCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			if r.URL.Query().Get("interval") != "1d" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(chartFixture))
		case "/v8/finance/chart/NONE":
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewYahooFinanceClient(srv.URL)
	to := time.Unix(1700300000, 0)

	candles, err := client.Candles(context.Background(), "AAPL", to.AddDate(0, 0, -7), to)
	if err != nil {
		t.Fatal(err)
	}
	// the null open and the bar with high below open are dropped
	if len(candles.Close) != 2 || candles.Time[0] != 1700000000 || candles.Time[1] != 1700259200 {
		t.Fatalf("candles = %+v", candles)
	}
	if candles.Volume[1] != 4000 || candles.Status != "ok" {
		t.Errorf("unexpected candle data %+v", candles)
	}

	if _, err := client.Candles(context.Background(), "NONE", to.AddDate(0, 0, -7), to); err == nil {
		t.Errorf("chart error should fail the fetch")
	}
	if _, err := client.Candles(context.Background(), "MISSING", to.AddDate(0, 0, -7), to); err == nil {
		t.Errorf("404 should fail the fetch")
	}
}
