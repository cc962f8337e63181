package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeQuoteSource struct {
	mu      sync.Mutex
	quotes  map[string]*FinnhubQuote
	candles map[string]*Candles
	fail    map[string]bool
	calls   int
}

func (f *fakeQuoteSource) Quote(_ context.Context, symbol string) (*FinnhubQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[symbol] {
		return nil, errors.New("rate limited")
	}
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return &FinnhubQuote{}, nil
}

func (f *fakeQuoteSource) Candles(_ context.Context, symbol string, _, _ time.Time) (*Candles, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.candles[symbol]; ok {
		return c, nil
	}
	return nil, errors.New("no access")
}

var testStocks = []StockInfo{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
}

func newTestPoller(source QuoteSource, storage *LocalStorage) *QuotePoller {
	return NewQuotePoller(source, testStocks, storage, nil, testLogger, PollerOptions{
		BatchSize: 2,
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})
}

func TestRefreshKeepsCachedPriceOnFailure(t *testing.T) {
	storage := newTestStorage(t)
	source := &fakeQuoteSource{
		quotes: map[string]*FinnhubQuote{
			"AAPL": {Current: 190, Change: 2, PercentChange: 1.06, Timestamp: 1700000000},
			"MSFT": {Current: 410, Change: -1, PercentChange: -0.24, Timestamp: 1700000000},
		},
		fail: map[string]bool{},
	}
	poller := newTestPoller(source, storage)
	if err := poller.Refresh(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	source.fail["AAPL"] = true
	source.quotes["MSFT"].Current = 420
	if err := poller.Refresh(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	aapl, _ := poller.Quote("aapl")
	if aapl.Price == nil || *aapl.Price != 190 {
		t.Fatalf("failed fetch should keep cached price, got %v", aapl.Price)
	}
	msft, _ := poller.Quote("MSFT")
	if *msft.Price != 420 {
		t.Errorf("MSFT price = %v, want 420", *msft.Price)
	}
	nvda, _ := poller.Quote("NVDA")
	if nvda.Price != nil {
		t.Errorf("empty quote should leave NVDA unpriced, got %v", *nvda.Price)
	}

	// A new poller starts from the stored cache.
	reloaded := newTestPoller(&fakeQuoteSource{}, storage)
	cached, _ := reloaded.Quote("AAPL")
	if cached.Price == nil || *cached.Price != 190 {
		t.Fatalf("cache not restored, got %v", cached.Price)
	}
}

func TestRefreshNotifiesListeners(t *testing.T) {
	source := &fakeQuoteSource{quotes: map[string]*FinnhubQuote{"AAPL": {Current: 100, Timestamp: 1}}}
	poller := newTestPoller(source, nil)

	var got map[string]Quote
	poller.OnRefresh(func(q map[string]Quote) { got = q })
	if err := poller.Refresh(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got == nil || *got["AAPL"].Price != 100 {
		t.Fatalf("listener did not receive the table: %+v", got)
	}
	if source.calls != len(testStocks) {
		t.Errorf("expected one fetch per symbol, got %d", source.calls)
	}
}

func TestSparklineFallsBackToRandomWalk(t *testing.T) {
	poller := newTestPoller(&fakeQuoteSource{}, nil)

	line := poller.Sparkline(context.Background(), "AAPL")
	if len(line) != sparklinePoints {
		t.Fatalf("sparkline has %d points, want %d", len(line), sparklinePoints)
	}
	if line[0] != 100 {
		t.Errorf("random walk should start at 100, got %v", line[0])
	}
	for i := 1; i < len(line); i++ {
		if d := line[i] - line[i-1]; d < -1 || d > 1 {
			t.Errorf("step %d moved by %v", i, d)
		}
	}
}

type fakeCandleSource struct{ candles *Candles }

func (f fakeCandleSource) Candles(context.Context, string, time.Time, time.Time) (*Candles, error) {
	return f.candles, nil
}

func TestSparklineUsesFallbackCandles(t *testing.T) {
	poller := NewQuotePoller(&fakeQuoteSource{}, testStocks, nil, nil, testLogger, PollerOptions{
		Fallback: fakeCandleSource{candles: &Candles{Close: []float64{10, 11, 12}}},
	})

	line := poller.Sparkline(context.Background(), "AAPL")
	want := []float64{10, 10, 10, 10, 10, 11, 12}
	for i := range want {
		if line[i] != want[i] {
			t.Fatalf("sparkline = %v, want %v", line, want)
		}
	}
}

func TestPadSparkline(t *testing.T) {
	tests := []struct {
		closes []float64
		want   []float64
	}{
		{[]float64{5}, []float64{5, 5, 5, 5, 5, 5, 5}},
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, []float64{3, 4, 5, 6, 7, 8, 9}},
		{[]float64{1, 2, 3, 4, 5, 6, 7}, []float64{1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		got := padSparkline(tt.closes, 7)
		if len(got) != len(tt.want) {
			t.Fatalf("padSparkline(%v) = %v", tt.closes, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("padSparkline(%v) = %v, want %v", tt.closes, got, tt.want)
				break
			}
		}
	}
}

func TestRefreshStopsWhenCancelled(t *testing.T) {
	poller := NewQuotePoller(&fakeQuoteSource{}, testStocks, nil, nil, testLogger, PollerOptions{
		BatchSize:  1,
		BatchDelay: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := poller.Refresh(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestFinnhubClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/quote":
			if r.URL.Query().Get("symbol") == "BAD" {
				w.Write([]byte(`{"error":"You don't have access to this resource."}`))
				return
			}
			w.Write([]byte(`{"c":190.5,"d":1.5,"dp":0.79,"h":191,"l":188,"o":189,"pc":189,"t":1700000000}`))
		case "/stock/candle":
			if r.URL.Query().Get("resolution") != "D" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"s":"no_data"}`))
		}
	}))
	defer srv.Close()

	client := NewFinnhubClient(srv.URL, "key")
	ctx := context.Background()

	q, err := client.Quote(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if q.Current != 190.5 || q.PercentChange != 0.79 {
		t.Errorf("unexpected quote %+v", q)
	}

	if _, err := client.Quote(ctx, "BAD"); err == nil {
		t.Errorf("error payload should fail the fetch")
	}
	if _, err := client.Candles(ctx, "AAPL", time.Now().AddDate(0, 0, -7), time.Now()); err == nil {
		t.Errorf("no_data candles should fail the fetch")
	}
	if _, err := NewFinnhubClient(srv.URL, "wrong").Quote(ctx, "AAPL"); err == nil {
		t.Errorf("non-200 status should fail the fetch")
	}
}
