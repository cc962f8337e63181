package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

type YahooChart struct {
	Chart ChartData `json:"chart"`
}

type ChartData struct {
	Result []ChartResult `json:"result"`
	Error  interface{}   `json:"error"`
}

type ChartResult struct {
	Meta       ChartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators Indicators `json:"indicators"`
}

type ChartMeta struct {
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
}

type Indicators struct {
	Quote []ChartQuote `json:"quote"`
}

type ChartQuote struct {
	Close  []float64 `json:"close"`
	Volume []int64   `json:"volume"`
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
}

// CandleSource provides daily candles only.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error)
}

// YahooFinanceClient reads daily candles from the public chart endpoint. It
// backs the sparklines and the detail view when Finnhub has no candle data.
type YahooFinanceClient struct {
	client *resty.Client
}

func NewYahooFinanceClient(baseURL string) *YahooFinanceClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	return &YahooFinanceClient{client: client}
}

func (y *YahooFinanceClient) Candles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error) {
	resp, err := y.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(from.Unix(), 10),
			"period2":  strconv.FormatInt(to.Unix(), 10),
			"interval": "1d",
		}).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	var chart YahooChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("failed to parse chart for %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %v", chart.Chart.Error)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("no data returned for symbol %s", symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data available for %s", symbol)
	}

	candles := chartToCandles(symbol, result.Timestamp, result.Indicators.Quote[0])
	if len(candles.Close) == 0 {
		return nil, fmt.Errorf("no usable candles for %s", symbol)
	}
	return candles, nil
}

// chartToCandles keeps the bars that pass a basic sanity check.
func chartToCandles(symbol string, timestamps []int64, quote ChartQuote) *Candles {
	candles := &Candles{Symbol: symbol, Status: "ok"}
	for i, ts := range timestamps {
		if i >= len(quote.Close) || i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Volume) {
			continue
		}

		open, high, low, close := quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i]
		// null entries decode as zero
		if close == 0 || open == 0 || high == 0 || low == 0 {
			continue
		}
		// High should be >= other prices, Low should be <= other prices
		if high < open || high < close || low > open || low > close {
			continue
		}

		candles.Time = append(candles.Time, ts)
		candles.Open = append(candles.Open, open)
		candles.High = append(candles.High, high)
		candles.Low = append(candles.Low, low)
		candles.Close = append(candles.Close, close)
		candles.Volume = append(candles.Volume, float64(quote.Volume[i]))
	}
	return candles
}
