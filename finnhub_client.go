package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// FinnhubQuote is the /quote payload.
type FinnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
	Error         string  `json:"error"`
}

type finnhubCandles struct {
	Candles
	Error string `json:"error"`
}

// QuoteSource fetches live market data for one symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*FinnhubQuote, error)
	Candles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error)
}

type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

func NewFinnhubClient(baseURL, apiKey string) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &FinnhubClient{client: client, apiKey: apiKey}
}

func (f *FinnhubClient) Quote(ctx context.Context, symbol string) (*FinnhubQuote, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  f.apiKey,
		}).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	var quote FinnhubQuote
	if err := json.Unmarshal(resp.Body(), &quote); err != nil {
		return nil, fmt.Errorf("failed to parse quote for %s: %w", symbol, err)
	}
	if quote.Error != "" {
		return nil, fmt.Errorf("Finnhub API error for %s: %s", symbol, quote.Error)
	}
	return &quote, nil
}

func (f *FinnhubClient) Candles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"resolution": "D",
			"from":       strconv.FormatInt(from.Unix(), 10),
			"to":         strconv.FormatInt(to.Unix(), 10),
			"token":      f.apiKey,
		}).
		Get("/stock/candle")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	var payload finnhubCandles
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse candles for %s: %w", symbol, err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("Finnhub API error for %s: %s", symbol, payload.Error)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("no candle data for %s (status %q)", symbol, payload.Status)
	}

	candles := payload.Candles
	candles.Symbol = symbol
	return &candles, nil
}
