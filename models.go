package main

import (
	"time"
)

// Holding is one portfolio line item.
type Holding struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avgPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percentChange"`
}

type Quote struct {
	Symbol        string     `json:"symbol"`
	Name          string     `json:"name"`
	Price         *float64   `json:"price"`
	Change        *float64   `json:"change"`
	PercentChange *float64   `json:"percentChange"`
	LastUpdated   *time.Time `json:"lastUpdated"`
	Sparkline     []float64  `json:"sparkline,omitempty"`
}

// Candles mirrors the Finnhub candle payload used by the stock detail view.
type Candles struct {
	Symbol string    `json:"symbol"`
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
	Status string    `json:"s"`
}

const (
	AuthorUser      = "user"
	AuthorAssistant = "ai"
)

type ChatMessage struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
	ShowChart   *bool     `json:"showChart,omitempty"`
}

// RendersChart reports whether the reply asked for a chart block.
func (m ChatMessage) RendersChart() bool {
	return m.ShowChart != nil && *m.ShowChart
}

type ChatMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

type UserProfile struct {
	UserID         string     `json:"userId"`
	Email          string     `json:"email,omitempty"`
	DisplayName    string     `json:"displayName,omitempty"`
	IsPro          bool       `json:"isPro"`
	FreeTrialCount int        `json:"freeTrialCount"`
	ProUpgradedAt  *time.Time `json:"proUpgradedAt,omitempty"`
}

type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UserID    *string   `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Wire formats of the chat backend.

type FreeChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
}

type FreeChatResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
	ShowChart   *bool    `json:"showChart,omitempty"`
}

type ProChatRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

type ProChatResponse struct {
	Answer      string   `json:"answer"`
	Suggestions []string `json:"suggestions,omitempty"`
	ShowChart   *bool    `json:"showChart,omitempty"`
}

type PortfolioRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

type PortfolioResponse struct {
	Success bool              `json:"success"`
	Data    *PortfolioSummary `json:"data"`
	Message string            `json:"message"`
}

// API request bodies.

type AddHoldingRequest struct {
	Symbol        string   `json:"symbol" binding:"required"`
	Name          string   `json:"name"`
	Quantity      float64  `json:"quantity"`
	AvgPrice      *float64 `json:"avgPrice"`
	CurrentPrice  *float64 `json:"currentPrice"`
	Change        *float64 `json:"change"`
	PercentChange *float64 `json:"percentChange"`
}

type ReplacePortfolioRequest struct {
	Stocks []Holding `json:"stocks"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type SignInRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	// MergeGuest folds the caller's guest portfolio into the signed-in one.
	MergeGuest bool `json:"mergeGuest"`
}

type SendAlertRequest struct {
	Title  string `json:"title" binding:"required"`
	Body   string `json:"body"`
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type SetProRequest struct {
	IsPro bool `json:"isPro"`
}

type StockSearchResult struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}
