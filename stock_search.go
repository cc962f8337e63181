package main

import (
	"strings"
	"unicode"
)

type StockInfo struct {
	Symbol     string
	Name       string
	SearchText string // lower-cased symbol and name
}

// stockList is the fixed universe shown in the stocks table.
var stockList = []StockInfo{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "GOOGL", Name: "Alphabet Inc."},
	{Symbol: "AMZN", Name: "Amazon.com Inc."},
	{Symbol: "META", Name: "Meta Platforms Inc."},
	{Symbol: "TSLA", Name: "Tesla Inc."},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co."},
	{Symbol: "V", Name: "Visa Inc."},
	{Symbol: "JNJ", Name: "Johnson & Johnson"},
	{Symbol: "WMT", Name: "Walmart Inc."},
	{Symbol: "MA", Name: "Mastercard Inc."},
	{Symbol: "UNH", Name: "UnitedHealth Group Inc."},
	{Symbol: "HD", Name: "The Home Depot Inc."},
	{Symbol: "BAC", Name: "Bank of America Corp."},
	{Symbol: "PG", Name: "Procter & Gamble Co."},
	{Symbol: "DIS", Name: "The Walt Disney Co."},
	{Symbol: "ADBE", Name: "Adobe Inc."},
	{Symbol: "NFLX", Name: "Netflix Inc."},
	{Symbol: "CRM", Name: "Salesforce Inc."},
	{Symbol: "CSCO", Name: "Cisco Systems Inc."},
	{Symbol: "INTC", Name: "Intel Corporation"},
	{Symbol: "VZ", Name: "Verizon Communications Inc."},
	{Symbol: "KO", Name: "The Coca-Cola Co."},
	{Symbol: "PEP", Name: "PepsiCo Inc."},
	{Symbol: "CMCSA", Name: "Comcast Corporation"},
	{Symbol: "ABT", Name: "Abbott Laboratories"},
	{Symbol: "MRK", Name: "Merck & Co. Inc."},
	{Symbol: "PFE", Name: "Pfizer Inc."},
	{Symbol: "NKE", Name: "Nike Inc."},
	{Symbol: "TMO", Name: "Thermo Fisher Scientific Inc."},
	{Symbol: "COST", Name: "Costco Wholesale Corp."},
	{Symbol: "DHR", Name: "Danaher Corporation"},
	{Symbol: "NEE", Name: "NextEra Energy Inc."},
	{Symbol: "T", Name: "AT&T Inc."},
	{Symbol: "LLY", Name: "Eli Lilly and Co."},
	{Symbol: "PYPL", Name: "PayPal Holdings Inc."},
	{Symbol: "UNP", Name: "Union Pacific Corporation"},
	{Symbol: "MS", Name: "Morgan Stanley"},
	{Symbol: "RTX", Name: "Raytheon Technologies Corp."},
	{Symbol: "C", Name: "Citigroup Inc."},
	{Symbol: "SCHW", Name: "Charles Schwab Corp."},
	{Symbol: "AMD", Name: "Advanced Micro Devices Inc."},
	{Symbol: "IBM", Name: "International Business Machines"},
	{Symbol: "GS", Name: "Goldman Sachs Group Inc."},
	{Symbol: "UBER", Name: "Uber Technologies Inc."},
	{Symbol: "SBUX", Name: "Starbucks Corporation"},
	{Symbol: "GE", Name: "General Electric Co."},
	{Symbol: "BA", Name: "Boeing Co."},
	{Symbol: "CVX", Name: "Chevron Corporation"},
	{Symbol: "ABNB", Name: "Airbnb Inc."},
	{Symbol: "SNOW", Name: "Snowflake Inc."},
	{Symbol: "ORCL", Name: "Oracle Corporation"},
	{Symbol: "COIN", Name: "Coinbase Global Inc."},
	{Symbol: "SHOP", Name: "Shopify Inc."},
	{Symbol: "SONY", Name: "Sony Group Corp."},
	{Symbol: "BABA", Name: "Alibaba Group"},
	{Symbol: "SAP", Name: "SAP SE"},
	{Symbol: "TM", Name: "Toyota Motor Corp."},
}

type StockSearchService struct {
	stocks []StockInfo
}

func NewStockSearchService(stocks []StockInfo) *StockSearchService {
	indexed := make([]StockInfo, 0, len(stocks))
	for _, s := range stocks {
		s.SearchText = strings.ToLower(s.Symbol + " " + s.Name)
		indexed = append(indexed, s)
	}
	return &StockSearchService{stocks: indexed}
}

// Lookup returns the list entry for symbol.
func (s *StockSearchService) Lookup(symbol string) (StockInfo, bool) {
	symbol = normalizeSymbol(symbol)
	for _, stock := range s.stocks {
		if stock.Symbol == symbol {
			return stock, true
		}
	}
	return StockInfo{}, false
}

func (s *StockSearchService) Symbols() []StockInfo {
	return append([]StockInfo(nil), s.stocks...)
}

// Search returns up to limit stocks matching query. Exact symbol matches
// come first.
func (s *StockSearchService) Search(query string, limit int) []StockSearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []StockSearchResult{}
	}

	results := []StockSearchResult{}
	if stock, ok := s.Lookup(query); ok {
		results = append(results, StockSearchResult{Symbol: stock.Symbol, Name: stock.Name})
	}

	for _, stock := range s.stocks {
		if len(results) >= limit {
			break
		}
		if strings.EqualFold(stock.Symbol, query) {
			continue
		}
		if s.matchesQuery(stock, query) {
			results = append(results, StockSearchResult{Symbol: stock.Symbol, Name: stock.Name})
		}
	}
	return results
}

func (s *StockSearchService) matchesQuery(stock StockInfo, query string) bool {
	if strings.Contains(stock.SearchText, query) {
		return true
	}
	// initials, e.g. "boa" for Bank of America
	if len(query) >= 2 {
		return s.matchesInitials(stock.Name, query)
	}
	return false
}

func (s *StockSearchService) matchesInitials(name, query string) bool {
	var initials []rune
	for _, word := range strings.Fields(name) {
		runes := []rune(word)
		if len(runes) > 0 && unicode.IsLetter(runes[0]) {
			initials = append(initials, unicode.ToLower(runes[0]))
		}
	}
	return strings.HasPrefix(string(initials), query)
}
