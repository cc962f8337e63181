package main

import "testing"

func TestStockSearch(t *testing.T) {
	search := NewStockSearchService(stockList)

	tests := []struct {
		query string
		first string
	}{
		{"aapl", "AAPL"},
		{"V", "V"},
		{"micro", "MSFT"},
		{"boa", "BAC"},
	}
	for _, tt := range tests {
		results := search.Search(tt.query, searchLimit)
		if len(results) == 0 || results[0].Symbol != tt.first {
			t.Errorf("Search(%q) = %+v, want %s first", tt.query, results, tt.first)
		}
	}

	if got := search.Search("   ", searchLimit); len(got) != 0 {
		t.Errorf("blank query returned %+v", got)
	}
	if got := search.Search("inc", 3); len(got) != 3 {
		t.Errorf("limit not applied: %d results", len(got))
	}
}

func TestStockLookup(t *testing.T) {
	search := NewStockSearchService(stockList)

	stock, ok := search.Lookup(" nvda ")
	if !ok || stock.Name != "NVIDIA Corporation" {
		t.Errorf("Lookup(nvda) = %+v, %v", stock, ok)
	}
	if _, ok := search.Lookup("ZZZZ"); ok {
		t.Errorf("unknown symbol found")
	}
	if len(search.Symbols()) != len(stockList) {
		t.Errorf("Symbols() lost entries")
	}
}
