package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	summaryCurrency = money.USD
	topMovers       = 3
	dateLayout      = "2006-01-02"
)

type HoldingDetail struct {
	Symbol       string  `json:"ticker"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	Value        float64 `json:"value"`
	Cost         float64 `json:"cost"`
	Gain         float64 `json:"gain"`
	PctGain      float64 `json:"pct_gain"`
	DayChange    float64 `json:"day_change"`
	DayPctChange float64 `json:"day_pct_change"`
	Currency     string  `json:"currency"`
	ValueDisplay string  `json:"value_display"`
}

type AllocationSlice struct {
	Symbol     string  `json:"ticker"`
	Name       string  `json:"name"`
	Allocation float64 `json:"allocation"`
}

type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// PortfolioSummary is the aggregate view served by /portfolio.
type PortfolioSummary struct {
	Holdings          []HoldingDetail   `json:"holdings"`
	TotalValue        float64           `json:"total_value"`
	TotalCost         float64           `json:"total_cost"`
	TotalGain         float64           `json:"total_gain"`
	TotalPctGain      float64           `json:"total_pct_gain"`
	TotalValueDisplay string            `json:"total_value_display"`
	TotalGainDisplay  string            `json:"total_gain_display"`
	Allocation        []AllocationSlice `json:"allocation"`
	TopGainers        []HoldingDetail   `json:"top_gainers"`
	TopLosers         []HoldingDetail   `json:"top_losers"`
	History           []HistoryPoint    `json:"history"`
	Analysis          string            `json:"analysis,omitempty"`
}

// SummaryService computes portfolio aggregates and keeps the daily value
// history.
type SummaryService struct {
	portfolios *PortfolioRegistry
	db         *Database
	quotes     *QuotePoller
	backend    *ChatBackend
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewSummaryService(portfolios *PortfolioRegistry, db *Database, quotes *QuotePoller, backend *ChatBackend, location *time.Location, logger *zap.Logger) *SummaryService {
	if location == nil {
		location = time.UTC
	}
	return &SummaryService{
		portfolios: portfolios,
		db:         db,
		quotes:     quotes,
		backend:    backend,
		location:   location,
		logger:     logger.Named("summary"),
		now:        time.Now,
	}
}

// Handle answers a /portfolio request. "summary" returns the aggregates;
// "analysis" and "recommendations" add a model-written commentary.
func (s *SummaryService) Handle(ctx context.Context, req PortfolioRequest) PortfolioResponse {
	action := req.Action
	if action == "" {
		action = "summary"
	}
	if req.UserID == "" {
		return PortfolioResponse{Success: false, Data: &PortfolioSummary{}, Message: "user_id is required"}
	}

	id := Identity{UserID: req.UserID}
	if req.UserID == defaultGuestID {
		id = Identity{GuestID: defaultGuestID}
	}

	switch action {
	case "summary", "analysis", "recommendations":
	default:
		return PortfolioResponse{Success: false, Data: &PortfolioSummary{}, Message: fmt.Sprintf("unknown action %q", action)}
	}

	summary, err := s.Summary(id)
	if err != nil {
		s.logger.Error("portfolio summary failed", zap.String("user", req.UserID), zap.Error(err))
		return PortfolioResponse{Success: false, Data: &PortfolioSummary{}, Message: fmt.Sprintf("Failed to retrieve portfolio data: %v", err)}
	}

	if action != "summary" {
		if s.backend == nil {
			return PortfolioResponse{Success: false, Data: summary, Message: ErrNoModel.Error()}
		}
		resp, err := s.backend.Pro(ctx, ProChatRequest{
			Query:  fmt.Sprintf("Provide %s for my portfolio", action),
			UserID: req.UserID,
		})
		if err != nil {
			return PortfolioResponse{Success: false, Data: summary, Message: fmt.Sprintf("Failed to retrieve portfolio %s: %v", action, err)}
		}
		summary.Analysis = resp.Answer
	}

	return PortfolioResponse{Success: true, Data: summary, Message: "Portfolio data retrieved successfully"}
}

// Summary aggregates the caller's holdings and records today's value in the
// history of signed-in users.
func (s *SummaryService) Summary(id Identity) (*PortfolioSummary, error) {
	store, err := s.portfolios.For(id)
	if err != nil {
		return nil, err
	}
	summary := s.aggregate(store.Holdings())

	today := s.now().In(s.location).Format(dateLayout)
	if !id.SignedIn() {
		summary.History = []HistoryPoint{{Date: today, Value: summary.TotalValue}}
		return summary, nil
	}

	if err := s.db.UpsertSnapshot(id.UserID, today, summary.TotalValue); err != nil {
		return nil, err
	}
	snapshots, err := s.db.GetSnapshots(id.UserID, 0)
	if err != nil {
		return nil, err
	}
	summary.History = historyPoints(snapshots)
	return summary, nil
}

// SnapshotAll stores today's value of every signed-in portfolio.
func (s *SummaryService) SnapshotAll() (int, error) {
	owners, err := s.db.PortfolioOwners()
	if err != nil {
		return 0, err
	}

	today := s.now().In(s.location).Format(dateLayout)
	stored := 0
	for _, uid := range owners {
		store, err := s.portfolios.For(Identity{UserID: uid})
		if err != nil {
			s.logger.Error("failed to load portfolio for snapshot", zap.String("user", uid), zap.Error(err))
			continue
		}
		summary := s.aggregate(store.Holdings())
		if err := s.db.UpsertSnapshot(uid, today, summary.TotalValue); err != nil {
			s.logger.Error("failed to store snapshot", zap.String("user", uid), zap.Error(err))
			continue
		}
		stored++
	}
	s.logger.Info("portfolio snapshots stored", zap.String("date", today), zap.Int("count", stored))
	return stored, nil
}

func (s *SummaryService) aggregate(holdings []Holding) *PortfolioSummary {
	var quotes map[string]Quote
	if s.quotes != nil {
		quotes = s.quotes.quoteMap()
	}
	return buildSummary(holdings, quotes)
}

// buildSummary computes the aggregates. A live quote, when known, takes
// precedence over the price stored on the holding.
func buildSummary(holdings []Holding, quotes map[string]Quote) *PortfolioSummary {
	summary := &PortfolioSummary{
		Holdings:   make([]HoldingDetail, 0, len(holdings)),
		Allocation: make([]AllocationSlice, 0, len(holdings)),
		TopGainers: []HoldingDetail{},
		TopLosers:  []HoldingDetail{},
		History:    []HistoryPoint{},
	}

	totalValue := decimal.Zero
	totalCost := decimal.Zero
	for _, h := range holdings {
		price, change, pct := h.CurrentPrice, h.Change, h.PercentChange
		if q, ok := quotes[h.Symbol]; ok && q.Price != nil {
			price = *q.Price
			if q.Change != nil {
				change = *q.Change
			}
			if q.PercentChange != nil {
				pct = *q.PercentChange
			}
		}

		qty := decimal.NewFromFloat(h.Quantity)
		value := qty.Mul(decimal.NewFromFloat(price))
		cost := qty.Mul(decimal.NewFromFloat(h.AvgPrice))
		gain := value.Sub(cost)

		detail := HoldingDetail{
			Symbol:       h.Symbol,
			Name:         h.Name,
			Quantity:     h.Quantity,
			AvgPrice:     h.AvgPrice,
			CurrentPrice: price,
			Value:        value.InexactFloat64(),
			Cost:         cost.InexactFloat64(),
			Gain:         gain.InexactFloat64(),
			PctGain:      percentOf(gain, cost),
			DayChange:    change,
			DayPctChange: pct,
			Currency:     summaryCurrency,
			ValueDisplay: displayMoney(value),
		}
		if detail.Name == "" {
			detail.Name = h.Symbol
		}
		summary.Holdings = append(summary.Holdings, detail)
		totalValue = totalValue.Add(value)
		totalCost = totalCost.Add(cost)
	}

	totalGain := totalValue.Sub(totalCost)
	summary.TotalValue = totalValue.InexactFloat64()
	summary.TotalCost = totalCost.InexactFloat64()
	summary.TotalGain = totalGain.InexactFloat64()
	summary.TotalPctGain = percentOf(totalGain, totalCost)
	summary.TotalValueDisplay = displayMoney(totalValue)
	summary.TotalGainDisplay = displayMoney(totalGain)

	for _, d := range summary.Holdings {
		summary.Allocation = append(summary.Allocation, AllocationSlice{
			Symbol:     d.Symbol,
			Name:       d.Name,
			Allocation: percentOf(decimal.NewFromFloat(d.Value), totalValue),
		})
	}

	byDay := append([]HoldingDetail(nil), summary.Holdings...)
	sort.SliceStable(byDay, func(i, j int) bool { return byDay[i].DayPctChange > byDay[j].DayPctChange })
	n := topMovers
	if len(byDay) < n {
		n = len(byDay)
	}
	summary.TopGainers = append(summary.TopGainers, byDay[:n]...)
	if len(byDay) > topMovers {
		for i := len(byDay) - 1; i >= len(byDay)-topMovers; i-- {
			summary.TopLosers = append(summary.TopLosers, byDay[i])
		}
	}
	return summary
}

// historyPoints keeps one point per date, the first one seen.
func historyPoints(snapshots []PortfolioSnapshot) []HistoryPoint {
	seen := make(map[string]bool, len(snapshots))
	points := make([]HistoryPoint, 0, len(snapshots))
	for _, s := range snapshots {
		if seen[s.Date] {
			continue
		}
		seen[s.Date] = true
		points = append(points, HistoryPoint{Date: s.Date, Value: s.Value})
	}
	return points
}

func percentOf(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

func displayMoney(amount decimal.Decimal) string {
	return money.NewFromFloat(amount.InexactFloat64(), summaryCurrency).Display()
}
