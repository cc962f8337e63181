package main

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Simplified Indian capital gains and income tax. Every unrealized gain is
// treated as half short term and half long term.
var (
	shortTermRate      = decimal.RequireFromString("0.15")
	longTermRate       = decimal.RequireFromString("0.10")
	longTermExemption  = decimal.NewFromInt(100000)
	incomeTaxRate      = decimal.RequireFromString("0.20")
	incomeTaxThreshold = decimal.NewFromInt(500000)
	section80CLimit    = decimal.NewFromInt(150000)
	section80DLimit    = decimal.NewFromInt(25000)
	half               = decimal.RequireFromString("0.5")
)

const defaultITRForm = "ITR-1"

type TaxRequest struct {
	Income          float64 `json:"income"`
	Investments     float64 `json:"investments"`
	Deductions      float64 `json:"deductions"`
	HealthInsurance float64 `json:"health_insurance"`
}

type TaxBreakdown struct {
	ShortTermGain  float64 `json:"stcg"`
	LongTermGain   float64 `json:"ltcg"`
	ShortTermTax   float64 `json:"stcg_tax"`
	LongTermTax    float64 `json:"ltcg_tax"`
	IncomeTax      float64 `json:"income_tax"`
	TotalTax       float64 `json:"total_tax"`
	RealizedGain   float64 `json:"realized_gain"`
	UnrealizedGain float64 `json:"unrealized_gain"`
}

type taxLine struct {
	name  string
	value float64
}

// lines lists the breakdown in report order.
func (b TaxBreakdown) lines() []taxLine {
	return []taxLine{
		{"stcg", b.ShortTermGain},
		{"ltcg", b.LongTermGain},
		{"stcg_tax", b.ShortTermTax},
		{"ltcg_tax", b.LongTermTax},
		{"income_tax", b.IncomeTax},
		{"total_tax", b.TotalTax},
		{"realized_gain", b.RealizedGain},
		{"unrealized_gain", b.UnrealizedGain},
	}
}

type TaxReport struct {
	Tax         TaxBreakdown `json:"tax"`
	Suggestions []string     `json:"suggestions"`
	ITRForm     string       `json:"itr_form"`
}

func calculateTax(totalGain decimal.Decimal, req TaxRequest) TaxBreakdown {
	shortTerm := totalGain.Mul(half)
	longTerm := totalGain.Mul(half)

	shortTax := decimal.Max(decimal.Zero, shortTerm.Mul(shortTermRate))
	longTax := decimal.Zero
	if longTerm.GreaterThan(longTermExemption) {
		longTax = longTerm.Sub(longTermExemption).Mul(longTermRate)
	}

	taxable := decimal.NewFromFloat(req.Income).Add(totalGain).Sub(decimal.NewFromFloat(req.Deductions))
	taxable = decimal.Max(decimal.Zero, taxable)
	incomeTax := decimal.Zero
	if taxable.GreaterThan(incomeTaxThreshold) {
		incomeTax = taxable.Sub(incomeTaxThreshold).Mul(incomeTaxRate)
	}

	return TaxBreakdown{
		ShortTermGain:  shortTerm.Round(2).InexactFloat64(),
		LongTermGain:   longTerm.Round(2).InexactFloat64(),
		ShortTermTax:   shortTax.Round(2).InexactFloat64(),
		LongTermTax:    longTax.Round(2).InexactFloat64(),
		IncomeTax:      incomeTax.Round(2).InexactFloat64(),
		TotalTax:       shortTax.Add(longTax).Add(incomeTax).Round(2).InexactFloat64(),
		UnrealizedGain: totalGain.Round(2).InexactFloat64(),
	}
}

func taxSavingTips(req TaxRequest) []string {
	tips := []string{}
	if decimal.NewFromFloat(req.Deductions).LessThan(section80CLimit) {
		tips = append(tips, "Invest more in 80C (PPF, ELSS, etc.) to save tax")
	}
	if decimal.NewFromFloat(req.HealthInsurance).LessThan(section80DLimit) {
		tips = append(tips, "Buy health insurance to claim 80D deduction")
	}
	return tips
}

// recommendITRForm always picks ITR-1 until other income sources are
// modelled.
func recommendITRForm(TaxRequest) string {
	return defaultITRForm
}

// Tax estimates the caller's tax on the unrealized gain of their portfolio.
func (s *SummaryService) Tax(id Identity, req TaxRequest) (*TaxReport, error) {
	store, err := s.portfolios.For(id)
	if err != nil {
		return nil, err
	}
	summary := s.aggregate(store.Holdings())
	return &TaxReport{
		Tax:         calculateTax(decimal.NewFromFloat(summary.TotalGain), req),
		Suggestions: taxSavingTips(req),
		ITRForm:     recommendITRForm(req),
	}, nil
}

// Report writes the caller's portfolio and tax summary as CSV and returns
// the download file name.
func (s *SummaryService) Report(id Identity, w io.Writer) (string, error) {
	store, err := s.portfolios.For(id)
	if err != nil {
		return "", err
	}
	summary := s.aggregate(store.Holdings())
	tax := calculateTax(decimal.NewFromFloat(summary.TotalGain), TaxRequest{})

	if err := writeReport(w, summary, tax, taxSavingTips(TaxRequest{})); err != nil {
		return "", err
	}
	return fmt.Sprintf("report_%s.csv", s.now().In(s.location).Format(dateLayout)), nil
}

func writeReport(w io.Writer, summary *PortfolioSummary, tax TaxBreakdown, tips []string) error {
	writer := csv.NewWriter(w)

	records := [][]string{
		{"Portfolio Summary"},
		{"ticker", "name", "quantity", "avg_price", "current_price", "value", "cost", "gain", "pct_gain"},
	}
	for _, h := range summary.Holdings {
		records = append(records, []string{
			h.Symbol,
			h.Name,
			formatNumber(h.Quantity),
			formatNumber(h.AvgPrice),
			formatNumber(h.CurrentPrice),
			formatNumber(h.Value),
			formatNumber(h.Cost),
			formatNumber(h.Gain),
			formatNumber(h.PctGain),
		})
	}

	records = append(records, []string{}, []string{"Tax Summary"})
	for _, line := range tax.lines() {
		records = append(records, []string{line.name, formatNumber(line.value)})
	}

	records = append(records, []string{}, []string{"Tax Saving Suggestions"})
	for _, tip := range tips {
		records = append(records, []string{tip})
	}

	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
