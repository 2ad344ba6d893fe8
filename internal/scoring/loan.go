package scoring

import "math"

// Installment computes the constant annuity payment for a loan at the given
// annual rate. Falls back to linear repayment at a zero rate.
func Installment(amount float64, termMonths int, annualRate float64) float64 {
	if termMonths <= 0 {
		termMonths = 1
	}
	monthlyRate := annualRate / 12
	if monthlyRate <= 0 {
		return amount / float64(termMonths)
	}
	factor := math.Pow(1+monthlyRate, float64(termMonths))
	return amount * (monthlyRate * factor) / (factor - 1)
}

// AmortizationRow is one month of a loan repayment schedule
type AmortizationRow struct {
	Month     int     `json:"month"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Remaining float64 `json:"remaining"`
}

// LoanSummary holds the repayment profile of a simulated loan
type LoanSummary struct {
	Amount           float64           `json:"amount"`
	TermMonths       int               `json:"term_months"`
	AnnualRate       float64           `json:"annual_rate"`
	Installment      float64           `json:"installment"`
	TotalCost        float64           `json:"total_cost"`
	CreditCost       float64           `json:"credit_cost"`
	DebtServiceRatio float64           `json:"debt_service_ratio"`
	Amortization     []AmortizationRow `json:"amortization,omitempty"`
}

// SummarizeLoan computes installment, total cost and a truncated
// amortization schedule (first three and last two months).
func SummarizeLoan(amount float64, termMonths int, annualRate, monthlyIncome float64) LoanSummary {
	installment := Installment(amount, termMonths, annualRate)
	totalCost := installment * float64(termMonths)

	ratio := 0.0
	if monthlyIncome > 0 {
		ratio = installment / monthlyIncome
	}

	monthlyRate := annualRate / 12
	remaining := amount
	var rows []AmortizationRow
	for month := 1; month <= termMonths; month++ {
		interest := remaining * monthlyRate
		principal := installment - interest
		remaining -= principal
		if month <= 3 || month >= termMonths-1 {
			rows = append(rows, AmortizationRow{
				Month:     month,
				Payment:   installment,
				Principal: principal,
				Interest:  interest,
				Remaining: math.Max(0, remaining),
			})
		}
	}

	return LoanSummary{
		Amount:           amount,
		TermMonths:       termMonths,
		AnnualRate:       annualRate,
		Installment:      installment,
		TotalCost:        totalCost,
		CreditCost:       totalCost - amount,
		DebtServiceRatio: ratio,
		Amortization:     rows,
	}
}
