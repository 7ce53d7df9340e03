package meeting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Working days per month and hours per day used to turn a monthly salary
// into an hourly rate.
const (
	workDaysPerMonth = 22
	workHoursPerDay  = 9
)

// CostInput describes what a meeting costs the organisation.
type CostInput struct {
	Attendees       int             `json:"attendees"`
	AvgMonthlyCost  decimal.Decimal `json:"avgMonthlyCost"`
	ExtraCosts      decimal.Decimal `json:"extraCosts"`
	Objective       string          `json:"objective,omitempty"`
	EstimatedReturn string          `json:"estimatedReturn,omitempty"`
}

// Validate rejects negative inputs.
func (c CostInput) Validate() error {
	var errs []error
	if c.Attendees < 0 {
		errs = append(errs, fmt.Errorf("%w: cost: attendees must not be negative", ErrInvalid))
	}
	if c.AvgMonthlyCost.IsNegative() {
		errs = append(errs, fmt.Errorf("%w: cost: avgMonthlyCost must not be negative", ErrInvalid))
	}
	if c.ExtraCosts.IsNegative() {
		errs = append(errs, fmt.Errorf("%w: cost: extraCosts must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// Cost is a computed meeting cost.
type Cost struct {
	HourlyRate decimal.Decimal
	TimeCost   decimal.Decimal
	Extra      decimal.Decimal
	Total      decimal.Decimal
	Minutes    int
}

// CalculateCost prices a meeting of totalMinutes:
//
//	hourly = avgMonthlyCost / 22 / 9
//	time   = attendees * hourly * minutes / 60
//	total  = time + extraCosts
func CalculateCost(in CostInput, totalMinutes int) Cost {
	hourly := in.AvgMonthlyCost.
		Div(decimal.NewFromInt(workDaysPerMonth)).
		Div(decimal.NewFromInt(workHoursPerDay))
	timeCost := decimal.NewFromInt(int64(in.Attendees)).
		Mul(hourly).
		Mul(decimal.NewFromInt(int64(totalMinutes))).
		Div(decimal.NewFromInt(60))
	return Cost{
		HourlyRate: hourly,
		TimeCost:   timeCost,
		Extra:      in.ExtraCosts,
		Total:      timeCost.Add(in.ExtraCosts),
		Minutes:    totalMinutes,
	}
}

// CostView is the display form of a [Cost], rounded to two decimals.
type CostView struct {
	HourlyRate      string `json:"hourlyRate"`
	TimeCost        string `json:"timeCost"`
	ExtraCosts      string `json:"extraCosts"`
	Total           string `json:"total"`
	Minutes         int    `json:"minutes"`
	Objective       string `json:"objective,omitempty"`
	EstimatedReturn string `json:"estimatedReturn,omitempty"`
}

// View rounds c for display.
func (c Cost) View() CostView {
	return CostView{
		HourlyRate: c.HourlyRate.StringFixed(2),
		TimeCost:   c.TimeCost.StringFixed(2),
		ExtraCosts: c.Extra.StringFixed(2),
		Total:      c.Total.StringFixed(2),
		Minutes:    c.Minutes,
	}
}

// SpeakerCost prices spokenSeconds at ratePerHour.
func SpeakerCost(ratePerHour decimal.Decimal, spokenSeconds int) decimal.Decimal {
	return ratePerHour.Mul(decimal.NewFromInt(int64(spokenSeconds))).Div(decimal.NewFromInt(3600))
}
