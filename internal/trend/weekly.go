package trend

import (
	"time"

	"github.com/AngelCh415/auction-tracker/internal/models"
)

type Day struct {
	DayOfWeek string  `json:"day_of_week"`
	Spend     float64 `json:"spend"`
	Sales     float64 `json:"sales"`
	ROAS      float64 `json:"roas"`
}

// week is Monday first, independent of which days appear in the data.
var week = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Weekly sums spend and sales per weekday. ROAS divides by spend, with a
// zero spend treated as 1.
func Weekly(records []models.Record) []Day {
	var spend, sales [7]float64
	for _, r := range records {
		wd := r.Date.Weekday()
		if r.Spend.Valid {
			spend[wd] += r.Spend.Value
		}
		if r.Sales.Valid {
			sales[wd] += r.Sales.Value
		}
	}
	out := make([]Day, 0, len(week))
	for _, wd := range week {
		den := spend[wd]
		if den == 0 {
			den = 1
		}
		out = append(out, Day{
			DayOfWeek: wd.String(),
			Spend:     models.Round(spend[wd], 2),
			Sales:     models.Round(sales[wd], 2),
			ROAS:      models.Round(sales[wd]/den, 2),
		})
	}
	return out
}
