package valuation

import (
	"time"

	"github.com/tahopetis/crate/pkg/mathutil"
)

// Plan computes the full depreciation schedule of r. The closing value of the
// final year is exactly the salvage value and no year closes below it.
func Plan(r Record) []Period {
	life := r.UsefulLifeYears
	if life < 1 {
		return []Period{}
	}
	out := make([]Period, 0, life)
	opening := mathutil.RoundCents(r.InitialValue)
	salvage := mathutil.RoundCents(r.SalvageValue)
	annual := mathutil.RoundCents((opening - salvage) / float64(life))
	rate := 2 / float64(life)

	for year := 1; year <= life; year++ {
		var dep float64
		switch r.DepreciationMethod {
		case MethodDecliningBalance:
			dep = mathutil.RoundCents(opening * rate)
		default:
			dep = annual
		}
		if year == life || opening-dep < salvage {
			dep = mathutil.RoundCents(opening - salvage)
		}
		closing := mathutil.RoundCents(opening - dep)
		out = append(out, Period{
			Year:               year,
			EndsOn:             r.PurchaseDate.AddDate(year, 0, 0),
			OpeningValue:       opening,
			DepreciationAmount: dep,
			ClosingValue:       closing,
		})
		opening = closing
	}
	return out
}

// YearsElapsed is the number of complete schedule years of r as of asOf.
func YearsElapsed(r Record, asOf time.Time) int {
	return mathutil.ClampInt(mathutil.WholeYearsBetween(r.PurchaseDate, asOf), 0, r.UsefulLifeYears)
}

// ValueAt is the book value of r after the years elapsed as of asOf.
func ValueAt(r Record, asOf time.Time) float64 {
	n := YearsElapsed(r, asOf)
	if n == 0 {
		return mathutil.RoundCents(r.InitialValue)
	}
	return Plan(r)[n-1].ClosingValue
}
