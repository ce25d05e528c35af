package service

import (
	"math"
	"time"
)

// ComputeFee returns the parking charge for the interval [start, end]
// at the given hourly rate. Billing is fractional: the duration in
// seconds is divided by 3600 without rounding up to whole hours, and
// the result is rounded half-up to two decimal places. This is the
// authoritative policy — it is what gets persisted as a reservation's
// cost at completion.
//
// end must not precede start; that is a caller contract violation and
// yields 0 rather than a negative charge.
func ComputeFee(start, end time.Time, hourlyRate float64) float64 {
	if end.Before(start) {
		return 0
	}
	hours := end.Sub(start).Seconds() / 3600
	return round2(hours * hourlyRate)
}

// EstimateFee returns the charge with the duration rounded up to whole
// hours. It exists only for payment previews and receipts; the release
// path never uses it.
func EstimateFee(start, end time.Time, hourlyRate float64) float64 {
	if end.Before(start) {
		return 0
	}
	hours := end.Sub(start).Seconds() / 3600
	return round2(math.Ceil(hours) * hourlyRate)
}

// round2 rounds half away from zero to two decimals, matching how the
// charges are stored in DECIMAL(10,2) columns.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
