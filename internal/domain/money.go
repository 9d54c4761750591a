package domain

import (
	"math"
	"time"
)

// Pricing holds amounts in integer minor units (cents).
type Pricing struct {
	BaseCents     int64  `json:"base_cents"`
	CleaningCents int64  `json:"cleaning_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

func (p Pricing) IsZero() bool {
	return p.TotalCents == 0 && p.BaseCents == 0 && p.Currency == ""
}

// Balanced reports whether no part is negative and the parts add up to the total.
func (p Pricing) Balanced() bool {
	if p.BaseCents < 0 || p.CleaningCents < 0 || p.TaxCents < 0 || p.TotalCents <= 0 {
		return false
	}
	return p.BaseCents+p.CleaningCents+p.TaxCents == p.TotalCents
}

// ToMinorUnits converts a decimal amount (as sent over the wire) into cents.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(cents int64) float64 {
	return float64(cents) / 100
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Nights counts calendar nights between two dates.
func Nights(checkIn, checkOut time.Time) int {
	return int(TruncateDay(checkOut).Sub(TruncateDay(checkIn)).Hours() / 24)
}
