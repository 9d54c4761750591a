package domain

import "time"

type RatePlan struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Terms struct {
	CancellationPolicy string `json:"cancellation_policy"`
	CheckInTime        string `json:"check_in_time,omitempty"`
	CheckOutTime       string `json:"check_out_time,omitempty"`
}

// Quote is a time-limited priced offer. It lives only in the client session.
type Quote struct {
	QuoteID   string    `json:"quote_id"`
	ListingID string    `json:"listing_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Guests    Guests    `json:"guests"`
	ExpiresAt time.Time `json:"expires_at"`
	Pricing   Pricing   `json:"pricing"`
	RatePlan  RatePlan  `json:"rate_plan"`
	Terms     Terms     `json:"terms"`
}

func (q *Quote) ExpiredAt(now time.Time) bool {
	return q == nil || !now.Before(q.ExpiresAt)
}

type Availability struct {
	Available    bool        `json:"available"`
	BlockedDates []time.Time `json:"blocked_dates"`
	MinimumStay  int         `json:"minimum_stay"`
	MaximumStay  int         `json:"maximum_stay"`
}

// Blocks reports whether any night in [checkIn, checkOut) falls on a blocked date.
func (a Availability) Blocks(checkIn, checkOut time.Time) bool {
	for _, d := range a.BlockedDates {
		day := TruncateDay(d)
		if !day.Before(TruncateDay(checkIn)) && day.Before(TruncateDay(checkOut)) {
			return true
		}
	}
	return false
}
