package domain

import "time"

// Credential is the bearer token used against the upstream booking API.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RenewalCount int       `json:"renewal_count"`
}

// ValidAt reports whether the credential may still be handed out at now,
// keeping buffer in reserve before ExpiresAt.
func (c *Credential) ValidAt(now time.Time, buffer time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-buffer))
}
