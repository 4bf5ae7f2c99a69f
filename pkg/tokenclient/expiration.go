package tokenclient

import (
	"math"
	"time"
)

// defaultSkewSeconds is subtracted from the issued lifetime so tokens are dropped before the issuer rejects them.
const defaultSkewSeconds = 60

// maxLifetimeSeconds is the longest lifetime a time.Duration can hold.
const maxLifetimeSeconds = math.MaxInt64 / int64(time.Second)

// CalculateExpiration returns the instant after which a token issued now with a lifetime of
// expiresIn seconds must no longer be served. Lifetimes under a minute lose half their length.
func CalculateExpiration(expiresIn int) time.Time {
	return calculateExpiration(time.Now().UTC(), expiresIn)
}

func calculateExpiration(now time.Time, expiresIn int) time.Time {
	skew := defaultSkewSeconds
	if expiresIn < defaultSkewSeconds {
		skew = expiresIn / 2
	}
	lifetime := min(int64(expiresIn-skew), maxLifetimeSeconds)
	return now.Add(time.Duration(lifetime) * time.Second)
}
