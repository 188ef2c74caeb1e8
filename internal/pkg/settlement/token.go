package settlement

import (
	"strings"

	"github.com/google/uuid"
)

const trackingTokenPrefix = "trk_"

// TokenIssuer mints tracking tokens for newly recorded ledger entries.
type TokenIssuer func() (string, error)

// NewTrackingToken returns "trk_" followed by 32 hex characters of a
// random (v4) UUID.
func NewTrackingToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return trackingTokenPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

// IsTrackingToken reports whether s has the shape NewTrackingToken produces.
func IsTrackingToken(s string) bool {
	if len(s) != len(trackingTokenPrefix)+32 || !strings.HasPrefix(s, trackingTokenPrefix) {
		return false
	}
	for _, r := range s[len(trackingTokenPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
