package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultAvatarSize is used when callers pass a non-positive size.
const DefaultAvatarSize = 200

// GetGravatarURL returns the Gravatar image for email. Gravatar accepts the
// SHA-256 of the trimmed, lowercased address; unknown addresses fall back to
// the "mystery person" silhouette.
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = DefaultAvatarSize
	}

	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=mp", hex.EncodeToString(sum[:]), size)
}
