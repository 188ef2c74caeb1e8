package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"
)

// MetricsCredentials guard the operational endpoints. PasswordHash is a
// bcrypt hash and takes precedence over Password when both are set.
type MetricsCredentials struct {
	User         string
	Password     string
	PasswordHash string
}

// MetricsAuth returns basic auth for /metrics.
func MetricsAuth(creds MetricsCredentials) fiber.Handler {
	if creds.PasswordHash == "" && creds.Password == "" {
		log.Warn("[Metrics] No metrics password configured, endpoint is locked")
	}
	return basicauth.New(basicauth.Config{
		Realm:      "ContestHub metrics",
		Authorizer: creds.Authorize,
	})
}

// Authorize checks a username and password pair.
func (m MetricsCredentials) Authorize(user, pass string) bool {
	if m.User == "" || subtle.ConstantTimeCompare([]byte(user), []byte(m.User)) != 1 {
		return false
	}
	if hash := strings.TrimSpace(m.PasswordHash); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil
	}
	if m.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(m.Password)) == 1
}

// HashMetricsPassword produces a value for METRICS_PASSWORD_HASH.
func HashMetricsPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
