package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCredentials_Authorize(t *testing.T) {
	hash, err := HashMetricsPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds MetricsCredentials
		user  string
		pass  string
		want  bool
	}{
		{"plain match", MetricsCredentials{User: "ops", Password: "s3cret"}, "ops", "s3cret", true},
		{"plain mismatch", MetricsCredentials{User: "ops", Password: "s3cret"}, "ops", "nope", false},
		{"wrong user", MetricsCredentials{User: "ops", Password: "s3cret"}, "root", "s3cret", false},
		{"hash match", MetricsCredentials{User: "ops", PasswordHash: hash}, "ops", "s3cret", true},
		{"hash wins over password", MetricsCredentials{User: "ops", Password: "other", PasswordHash: hash}, "ops", "other", false},
		{"nothing configured", MetricsCredentials{User: "ops"}, "ops", "", false},
		{"no user configured", MetricsCredentials{Password: "s3cret"}, "", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.Authorize(tt.user, tt.pass))
		})
	}
}

func TestMetricsAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", MetricsAuth(MetricsCredentials{User: "ops", Password: "s3cret"}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("ops:s3cret")))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
