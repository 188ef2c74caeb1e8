package controllers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
	"github.com/ManuelReschke/ContestHub/internal/pkg/utils"
)

func userApp(users *memUsers, caller usercontext.UserContext) *fiber.App {
	uc := NewUserController(users)
	app := fiber.New()
	app.Use(as(caller))
	app.Post("/users", uc.HandleRegister)
	app.Get("/users/me", uc.HandleMe)
	app.Get("/admin/users", uc.HandleAdminList)
	app.Patch("/admin/users/role", uc.HandleAdminSetRole)
	return app
}

func TestRegister_IsIdempotentPerEmail(t *testing.T) {
	users := newMemUsers()
	app := userApp(users, alice)

	resp, body := doJSON(t, app, http.MethodPost, "/users", map[string]string{"name": "Alice A.", "photoURL": "https://img.example.com/a.png"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["inserted"])

	// The body cannot register someone else: the email comes from the token.
	resp, body = doJSON(t, app, http.MethodPost, "/users", map[string]string{"name": "Other", "email": "mallory@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["inserted"])
	assert.Equal(t, "user already exists", body["message"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, alice.Email, user["email"])
	assert.Equal(t, "Alice A.", user["name"])
	assert.Equal(t, models.ROLE_USER, user["role"])

	count, _ := users.Count()
	assert.EqualValues(t, 1, count)
}

func TestRegister_WithoutBodyUsesTokenName(t *testing.T) {
	users := newMemUsers()

	resp, body := doJSON(t, userApp(users, bob), http.MethodPost, "/users", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Bob", user["name"])
	assert.Equal(t, utils.GetGravatarURL(bob.Email, utils.DefaultAvatarSize), user["photoURL"], "missing photo falls back to gravatar")
}

func TestMe(t *testing.T) {
	users := newMemUsers()

	resp, body := doJSON(t, userApp(users, alice), http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "user_not_found", body["error"])

	doJSON(t, userApp(users, alice), http.MethodPost, "/users", nil)
	resp, body = doJSON(t, userApp(users, alice), http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.Email, body["email"])
}

func TestAdminSetRole(t *testing.T) {
	users := newMemUsers()
	doJSON(t, userApp(users, alice), http.MethodPost, "/users", nil)
	app := userApp(users, admin)

	resp, body := doJSON(t, app, http.MethodPatch, "/admin/users/role", map[string]string{"email": " ALICE@example.com ", "role": "Creator"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ROLE_CREATOR, body["role"])

	resp, body = doJSON(t, app, http.MethodPatch, "/admin/users/role", map[string]string{"email": alice.Email, "role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_role", body["error"])

	resp, body = doJSON(t, app, http.MethodPatch, "/admin/users/role", map[string]string{"email": "nobody@example.com", "role": "admin"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "user_not_found", body["error"])

	resp, body = doJSON(t, app, http.MethodPatch, "/admin/users/role", map[string]string{"email": "not-an-email", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])
}

func TestAdminListUsers(t *testing.T) {
	users := newMemUsers()
	doJSON(t, userApp(users, alice), http.MethodPost, "/users", nil)
	doJSON(t, userApp(users, bob), http.MethodPost, "/users", nil)

	_, body := doJSON(t, userApp(users, admin), http.MethodGet, "/admin/users?limit=1&page=2", nil)
	assert.EqualValues(t, 2, body["total"])
	list := body["users"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, bob.Email, list[0].(map[string]interface{})["email"])
}
