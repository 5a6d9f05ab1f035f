package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lms/apperror"
	"lms/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig = &config.Config{JWTKey: "middleware-secret"}

	app := fiber.New()
	app.Get("/me", JWTMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userId": c.Locals("userId"), "role": c.Locals("role")})
	})
	app.Get("/admin", JWTMiddleware, RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/boom/:kind", func(c *fiber.Ctx) error {
		switch c.Params("kind") {
		case "missing":
			return ErrorResponse(c, apperror.NotFound("Enrollment not found!"))
		case "storage":
			return ErrorResponse(c, apperror.Storage(assert.AnError, "load enrollment"))
		case "transition":
			return ErrorResponse(c, apperror.InvalidTransition("Cannot move enrollment from completed to active!"))
		}
		return ErrorResponse(c, assert.AnError)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp(t)

	token, err := GenerateJWT(7, "Amina", RoleUser, "amina@example.com")
	require.NoError(t, err)

	resp, body := get(t, app, "/me", token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(7), body["userId"])
	assert.Equal(t, RoleUser, body["role"])

	resp, body = get(t, app, "/me", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["status"])

	resp, _ = get(t, app, "/me", "not-a-token")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": 7, "role": RoleAdmin}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)
	resp, _ = get(t, app, "/me", forged)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := newApp(t)

	user, err := GenerateJWT(7, "Amina", RoleUser, "amina@example.com")
	require.NoError(t, err)
	admin, err := GenerateJWT(1, "Ops", "admin", "ops@example.com")
	require.NoError(t, err)

	resp, _ := get(t, app, "/admin", user)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = get(t, app, "/admin", admin)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestErrorResponse(t *testing.T) {
	app := newApp(t)

	resp, body := get(t, app, "/boom/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Enrollment not found!", body["message"])

	resp, _ = get(t, app, "/boom/transition", "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body = get(t, app, "/boom/storage", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, apperror.StorageMessage, body["message"])

	resp, body = get(t, app, "/boom/other", "")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Something went wrong, please retry!", body["message"])
}

func TestVerifyCallbackSignature(t *testing.T) {
	config.AppConfig = &config.Config{PaymentCallbackSecret: "hook-secret"}
	app := fiber.New()
	app.Post("/callback", VerifyCallbackSignature, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	body := []byte(`{"resultCode":0}`)
	post := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set(CallbackSignatureHeader, signature)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, post(SignCallback("hook-secret", body)))
	assert.Equal(t, fiber.StatusUnauthorized, post(""))
	assert.Equal(t, fiber.StatusUnauthorized, post("zz"))
	assert.Equal(t, fiber.StatusUnauthorized, post(SignCallback("other-secret", body)))
	assert.Equal(t, fiber.StatusUnauthorized, post(SignCallback("hook-secret", []byte(`{"resultCode":1}`))))

	config.AppConfig.PaymentCallbackSecret = ""
	assert.Equal(t, fiber.StatusUnauthorized, post(SignCallback("", body)))
}

func TestVerifyCallbackToken(t *testing.T) {
	config.AppConfig = &config.Config{MpesaCallbackToken: "cb-token"}
	app := fiber.New()
	app.Post("/mpesa", VerifyCallbackToken, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	post := func(path string) int {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, path, nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, post("/mpesa?token=cb-token"))
	assert.Equal(t, fiber.StatusUnauthorized, post("/mpesa"))
	assert.Equal(t, fiber.StatusUnauthorized, post("/mpesa?token=guess"))

	config.AppConfig.MpesaCallbackToken = ""
	assert.Equal(t, fiber.StatusUnauthorized, post("/mpesa?token="))
}
