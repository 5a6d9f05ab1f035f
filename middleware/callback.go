package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"lms/config"
	"lms/logger"

	"github.com/gofiber/fiber/v2"
)

const CallbackSignatureHeader = "X-Callback-Signature"

// SignCallback returns the hex HMAC-SHA256 of body under secret.
func SignCallback(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackSignature lets a callback through only when its signature
// header matches the raw body. With no secret configured every call is
// refused.
func VerifyCallbackSignature(c *fiber.Ctx) error {
	secret := config.AppConfig.PaymentCallbackSecret
	got, err := hex.DecodeString(c.Get(CallbackSignatureHeader))
	if secret == "" || err != nil || len(got) == 0 {
		return rejectCallback(c, "Invalid callback signature!")
	}
	want, _ := hex.DecodeString(SignCallback(secret, c.Body()))
	if !hmac.Equal(got, want) {
		return rejectCallback(c, "Invalid callback signature!")
	}
	return c.Next()
}

// VerifyCallbackToken checks the token query parameter that was appended to
// the callback URL handed to the provider.
func VerifyCallbackToken(c *fiber.Ctx) error {
	token := config.AppConfig.MpesaCallbackToken
	got := c.Query("token")
	if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return rejectCallback(c, "Invalid callback token!")
	}
	return c.Next()
}

func rejectCallback(c *fiber.Ctx, msg string) error {
	logger.Warn().Str("path", c.Path()).Str("ip", c.IP()).Msg("[PAYMENT] Unauthenticated callback rejected")
	return JsonResponse(c, fiber.StatusUnauthorized, false, msg, nil)
}
