package paymentRoutes

import (
	controllers "lms/controllers/course"
	"lms/middleware"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupPaymentRoutes sets up the gateway webhooks. They carry no JWT: M-Pesa
// presents the callback URL token, Midtrans signs its payload and the generic
// route needs an HMAC of the body. The provider routes must be registered
// before the generic reference route.
func SetupPaymentRoutes(app *fiber.App, ctl *controllers.Controller) {
	callbackGroup := app.Group("/payments/callback")

	callbackGroup.Post("/mpesa", middleware.VerifyCallbackToken, ctl.MpesaCallback)
	callbackGroup.Post("/midtrans", ctl.MidtransCallback)
	callbackGroup.Post("/:gatewayReference", middleware.VerifyCallbackSignature, validators.PaymentCallback(), ctl.PaymentCallback)
}
