package controllers

import (
	"lms/middleware"
	"lms/services/access"
	"lms/services/catalog"
	"lms/services/certificate"
	"lms/services/enrollment"
	"lms/services/payment"
	"lms/services/progress"

	"github.com/gofiber/fiber/v2"
)

// Services are the engine components the course handlers call into.
type Services struct {
	Catalog      *catalog.Catalog
	Enrollments  *enrollment.Store
	Payments     *payment.Handler
	Progress     *progress.Tracker
	Gate         *access.Gate
	Certificates *certificate.Issuer
	// MidtransServerKey verifies Midtrans notification signatures.
	MidtransServerKey string
}

type Controller struct {
	svc Services
}

func NewController(svc Services) *Controller {
	return &Controller{svc: svc}
}

func currentUser(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userId").(uint)
	return userID, ok && userID > 0
}

func unauthorized(c *fiber.Ctx) error {
	return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
}
