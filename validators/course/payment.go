package courseValidator

import (
	"strings"

	"lms/middleware"

	"github.com/gofiber/fiber/v2"
)

type PaymentCallbackRequest struct {
	ResultCode      *int           `json:"resultCode" validate:"required"`
	ResultDesc      string         `json:"resultDesc" validate:"max=500"`
	ReceiptMetadata map[string]any `json:"receiptMetadata"`
	Amount          *int64         `json:"amount" validate:"omitempty,min=0"`
}

func PaymentCallback() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reference := strings.TrimSpace(c.Params("gatewayReference"))
		if reference == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Gateway reference is required!", nil)
		}

		reqData := new(PaymentCallbackRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		if err := validate.Struct(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Validation failed!", validationErrors(err))
		}

		c.Locals("gatewayReference", reference)
		c.Locals("validatedCallback", reqData)
		return c.Next()
	}
}
