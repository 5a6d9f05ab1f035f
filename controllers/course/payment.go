package controllers

import (
	"lms/middleware"
	"lms/services/payment"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// PaymentCallback handles the normalized gateway callback for one reference.
func (ctl *Controller) PaymentCallback(c *fiber.Ctx) error {
	reference := c.Locals("gatewayReference").(string)
	reqData := c.Locals("validatedCallback").(*validators.PaymentCallbackRequest)

	_, err := ctl.svc.Payments.HandleCallback(c.UserContext(), payment.Callback{
		Provider:         payment.ProviderGeneric,
		GatewayReference: reference,
		ResultCode:       reqData.ResultCode,
		ResultDesc:       reqData.ResultDesc,
		Metadata:         reqData.ReceiptMetadata,
		Amount:           reqData.Amount,
		Raw:              c.Body(),
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// MpesaCallback handles a raw Daraja STK push result.
func (ctl *Controller) MpesaCallback(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)
	cb, err := payment.ParseMpesaCallback(raw)
	if err != nil {
		ctl.svc.Payments.Reject(c.UserContext(), payment.ProviderMpesa, raw, err)
		return middleware.ErrorResponse(c, err)
	}

	if _, err := ctl.svc.Payments.HandleCallback(c.UserContext(), cb); err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// MidtransCallback handles a Midtrans HTTP notification.
func (ctl *Controller) MidtransCallback(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)
	cb, final, err := payment.ParseMidtransNotification(raw, ctl.svc.MidtransServerKey)
	if err != nil {
		ctl.svc.Payments.Reject(c.UserContext(), payment.ProviderMidtrans, raw, err)
		return middleware.ErrorResponse(c, err)
	}
	if !final {
		ctl.svc.Payments.Ignore(c.UserContext(), cb, cb.ResultDesc)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "status": "ignored"})
	}

	if _, err := ctl.svc.Payments.HandleCallback(c.UserContext(), cb); err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
