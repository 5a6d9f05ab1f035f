package courseValidator

import (
	"strings"

	"lms/middleware"
	"lms/models/course"

	"github.com/gofiber/fiber/v2"
)

func EnrollCourse() fiber.Handler {
	return CourseParam("id")
}

type CheckoutRequest struct {
	Phone    string `json:"phone" validate:"required,min=9,max=16"`
	BranchID *uint  `json:"branch_id"`
}

func Checkout() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseID(c, "id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}

		reqData := new(CheckoutRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Phone = strings.TrimSpace(reqData.Phone)
		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, validationErrors(err))
		}

		c.Locals("courseID", courseID)
		c.Locals("validatedCheckout", reqData)
		return c.Next()
	}
}

type EnrollmentListQuery struct {
	Page  *int `query:"page"`
	Limit *int `query:"limit"`
}

func GetUserEnrollments() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(EnrollmentListQuery)
		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}

		errors := make(map[string]string)
		if reqData.Page != nil && *reqData.Page < 1 {
			errors["page"] = "Page must be greater than 0!"
		}
		if reqData.Limit != nil && (*reqData.Limit < 1 || *reqData.Limit > 100) {
			errors["limit"] = "Limit must be between 1 and 100!"
		}
		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedEnrollmentList", reqData)
		return c.Next()
	}
}

type EnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active approved completed dropped suspended failed"`
}

func EnrollmentStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok := parseID(c, "id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Enrollment ID!", nil)
		}

		reqData := new(EnrollmentStatusRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Status = strings.ToLower(strings.TrimSpace(reqData.Status))
		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, validationErrors(err))
		}

		c.Locals("enrollmentID", enrollmentID)
		c.Locals("validatedStatus", course.EnrollmentStatus(reqData.Status))
		return c.Next()
	}
}
