package courseValidator

import (
	"reflect"
	"strconv"
	"strings"

	"lms/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of struct field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationErrors turns validator output into the field -> message map
// returned by ValidationErrorResponse.
func validationErrors(err error) map[string]string {
	errs := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["body"] = "Invalid request body!"
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			errs[field] = field + " is required!"
		case "oneof":
			errs[field] = field + " must be one of: " + fe.Param() + "!"
		case "min":
			errs[field] = field + " must be at least " + fe.Param() + "!"
		case "max":
			errs[field] = field + " must not exceed " + fe.Param() + "!"
		default:
			errs[field] = field + " is invalid!"
		}
	}
	return errs
}

// parseID reads a positive integer route parameter.
func parseID(c *fiber.Ctx, param string) (uint, bool) {
	raw := strings.TrimSpace(c.Params(param))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// CourseParam validates the course id route parameter and stores it in
// Locals("courseID") as uint.
func CourseParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseID(c, param)
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		c.Locals("courseID", courseID)
		return c.Next()
	}
}
