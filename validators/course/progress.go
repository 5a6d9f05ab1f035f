package courseValidator

import (
	"lms/middleware"
	"lms/models/course"
	"lms/services/progress"

	"github.com/gofiber/fiber/v2"
)

type ContentProgressRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=in_progress completed"`
	Progress      *int    `json:"progress" validate:"omitempty,min=0,max=100"`
	ProgressDelta *int    `json:"progressDelta" validate:"omitempty,min=-100,max=100"`
	TimeSpent     int     `json:"timeSpent" validate:"min=0"`
}

// ContentProgressIDs are the route ids of a content progress update.
type ContentProgressIDs struct {
	CourseID  uint
	ModuleID  uint
	ContentID uint
}

func ContentProgress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		errors := make(map[string]string)
		courseID, ok := parseID(c, "courseId")
		if !ok {
			errors["courseId"] = "Invalid Course ID!"
		}
		moduleID, ok := parseID(c, "moduleId")
		if !ok {
			errors["moduleId"] = "Invalid Module ID!"
		}
		contentID, ok := parseID(c, "contentId")
		if !ok {
			errors["contentId"] = "Invalid Content ID!"
		}
		if len(errors) > 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid route parameters!", errors)
		}

		reqData := new(ContentProgressRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, validationErrors(err))
		}

		ev := progress.Event{
			Progress:      reqData.Progress,
			ProgressDelta: reqData.ProgressDelta,
			TimeSpent:     reqData.TimeSpent,
		}
		if reqData.Status != nil {
			status := course.ProgressStatus(*reqData.Status)
			ev.Status = &status
		}

		c.Locals("validatedProgressIDs", ContentProgressIDs{CourseID: courseID, ModuleID: moduleID, ContentID: contentID})
		c.Locals("validatedProgress", ev)
		return c.Next()
	}
}

func ModuleAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseID(c, "courseId")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		c.Locals("courseID", courseID)
		c.Locals("explain", c.QueryBool("explain", false))
		return c.Next()
	}
}
