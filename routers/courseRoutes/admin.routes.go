package courseRoutes

import (
	controllers "lms/controllers/course"
	"lms/middleware"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminCourseRoutes sets up admin enrollment management routes
func SetupAdminCourseRoutes(app *fiber.App, ctl *controllers.Controller) {
	adminGroup := app.Group("/admin", middleware.JWTMiddleware, middleware.RequireRole(middleware.RoleAdmin))

	adminGroup.Patch("/enrollments/:id/status", validators.EnrollmentStatus(), ctl.AdminUpdateEnrollmentStatus)
}
