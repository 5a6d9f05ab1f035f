package courseRoutes

import (
	controllers "lms/controllers/course"
	"lms/middleware"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupCourseRoutes sets up all user-facing course routes
func SetupCourseRoutes(app *fiber.App, ctl *controllers.Controller) {
	userGroup := app.Group("/course")

	// Enrollment: free courses enroll directly, paid ones go through checkout
	userGroup.Post("/:id/enroll", middleware.JWTMiddleware, validators.EnrollCourse(), ctl.EnrollInCourse)
	userGroup.Post("/:id/checkout", middleware.JWTMiddleware, validators.Checkout(), ctl.Checkout)

	// Progress tracking and module gating
	coursesGroup := app.Group("/courses")
	coursesGroup.Put("/:courseId/modules/:moduleId/content/:contentId/progress", middleware.JWTMiddleware, validators.ContentProgress(), ctl.RecordContentProgress)
	coursesGroup.Get("/:courseId/progress", middleware.JWTMiddleware, validators.CourseParam("courseId"), ctl.GetUserProgress)
	coursesGroup.Get("/:courseId/modules/access", middleware.JWTMiddleware, validators.ModuleAccess(), ctl.GetModuleAccess)

	// User enrollments and certificates
	userEnrollGroup := app.Group("/user")
	userEnrollGroup.Get("/enrollments", middleware.JWTMiddleware, validators.GetUserEnrollments(), ctl.GetUserEnrollmentsList)
	userEnrollGroup.Get("/certificates", middleware.JWTMiddleware, ctl.GetUserCertificates)
}
