package controllers

import (
	"lms/apperror"
	"lms/middleware"
	"lms/services/catalog"
	"lms/services/progress"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// RecordContentProgress applies one progress event for the caller.
func (ctl *Controller) RecordContentProgress(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ids := c.Locals("validatedProgressIDs").(validators.ContentProgressIDs)
	ev := c.Locals("validatedProgress").(progress.Event)

	result, err := ctl.svc.Progress.RecordContentProgress(c.UserContext(), userID, ids.CourseID, ids.ModuleID, ids.ContentID, ev)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress updated successfully!", result)
}

// GetUserProgress returns the caller's learning progress document.
func (ctl *Controller) GetUserProgress(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	doc, err := ctl.svc.Progress.Get(c.UserContext(), userID, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched successfully!", doc)
}

// GetModuleAccess returns which modules of a course the caller may open,
// with reasons for locked ones when explain=true.
func (ctl *Controller) GetModuleAccess(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)
	explain, _ := c.Locals("explain").(bool)
	ctx := c.UserContext()

	if _, err := ctl.svc.Enrollments.FindForProgress(ctx, userID, courseID); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return middleware.JsonResponse(c, fiber.StatusForbidden, false, "User not enrolled in this course!", nil)
		}
		return middleware.ErrorResponse(c, err)
	}

	outline, err := ctl.svc.Catalog.Outline(ctx, courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	modules := catalog.Modules(outline)

	if explain {
		decisions, err := ctl.svc.Gate.Explain(ctx, userID, courseID, modules)
		if err != nil {
			return middleware.ErrorResponse(c, err)
		}
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Module access fetched successfully!", decisions)
	}

	accessible, err := ctl.svc.Gate.ComputeAccessibility(ctx, userID, courseID, modules)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Module access fetched successfully!", accessible)
}
