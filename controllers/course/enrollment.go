package controllers

import (
	"lms/middleware"
	"lms/services/payment"
	validators "lms/validators/course"

	"lms/models/course"

	"github.com/gofiber/fiber/v2"
)

// EnrollInCourse enrolls the caller in a free course.
func (ctl *Controller) EnrollInCourse(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)

	info, err := ctl.svc.Catalog.Course(c.UserContext(), courseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	e, err := ctl.svc.Enrollments.EnrollFree(c.UserContext(), userID, info)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "Enrolled in course successfully!"
	if e.Status == course.EnrollmentPending {
		message = "Enrollment submitted for approval!"
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, message, e)
}

// Checkout starts a paid enrollment. The enrollment appears once the gateway
// confirms the payment.
func (ctl *Controller) Checkout(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	courseID := c.Locals("courseID").(uint)
	reqData := c.Locals("validatedCheckout").(*validators.CheckoutRequest)

	p, charge, err := ctl.svc.Payments.Initiate(c.UserContext(), payment.InitiateRequest{
		StudentID: userID,
		CourseID:  courseID,
		BranchID:  reqData.BranchID,
		Phone:     reqData.Phone,
	})
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusAccepted, true, "Payment request sent, complete it on your phone!", fiber.Map{
		"payment": p,
		"charge":  charge,
	})
}

// GetUserEnrollmentsList lists the caller's enrollments, newest first.
func (ctl *Controller) GetUserEnrollmentsList(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	page, limit := 1, 20
	if q, ok := c.Locals("validatedEnrollmentList").(*validators.EnrollmentListQuery); ok {
		if q.Page != nil {
			page = *q.Page
		}
		if q.Limit != nil {
			limit = *q.Limit
		}
	}

	enrollments, total, err := ctl.svc.Enrollments.ListByStudent(c.UserContext(), userID, page, limit)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", fiber.Map{
		"enrollments": enrollments,
		"pagination": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// AdminUpdateEnrollmentStatus applies an admin status transition.
func (ctl *Controller) AdminUpdateEnrollmentStatus(c *fiber.Ctx) error {
	enrollmentID := c.Locals("enrollmentID").(uint)
	status := c.Locals("validatedStatus").(course.EnrollmentStatus)

	e, err := ctl.svc.Enrollments.Transition(c.UserContext(), enrollmentID, status)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment status updated successfully!", e)
}

// GetUserCertificates lists the caller's completion certificates.
func (ctl *Controller) GetUserCertificates(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	certs, err := ctl.svc.Certificates.ListByUser(c.UserContext(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificates fetched successfully!", fiber.Map{
		"certificates": certs,
		"total":        len(certs),
	})
}
