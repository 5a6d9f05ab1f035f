package enrollment

import (
	"context"

	"lms/apperror"
	"lms/models/course"
	"lms/services/catalog"
)

// EnrollFree enrolls a student in a free course. Courses that need approval
// start pending; the rest start active.
func (s *Store) EnrollFree(ctx context.Context, studentID uint, info *catalog.CourseInfo) (*course.Enrollment, error) {
	if info.Status != course.CourseStatusActive {
		return nil, apperror.NotFound("Course not found or not active!")
	}
	if !info.IsFree() {
		return nil, apperror.InvalidRequest("This course requires payment, use checkout!")
	}
	if err := s.EnsureCanEnroll(ctx, studentID, info.ID); err != nil {
		return nil, err
	}

	status := course.EnrollmentActive
	if info.RequiresApproval {
		status = course.EnrollmentPending
	}
	return s.CreateEnrollment(ctx, NewEnrollment{
		StudentID: studentID,
		CourseID:  info.ID,
		BranchID:  info.BranchID,
		Status:    status,
	})
}
