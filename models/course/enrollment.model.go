package course

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentApproved  EnrollmentStatus = "approved" // legacy alias of active
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// OpenEnrollmentStatuses are covered by the one-open-enrollment-per-pair index.
var OpenEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentPending,
	EnrollmentActive,
	EnrollmentApproved,
	EnrollmentSuspended,
}

// Enrollment tracks a student's participation in a course.
type Enrollment struct {
	gorm.Model
	StudentID uint             `json:"student_id" gorm:"index;not null"`
	CourseID  uint             `json:"course_id" gorm:"index;not null"`
	BranchID  *uint            `json:"branch_id"`
	PaymentID *uint            `json:"payment_id"`
	Status    EnrollmentStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Progress  int              `json:"progress" gorm:"not null;default:0"` // mirror of LearningProgress.OverallProgress
	// ProgressVersion is the LearningProgress version the mirror was derived from.
	ProgressVersion int64      `json:"progress_version" gorm:"not null;default:0"`
	EnrolledAt      time.Time  `json:"enrolled_at"`
	LastAccessedAt  *time.Time `json:"last_accessed_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}
