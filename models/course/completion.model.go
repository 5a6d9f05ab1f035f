package course

import (
	"time"

	"gorm.io/gorm"
)

type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "pending"
	DispatchDelivered DispatchStatus = "delivered"
	DispatchFailed    DispatchStatus = "failed"
)

// CompletionDispatch is the outbox row for completion side effects. There is
// one per enrollment; the step flags record what already went out.
type CompletionDispatch struct {
	gorm.Model
	EnrollmentID      uint           `json:"enrollment_id" gorm:"uniqueIndex;not null"`
	StudentID         uint           `json:"student_id" gorm:"index;not null"`
	CourseID          uint           `json:"course_id" gorm:"not null"`
	Status            DispatchStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CertificateIssued bool           `json:"certificate_issued" gorm:"not null;default:false"`
	CertificateNumber string         `json:"certificate_number"`
	NotificationSent  bool           `json:"notification_sent" gorm:"not null;default:false"`
	Attempts          int            `json:"attempts" gorm:"not null;default:0"`
	LastError         string         `json:"last_error"`
	NextAttemptAt     *time.Time     `json:"next_attempt_at" gorm:"index"`
	DeliveredAt       *time.Time     `json:"delivered_at"`
}

// Notification is an in-app inbox entry.
type Notification struct {
	gorm.Model
	UserID    uint       `json:"user_id" gorm:"index;not null"`
	Title     string     `json:"title"`
	Message   string     `json:"message" gorm:"type:text"`
	ActionURL string     `json:"action_url"`
	ReadAt    *time.Time `json:"read_at"`
}
