package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Payment is one attempt to pay for a course enrollment.
type Payment struct {
	gorm.Model
	StudentID   uint          `json:"student_id" gorm:"index;not null"`
	CourseID    uint          `json:"course_id" gorm:"index;not null"`
	BranchID    *uint         `json:"branch_id"`
	Amount      int64         `json:"amount" gorm:"not null"`
	Provider    string        `json:"provider" gorm:"type:varchar(20)"`
	PhoneNumber string        `json:"phone_number"`
	Status      PaymentStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	// GatewayReference is assigned by the provider and keys callback
	// processing. It is never sent to clients.
	GatewayReference *string        `json:"-" gorm:"uniqueIndex"`
	CallbackReceived bool           `json:"callback_received" gorm:"not null;default:false"`
	ResultCode       *int           `json:"result_code"`
	ResultDesc       string         `json:"result_desc"`
	FailureReason    string         `json:"failure_reason"`
	ReceiptMetadata  datatypes.JSON `json:"receipt_metadata"`
	EnrollmentID     *uint          `json:"enrollment_id"`
	CompletedAt      *time.Time     `json:"completed_at"`
	FailedAt         *time.Time     `json:"failed_at"`
}

type GatewayEventOutcome string

const (
	GatewayEventApplied          GatewayEventOutcome = "applied"
	GatewayEventDuplicate        GatewayEventOutcome = "duplicate"
	GatewayEventUnknownReference GatewayEventOutcome = "unknown_reference"
	GatewayEventRejected         GatewayEventOutcome = "rejected"
	GatewayEventIgnored          GatewayEventOutcome = "ignored"
	GatewayEventError            GatewayEventOutcome = "error"
)

// PaymentGatewayEvent is the append-only log of every callback received.
type PaymentGatewayEvent struct {
	ID               uint                `json:"id" gorm:"primarykey"`
	Provider         string              `json:"provider" gorm:"type:varchar(20);not null"`
	GatewayReference string              `json:"gateway_reference" gorm:"index"`
	PaymentID        *uint               `json:"payment_id" gorm:"index"`
	ResultCode       *int                `json:"result_code"`
	Outcome          GatewayEventOutcome `json:"outcome" gorm:"type:varchar(30);not null"`
	Error            string              `json:"error"`
	Payload          datatypes.JSON      `json:"payload"`
	ReceivedAt       time.Time           `json:"received_at"`
	CreatedAt        time.Time           `json:"created_at"`
}
