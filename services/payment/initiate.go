package payment

import (
	"context"
	"fmt"
	"time"

	"lms/apperror"
	"lms/logger"
	"lms/metrics"
	"lms/models/course"

	"gorm.io/gorm/clause"
)

// OpenPaymentTTL is how long an unsettled payment blocks a new checkout for
// the same course. Older ones are expired as failed.
const OpenPaymentTTL = 30 * time.Minute

type InitiateRequest struct {
	StudentID uint
	CourseID  uint
	BranchID  *uint
	Phone     string
}

// Initiate starts a paid enrollment: it records a pending Payment and asks
// the gateway to charge it. The enrollment itself is created by the
// callback.
func (h *Handler) Initiate(ctx context.Context, req InitiateRequest) (*course.Payment, *Charge, error) {
	if h.gateway == nil {
		return nil, nil, apperror.Unavailable("Online payments are not configured!")
	}
	if req.StudentID == 0 || req.CourseID == 0 {
		return nil, nil, apperror.InvalidRequest("Student and course are required!")
	}

	info, err := h.courses.Course(ctx, req.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if info.Status != course.CourseStatusActive {
		return nil, nil, apperror.InvalidRequest("Course is not open for enrollment!")
	}
	if info.IsFree() {
		return nil, nil, apperror.InvalidRequest("Course is free, enroll directly!")
	}
	if err := h.enrollments.EnsureCanEnroll(ctx, req.StudentID, req.CourseID); err != nil {
		return nil, nil, err
	}

	db := h.db.WithContext(ctx)
	if err := h.expireStale(ctx, req.StudentID, req.CourseID); err != nil {
		return nil, nil, err
	}
	var open int64
	if err := db.Model(&course.Payment{}).
		Where("student_id = ? AND course_id = ? AND status IN ?", req.StudentID, req.CourseID,
			[]course.PaymentStatus{course.PaymentPending, course.PaymentProcessing}).
		Count(&open).Error; err != nil {
		return nil, nil, apperror.Storage(err, "check open payments")
	}
	if open > 0 {
		return nil, nil, apperror.Conflict("A payment for this course is already in progress!")
	}

	branchID := req.BranchID
	if branchID == nil {
		branchID = info.BranchID
	}
	p := course.Payment{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		BranchID:    branchID,
		Amount:      info.Price,
		Provider:    h.gateway.Name(),
		PhoneNumber: req.Phone,
		Status:      course.PaymentPending,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return nil, nil, apperror.Storage(res.Error, "create payment")
	}
	if res.RowsAffected == 0 {
		return nil, nil, apperror.Conflict("A payment for this course is already in progress!")
	}

	charge, err := h.gateway.Charge(ctx, ChargeRequest{
		PaymentID:   p.ID,
		CourseID:    p.CourseID,
		Amount:      p.Amount,
		Phone:       p.PhoneNumber,
		Description: info.Title,
	})
	if err != nil {
		metrics.PaymentInitiations.WithLabelValues(p.Provider, "failure").Inc()
		logger.Warn().Err(err).Uint("payment_id", p.ID).Str("provider", p.Provider).Msg("[PAYMENT] Charge request failed")

		now := h.now()
		if uerr := db.Model(&p).Where("status = ?", course.PaymentPending).Updates(map[string]any{
			"status":         course.PaymentFailed,
			"failure_reason": err.Error(),
			"failed_at":      now,
		}).Error; uerr != nil {
			logger.Error().Err(uerr).Uint("payment_id", p.ID).Msg("[PAYMENT] Failed to mark payment failed")
		}
		return nil, nil, apperror.Upstream(err, "Payment provider rejected the charge request!")
	}

	ref := charge.Reference
	res = db.Model(&course.Payment{}).
		Where("id = ? AND status = ?", p.ID, course.PaymentPending).
		Updates(map[string]any{
			"status":            course.PaymentProcessing,
			"gateway_reference": ref,
		})
	if res.Error != nil {
		return nil, nil, apperror.Storage(res.Error, "record gateway reference")
	}
	if res.RowsAffected == 0 {
		return nil, nil, apperror.Conflict("Payment %d changed while contacting the gateway!", p.ID)
	}
	p.Status = course.PaymentProcessing
	p.GatewayReference = &ref

	metrics.PaymentInitiations.WithLabelValues(p.Provider, "success").Inc()
	logger.Info().
		Uint("payment_id", p.ID).
		Uint("student_id", p.StudentID).
		Uint("course_id", p.CourseID).
		Str("provider", p.Provider).
		Str("reference", ref).
		Msg("[PAYMENT] Charge requested")
	return &p, charge, nil
}

// expireStale fails open payments of the pair that never got a gateway
// result within OpenPaymentTTL.
func (h *Handler) expireStale(ctx context.Context, studentID, courseID uint) error {
	now := h.now()
	res := h.db.WithContext(ctx).Model(&course.Payment{}).
		Where("student_id = ? AND course_id = ? AND status IN ? AND created_at < ?", studentID, courseID,
			[]course.PaymentStatus{course.PaymentPending, course.PaymentProcessing}, now.Add(-OpenPaymentTTL)).
		Updates(map[string]any{
			"status":         course.PaymentFailed,
			"failure_reason": "Payment expired without a gateway result",
			"failed_at":      now,
		})
	if res.Error != nil {
		return apperror.Storage(res.Error, "expire stale payments")
	}
	if res.RowsAffected > 0 {
		logger.Info().
			Uint("student_id", studentID).
			Uint("course_id", courseID).
			Int64("expired", res.RowsAffected).
			Msg("[PAYMENT] Expired stale payments")
	}
	return nil
}

func describeCourse(courseID uint) string {
	return fmt.Sprintf("COURSE-%d", courseID)
}
