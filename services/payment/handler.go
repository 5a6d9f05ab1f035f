// Package payment starts paid enrollments and reconciles gateway callbacks
// into Payment and Enrollment state.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lms/apperror"
	"lms/logger"
	"lms/metrics"
	"lms/models/course"
	"lms/services/catalog"
	"lms/services/enrollment"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CourseLookup interface {
	Course(ctx context.Context, courseID uint) (*catalog.CourseInfo, error)
}

type Handler struct {
	db          *gorm.DB
	enrollments *enrollment.Store
	courses     CourseLookup
	gateway     Gateway
	now         func() time.Time
}

// NewHandler wires the reconciler. gateway may be nil, in which case only
// callbacks are processed and Initiate fails.
func NewHandler(db *gorm.DB, enrollments *enrollment.Store, courses CourseLookup, gateway Gateway) *Handler {
	return &Handler{
		db:          db,
		enrollments: enrollments,
		courses:     courses,
		gateway:     gateway,
		now:         time.Now,
	}
}

// Outcome describes what a callback did.
type Outcome struct {
	Payment    *course.Payment    `json:"payment"`
	Enrollment *course.Enrollment `json:"enrollment,omitempty"`
	Duplicate  bool               `json:"duplicate"`
}

// HandleCallback applies a gateway result to the payment it references.
// Replays of an already settled payment succeed without writing anything.
// Every call is appended to the gateway event log.
func (h *Handler) HandleCallback(ctx context.Context, cb Callback) (*Outcome, error) {
	received := h.now()

	if err := cb.Validate(); err != nil {
		h.logEvent(ctx, cb, nil, course.GatewayEventRejected, err, received)
		return nil, err
	}

	var p course.Payment
	err := h.db.WithContext(ctx).Where("gateway_reference = ?", cb.GatewayReference).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = apperror.NotFound("Payment not found for this reference!")
		h.logEvent(ctx, cb, nil, course.GatewayEventUnknownReference, err, received)
		return nil, err
	}
	if err != nil {
		err = apperror.Storage(err, "load payment by reference")
		h.logEvent(ctx, cb, nil, course.GatewayEventError, err, received)
		return nil, err
	}

	if p.Status.IsTerminal() {
		h.logEvent(ctx, cb, &p.ID, course.GatewayEventDuplicate, nil, received)
		logger.Info().
			Uint("payment_id", p.ID).
			Str("reference", cb.GatewayReference).
			Str("status", string(p.Status)).
			Msg("[PAYMENT] Duplicate callback for settled payment")
		return &Outcome{Payment: &p, Duplicate: true}, nil
	}

	initial := course.EnrollmentActive
	if cb.Succeeded() && h.requiresApproval(ctx, p.CourseID) {
		initial = course.EnrollmentPending
	}

	out, err := h.settle(ctx, &p, cb, initial)
	if err != nil {
		h.logEvent(ctx, cb, &p.ID, course.GatewayEventError, err, received)
		return nil, err
	}

	outcome := course.GatewayEventApplied
	if out.Duplicate {
		outcome = course.GatewayEventDuplicate
	}
	h.logEvent(ctx, cb, &p.ID, outcome, nil, received)

	log := logger.Info().
		Uint("payment_id", out.Payment.ID).
		Str("reference", cb.GatewayReference).
		Str("status", string(out.Payment.Status)).
		Bool("duplicate", out.Duplicate)
	if out.Enrollment != nil {
		log = log.Uint("enrollment_id", out.Enrollment.ID)
	}
	log.Msg("[PAYMENT] Callback reconciled")
	return out, nil
}

// settle moves the payment to its terminal status and, on success, creates
// or links the enrollment. Both happen in one transaction.
func (h *Handler) settle(ctx context.Context, p *course.Payment, cb Callback, initial course.EnrollmentStatus) (*Outcome, error) {
	out := &Outcome{}

	paid := cb.Succeeded()
	reason := failureReason(cb)
	if paid && cb.Amount != nil && *cb.Amount != p.Amount {
		paid = false
		reason = fmt.Sprintf("Paid amount %d does not match course price %d", *cb.Amount, p.Amount)
		logger.Warn().
			Uint("payment_id", p.ID).
			Int64("paid", *cb.Amount).
			Int64("expected", p.Amount).
			Msg("[PAYMENT] Callback amount mismatch")
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := h.now()
		updates := map[string]any{
			"callback_received": true,
			"result_code":       *cb.ResultCode,
			"result_desc":       cb.ResultDesc,
		}
		if len(cb.Metadata) > 0 {
			receipt, err := json.Marshal(cb.Metadata)
			if err != nil {
				return apperror.InvalidRequest("Receipt metadata is not valid JSON!")
			}
			updates["receipt_metadata"] = datatypes.JSON(receipt)
		}
		if paid {
			updates["status"] = course.PaymentCompleted
			updates["completed_at"] = now
		} else {
			updates["status"] = course.PaymentFailed
			updates["failed_at"] = now
			updates["failure_reason"] = reason
		}

		res := tx.Model(&course.Payment{}).
			Where("id = ? AND status IN ?", p.ID, []course.PaymentStatus{course.PaymentPending, course.PaymentProcessing}).
			Updates(updates)
		if res.Error != nil {
			return apperror.Storage(res.Error, "settle payment")
		}
		if res.RowsAffected == 0 {
			// a concurrent callback settled it first
			out.Duplicate = true
			return nil
		}
		if !paid {
			return nil
		}

		store := h.enrollments.WithTx(tx)
		enr, err := store.CreateEnrollment(ctx, enrollment.NewEnrollment{
			StudentID: p.StudentID,
			CourseID:  p.CourseID,
			BranchID:  p.BranchID,
			PaymentID: &p.ID,
			Status:    initial,
		})
		if errors.Is(err, apperror.ErrConflict) {
			enr, err = store.FindOpen(ctx, p.StudentID, p.CourseID)
			if err == nil {
				logger.Info().
					Uint("payment_id", p.ID).
					Uint("enrollment_id", enr.ID).
					Msg("[PAYMENT] Linked existing open enrollment")
			}
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&course.Payment{}).Where("id = ?", p.ID).Update("enrollment_id", enr.ID).Error; err != nil {
			return apperror.Storage(err, "link payment enrollment")
		}
		out.Enrollment = enr
		return nil
	})
	if err != nil {
		return nil, err
	}

	var stored course.Payment
	if err := h.db.WithContext(ctx).First(&stored, p.ID).Error; err != nil {
		return nil, apperror.Storage(err, "reload payment")
	}
	out.Payment = &stored
	return out, nil
}

func (h *Handler) requiresApproval(ctx context.Context, courseID uint) bool {
	if h.courses == nil {
		return false
	}
	info, err := h.courses.Course(ctx, courseID)
	if err != nil {
		logger.Warn().Err(err).Uint("course_id", courseID).Msg("[PAYMENT] Course lookup failed, enrolling as active")
		return false
	}
	return info.RequiresApproval
}

// Ignore records a gateway notification that carries no final result.
func (h *Handler) Ignore(ctx context.Context, cb Callback, reason string) {
	h.logEvent(ctx, cb, nil, course.GatewayEventIgnored, errors.New(reason), h.now())
}

// Reject records a notification that failed verification before it could be
// normalized.
func (h *Handler) Reject(ctx context.Context, provider string, raw []byte, cause error) {
	h.logEvent(ctx, Callback{Provider: provider, Raw: raw}, nil, course.GatewayEventRejected, cause, h.now())
}

func (h *Handler) logEvent(ctx context.Context, cb Callback, paymentID *uint, outcome course.GatewayEventOutcome, cause error, received time.Time) {
	metrics.PaymentCallbacks.WithLabelValues(cb.provider(), string(outcome)).Inc()

	ev := course.PaymentGatewayEvent{
		Provider:         cb.provider(),
		GatewayReference: cb.GatewayReference,
		PaymentID:        paymentID,
		ResultCode:       cb.ResultCode,
		Outcome:          outcome,
		Payload:          eventPayload(cb),
		ReceivedAt:       received,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := h.db.WithContext(context.WithoutCancel(ctx)).Create(&ev).Error; err != nil {
		logger.Error().Err(err).Str("reference", cb.GatewayReference).Msg("[PAYMENT] Failed to write gateway event")
	}
}

func eventPayload(cb Callback) datatypes.JSON {
	if len(cb.Raw) > 0 && json.Valid(cb.Raw) {
		return datatypes.JSON(cb.Raw)
	}
	payload, err := json.Marshal(map[string]any{
		"gatewayReference": cb.GatewayReference,
		"resultCode":       cb.ResultCode,
		"resultDesc":       cb.ResultDesc,
		"metadata":         cb.Metadata,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(payload)
}

func failureReason(cb Callback) string {
	if desc := strings.TrimSpace(cb.ResultDesc); desc != "" {
		return desc
	}
	return fmt.Sprintf("Payment failed with result code %d", *cb.ResultCode)
}
