// Package completion runs the side effects of a course completion:
// certificate issuance, then a notification to the student.
//
// Each completed enrollment gets one CompletionDispatch outbox row. The row
// records which steps went out, so a repeated completion never re-issues,
// and failed steps are retried by RetryPending until MaxAttempts.
package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lms/logger"
	"lms/metrics"
	"lms/models/course"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CertificateIssuer issues a completion certificate and returns its number.
// Issuing twice for the same student and course must return the same
// certificate.
type CertificateIssuer interface {
	Issue(ctx context.Context, studentID, courseID, enrollmentID uint) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message, actionURL string) error
}

type Options struct {
	MaxAttempts int
	// Lease is how long a claimed row is hidden from other workers.
	Lease       time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	BaseURL     string
	Breaker     BreakerConfig
	Now         func() time.Time
}

type Dispatcher struct {
	db       *gorm.DB
	issuer   CertificateIssuer
	notifier Notifier

	certBreaker   *gobreaker.CircuitBreaker[string]
	notifyBreaker *gobreaker.CircuitBreaker[struct{}]

	opts Options
	wg   sync.WaitGroup
}

func NewDispatcher(db *gorm.DB, issuer CertificateIssuer, notifier Notifier, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		db:            db,
		issuer:        issuer,
		notifier:      notifier,
		certBreaker:   newBreaker[string]("certificate-issuer", opts.Breaker),
		notifyBreaker: newBreaker[struct{}]("notifier", opts.Breaker),
		opts:          opts,
	}
}

// OnCourseCompleted queues the side effects of a completion and runs them in
// the background. It never blocks on collaborators and never fails.
func (d *Dispatcher) OnCourseCompleted(ctx context.Context, studentID, courseID, enrollmentID uint) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Uint("enrollment_id", enrollmentID).Msg("[DISPATCH] Recovered from panic")
			}
		}()

		row, err := d.enqueue(ctx, studentID, courseID, enrollmentID)
		if err != nil {
			logger.Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("[DISPATCH] Failed to enqueue completion")
			return
		}
		if row.Status != course.DispatchPending {
			logger.Debug().Uint("enrollment_id", enrollmentID).Str("status", string(row.Status)).Msg("[DISPATCH] Already dispatched")
			return
		}
		d.runClaimed(ctx, row.ID)
	}()
}

// Wait blocks until background dispatches started so far have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RetryPending runs every pending row that is due. It returns how many rows
// it processed.
func (d *Dispatcher) RetryPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var due []course.CompletionDispatch
	err := d.db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", course.DispatchPending, d.opts.Now()).
		Order("id asc").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return 0, errors.Wrap(err, "load due completion dispatches")
	}

	processed := 0
	for _, row := range due {
		if d.runClaimed(ctx, row.ID) {
			processed++
		}
	}
	return processed, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, studentID, courseID, enrollmentID uint) (*course.CompletionDispatch, error) {
	db := d.db.WithContext(ctx)
	row := &course.CompletionDispatch{
		EnrollmentID: enrollmentID,
		StudentID:    studentID,
		CourseID:     courseID,
		Status:       course.DispatchPending,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, errors.Wrap(err, "insert completion dispatch")
	}

	var stored course.CompletionDispatch
	if err := db.Where("enrollment_id = ?", enrollmentID).First(&stored).Error; err != nil {
		return nil, errors.Wrap(err, "load completion dispatch")
	}
	return &stored, nil
}

// claim takes the row for one attempt by pushing next_attempt_at past the
// lease. Only one caller wins.
func (d *Dispatcher) claim(ctx context.Context, id uint) (*course.CompletionDispatch, bool, error) {
	now := d.opts.Now()
	leaseUntil := now.Add(d.opts.Lease)

	res := d.db.WithContext(ctx).Model(&course.CompletionDispatch{}).
		Where("id = ? AND status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", id, course.DispatchPending, now).
		Updates(map[string]any{
			"next_attempt_at": leaseUntil,
			"attempts":        gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "claim completion dispatch")
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	var row course.CompletionDispatch
	if err := d.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, false, errors.Wrap(err, "reload completion dispatch")
	}
	return &row, true, nil
}

func (d *Dispatcher) runClaimed(ctx context.Context, id uint) bool {
	row, ok, err := d.claim(ctx, id)
	if err != nil {
		logger.Error().Err(err).Uint("dispatch_id", id).Msg("[DISPATCH] Claim failed")
		return false
	}
	if !ok {
		return false
	}
	d.process(ctx, row)
	return true
}

// process runs the outstanding steps of a claimed row. Step failures are
// logged and recorded on the row, never returned.
func (d *Dispatcher) process(ctx context.Context, row *course.CompletionDispatch) {
	log := logger.With().
		Uint("enrollment_id", row.EnrollmentID).
		Uint("student_id", row.StudentID).
		Uint("course_id", row.CourseID).
		Int("attempt", row.Attempts).
		Logger()

	var failures []string
	updates := map[string]any{}

	if row.CertificateIssued {
		metrics.CompletionDispatchSteps.WithLabelValues("certificate", "skipped").Inc()
	} else {
		number, err := d.certBreaker.Execute(func() (string, error) {
			return d.issuer.Issue(ctx, row.StudentID, row.CourseID, row.EnrollmentID)
		})
		if err != nil {
			metrics.CompletionDispatchSteps.WithLabelValues("certificate", "failure").Inc()
			log.Warn().Err(err).Msg("[DISPATCH] Certificate issuance failed")
			failures = append(failures, "certificate: "+err.Error())
		} else {
			metrics.CompletionDispatchSteps.WithLabelValues("certificate", "success").Inc()
			row.CertificateIssued = true
			row.CertificateNumber = number
			updates["certificate_issued"] = true
			updates["certificate_number"] = number
		}
	}

	if row.NotificationSent {
		metrics.CompletionDispatchSteps.WithLabelValues("notification", "skipped").Inc()
	} else {
		title, message, actionURL := d.completionMessage(row)
		_, err := d.notifyBreaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.notifier.Notify(ctx, row.StudentID, title, message, actionURL)
		})
		if err != nil {
			metrics.CompletionDispatchSteps.WithLabelValues("notification", "failure").Inc()
			log.Warn().Err(err).Msg("[DISPATCH] Notification failed")
			failures = append(failures, "notification: "+err.Error())
		} else {
			metrics.CompletionDispatchSteps.WithLabelValues("notification", "success").Inc()
			row.NotificationSent = true
			updates["notification_sent"] = true
		}
	}

	now := d.opts.Now()
	switch {
	case len(failures) == 0:
		updates["status"] = course.DispatchDelivered
		updates["delivered_at"] = now
		updates["next_attempt_at"] = nil
		updates["last_error"] = ""
		log.Info().Str("certificate_number", row.CertificateNumber).Msg("[DISPATCH] Completion side effects delivered")
	case row.Attempts >= d.opts.MaxAttempts:
		updates["status"] = course.DispatchFailed
		updates["next_attempt_at"] = nil
		updates["last_error"] = strings.Join(failures, "; ")
		log.Error().Str("last_error", updates["last_error"].(string)).Msg("[DISPATCH] Giving up on completion side effects")
	default:
		updates["next_attempt_at"] = now.Add(d.backoff(row.Attempts))
		updates["last_error"] = strings.Join(failures, "; ")
	}

	if err := d.db.WithContext(ctx).Model(&course.CompletionDispatch{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Msg("[DISPATCH] Failed to record dispatch result")
	}
}

func (d *Dispatcher) completionMessage(row *course.CompletionDispatch) (title, message, actionURL string) {
	title = "Course completed!"
	message = "Congratulations, you have completed the course."
	if row.CertificateNumber != "" {
		message += fmt.Sprintf(" Your certificate number is %s.", row.CertificateNumber)
	}
	actionURL = fmt.Sprintf("%s/courses/%d/certificate", strings.TrimRight(d.opts.BaseURL, "/"), row.CourseID)
	return title, message, actionURL
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.opts.MaxBackoff {
			return d.opts.MaxBackoff
		}
	}
	return delay
}
