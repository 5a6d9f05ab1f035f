// Package enrollment persists student/course enrollments and owns their
// lifecycle. It is the only writer of Enrollment status and progress.
package enrollment

import (
	"context"
	"time"

	"lms/apperror"
	"lms/logger"
	"lms/metrics"
	"lms/models/course"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxTransitionAttempts bounds compare-and-set retries when the status
// changes between read and write.
const maxTransitionAttempts = 3

// CompletionHook is told when Transition moves an enrollment to completed.
type CompletionHook interface {
	OnCourseCompleted(ctx context.Context, studentID, courseID, enrollmentID uint)
}

type Store struct {
	db   *gorm.DB
	now  func() time.Time
	hook CompletionHook
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetCompletionHook registers the receiver of completions made through
// Transition. Progress driven completions are reported by the tracker.
func (s *Store) SetCompletionHook(h CompletionHook) {
	s.hook = h
}

// WithTx returns a Store bound to an open transaction. It carries no
// completion hook.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, now: s.now}
}

// NewEnrollment describes an enrollment to create.
type NewEnrollment struct {
	StudentID uint
	CourseID  uint
	BranchID  *uint
	PaymentID *uint
	Status    course.EnrollmentStatus // active, or pending when approval is required
}

// CreateEnrollment inserts an enrollment unless the pair already has an open
// one, in which case it fails with apperror.ErrConflict. The check is the
// partial unique index, so concurrent creators cannot both succeed.
func (s *Store) CreateEnrollment(ctx context.Context, in NewEnrollment) (*course.Enrollment, error) {
	if in.StudentID == 0 || in.CourseID == 0 {
		return nil, apperror.InvalidRequest("Student and course are required!")
	}
	if in.Status != course.EnrollmentActive && in.Status != course.EnrollmentPending {
		return nil, apperror.InvalidRequest("Enrollment must start as active or pending!")
	}

	e := &course.Enrollment{
		StudentID:  in.StudentID,
		CourseID:   in.CourseID,
		BranchID:   in.BranchID,
		PaymentID:  in.PaymentID,
		Status:     in.Status,
		EnrolledAt: s.now(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return nil, apperror.Storage(res.Error, "create enrollment")
	}
	if res.RowsAffected == 0 {
		return nil, apperror.Conflict("Student already has an open enrollment in this course!")
	}

	metrics.EnrollmentsCreated.WithLabelValues(string(e.Status)).Inc()
	logger.Info().
		Uint("enrollment_id", e.ID).
		Uint("student_id", e.StudentID).
		Uint("course_id", e.CourseID).
		Str("status", string(e.Status)).
		Msg("[ENROLLMENT] Created")
	return e, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*course.Enrollment, error) {
	var e course.Enrollment
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Enrollment not found!")
		}
		return nil, apperror.Storage(err, "load enrollment")
	}
	return &e, nil
}

// FindOpen returns the open enrollment of the pair, if any.
func (s *Store) FindOpen(ctx context.Context, studentID, courseID uint) (*course.Enrollment, error) {
	var e course.Enrollment
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND status IN ?", studentID, courseID, course.OpenEnrollmentStatuses).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("No open enrollment for this course!")
		}
		return nil, apperror.Storage(err, "load open enrollment")
	}
	return &e, nil
}

// FindForProgress returns the most recent enrollment of the pair regardless
// of status.
func (s *Store) FindForProgress(ctx context.Context, studentID, courseID uint) (*course.Enrollment, error) {
	var e course.Enrollment
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("id desc").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("User not enrolled in this course!")
		}
		return nil, apperror.Storage(err, "load enrollment")
	}
	return &e, nil
}

// EnsureCanEnroll fails with Conflict when the pair has an open enrollment or
// has already completed the course.
func (s *Store) EnsureCanEnroll(ctx context.Context, studentID, courseID uint) error {
	e, err := s.FindForProgress(ctx, studentID, courseID)
	if apperror.KindOf(err) == apperror.KindNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	switch e.Status {
	case course.EnrollmentCompleted:
		return apperror.Conflict("Course already completed!")
	case course.EnrollmentDropped, course.EnrollmentFailed:
		return nil
	}
	return apperror.Conflict("Student already has an open enrollment in this course!")
}

// ListByStudent returns one page of a student's enrollments, newest first.
func (s *Store) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]course.Enrollment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	q := s.db.WithContext(ctx).Model(&course.Enrollment{}).Where("student_id = ?", studentID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperror.Storage(err, "count enrollments")
	}

	var enrollments []course.Enrollment
	if err := q.Order("created_at desc, id desc").Offset((page - 1) * limit).Limit(limit).Find(&enrollments).Error; err != nil {
		return nil, 0, apperror.Storage(err, "list enrollments")
	}
	return enrollments, total, nil
}

// Transition moves an enrollment to a new status if the transition table
// allows it. The write is conditional on the status that was read.
func (s *Store) Transition(ctx context.Context, id uint, to course.EnrollmentStatus) (*course.Enrollment, error) {
	if !IsValidStatus(to) {
		return nil, apperror.InvalidRequest("Unknown enrollment status %q!", to)
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(e.Status, to) {
			return nil, apperror.InvalidTransition("Cannot move enrollment from %s to %s!", e.Status, to)
		}

		now := s.now()
		updates := map[string]any{"status": to}
		if to == course.EnrollmentCompleted {
			updates["progress"] = 100
			updates["completed_at"] = now
		}

		res := s.db.WithContext(ctx).Model(&course.Enrollment{}).
			Where("id = ? AND status = ?", id, e.Status).
			Updates(updates)
		if res.Error != nil {
			return nil, apperror.Storage(res.Error, "update enrollment status")
		}
		if res.RowsAffected == 1 {
			metrics.EnrollmentTransitions.WithLabelValues(string(e.Status), string(to)).Inc()
			logger.Info().
				Uint("enrollment_id", id).
				Str("from", string(e.Status)).
				Str("to", string(to)).
				Msg("[ENROLLMENT] Status changed")
			if to == course.EnrollmentCompleted && s.hook != nil {
				s.hook.OnCourseCompleted(ctx, e.StudentID, e.CourseID, e.ID)
			}
			return s.Get(ctx, id)
		}
	}
	return nil, apperror.Conflict("Enrollment changed concurrently, please retry!")
}

// RecordProgress updates the progress mirror from the LearningProgress
// document at sourceVersion. Mirrors from an older document version are
// ignored. Reaching 100 completes the enrollment; completedNow is true only
// for the call that performed that transition.
func (s *Store) RecordProgress(ctx context.Context, id uint, percent int, accessedAt time.Time, sourceVersion int64) (*course.Enrollment, bool, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	db := s.db.WithContext(ctx)

	if e.Status == course.EnrollmentCompleted {
		if err := db.Model(&course.Enrollment{}).Where("id = ?", id).
			Update("last_accessed_at", accessedAt).Error; err != nil {
			return nil, false, apperror.Storage(err, "touch enrollment")
		}
		e.LastAccessedAt = &accessedAt
		return e, false, nil
	}
	if e.Status != course.EnrollmentActive && e.Status != course.EnrollmentApproved {
		return nil, false, apperror.Forbidden("Enrollment is %s!", e.Status)
	}

	enrolled := []course.EnrollmentStatus{course.EnrollmentActive, course.EnrollmentApproved}
	updates := map[string]any{
		"progress":         percent,
		"progress_version": sourceVersion,
		"last_accessed_at": accessedAt,
	}
	if percent >= 100 {
		updates["status"] = course.EnrollmentCompleted
		updates["completed_at"] = accessedAt
	}

	res := db.Model(&course.Enrollment{}).
		Where("id = ? AND status IN ? AND progress_version < ?", id, enrolled, sourceVersion).
		Updates(updates)
	if res.Error != nil {
		return nil, false, apperror.Storage(res.Error, "record enrollment progress")
	}

	completedNow := res.RowsAffected == 1 && percent >= 100
	if res.RowsAffected == 0 {
		logger.Debug().
			Uint("enrollment_id", id).
			Int64("source_version", sourceVersion).
			Msg("[ENROLLMENT] Stale progress mirror skipped")
	}
	if completedNow {
		metrics.EnrollmentTransitions.WithLabelValues(string(e.Status), string(course.EnrollmentCompleted)).Inc()
		logger.Info().
			Uint("enrollment_id", id).
			Uint("student_id", e.StudentID).
			Uint("course_id", e.CourseID).
			Msg("[ENROLLMENT] Completed")
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return updated, completedNow, nil
}
