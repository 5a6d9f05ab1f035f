// Package progress records content progress and derives module and course
// completion from it.
package progress

import (
	"context"
	"math/rand"
	"time"

	"lms/apperror"
	"lms/logger"
	"lms/metrics"
	"lms/models/course"
	"lms/services/access"
	"lms/services/catalog"
	"lms/services/enrollment"
)

// EnrollmentMirror is the slice of the enrollment store the tracker uses.
type EnrollmentMirror interface {
	FindForProgress(ctx context.Context, studentID, courseID uint) (*course.Enrollment, error)
	RecordProgress(ctx context.Context, id uint, percent int, accessedAt time.Time, sourceVersion int64) (*course.Enrollment, bool, error)
}

type CourseOutline interface {
	Outline(ctx context.Context, courseID uint) ([]catalog.ModuleOutline, error)
}

type ModuleGate interface {
	Decide(ctx context.Context, studentID, courseID uint, modules []access.Module, moduleID uint) (access.Decision, error)
}

// CompletionHook is told once a course reaches 100%. It must not block.
type CompletionHook interface {
	OnCourseCompleted(ctx context.Context, studentID, courseID, enrollmentID uint)
}

type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Now         func() time.Time
}

type Tracker struct {
	store       *Store
	enrollments EnrollmentMirror
	catalog     CourseOutline
	gate        ModuleGate
	hook        CompletionHook

	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

func NewTracker(store *Store, enrollments EnrollmentMirror, outline CourseOutline, gate ModuleGate, hook CompletionHook, opts Options) *Tracker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 5 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:       store,
		enrollments: enrollments,
		catalog:     outline,
		gate:        gate,
		hook:        hook,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		now:         opts.Now,
	}
}

// Result is what a content progress update returns to the client.
type Result struct {
	ContentProgress course.ContentProgress `json:"contentProgress"`
	ModuleProgress  course.ModuleProgress  `json:"moduleProgress"`
	CourseProgress  CourseProgress         `json:"courseProgress"`
}

// RecordContentProgress applies one content progress event for a student.
func (t *Tracker) RecordContentProgress(ctx context.Context, studentID, courseID, moduleID, contentID uint, ev Event) (*Result, error) {
	started := time.Now()
	defer func() { metrics.ProgressUpdateDuration.Observe(time.Since(started).Seconds()) }()

	if moduleID == 0 || contentID == 0 {
		return nil, apperror.InvalidRequest("Module and content are required!")
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	enr, err := t.enrollments.FindForProgress(ctx, studentID, courseID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Forbidden("User not enrolled in this course!")
		}
		return nil, err
	}
	if !enrollment.IsEnrolled(enr.Status) {
		return nil, apperror.Forbidden("Enrollment is %s, progress cannot be recorded!", enr.Status)
	}

	outline, err := t.catalog.Outline(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(outline) > 0 {
		if err := t.checkAccess(ctx, studentID, courseID, moduleID, contentID, outline); err != nil {
			return nil, err
		}
	}

	var (
		doc    *course.LearningProgress
		result applied
		saved  bool
	)
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		doc, err = t.store.LoadOrCreate(ctx, studentID, courseID)
		if err != nil {
			return nil, err
		}
		result = apply(doc, outline, moduleID, contentID, ev, t.now())

		saved, err = t.store.Save(ctx, doc)
		if err != nil {
			return nil, err
		}
		if saved {
			break
		}

		metrics.ProgressWriteConflicts.Inc()
		logger.Debug().
			Uint("student_id", studentID).
			Uint("course_id", courseID).
			Int("attempt", attempt).
			Msg("[PROGRESS] Version conflict, retrying")
		if err := t.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	if !saved {
		return nil, apperror.Unavailable("Progress is being updated elsewhere, please retry!")
	}
	result.overall.Version = doc.Version

	updated, completedNow, err := t.enrollments.RecordProgress(ctx, enr.ID, doc.OverallProgress, t.now(), doc.Version)
	if err != nil {
		return nil, err
	}

	if result.justCompleted || completedNow {
		metrics.CourseCompletions.Inc()
		logger.Info().
			Uint("student_id", studentID).
			Uint("course_id", courseID).
			Uint("enrollment_id", updated.ID).
			Msg("[PROGRESS] Course completed")
		if t.hook != nil {
			t.hook.OnCourseCompleted(ctx, studentID, courseID, updated.ID)
		}
	}

	return &Result{
		ContentProgress: result.content,
		ModuleProgress:  result.module,
		CourseProgress:  result.overall,
	}, nil
}

func (t *Tracker) checkAccess(ctx context.Context, studentID, courseID, moduleID, contentID uint, outline []catalog.ModuleOutline) error {
	m, ok := catalog.Find(outline, moduleID)
	if !ok {
		return apperror.NotFound("Module not found in this course!")
	}
	if !containsID(m.ContentIDs, contentID) {
		return apperror.NotFound("Content not found in this module!")
	}

	decision, err := t.gate.Decide(ctx, studentID, courseID, catalog.Modules(outline), moduleID)
	if err != nil {
		return err
	}
	if !decision.Accessible {
		return apperror.Forbidden("%s", decision.Reason)
	}
	return nil
}

// Get returns the learning progress document, or NotFound before the first
// event.
func (t *Tracker) Get(ctx context.Context, studentID, courseID uint) (*course.LearningProgress, error) {
	doc, err := t.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperror.NotFound("No progress recorded for this course yet!")
	}
	return doc, nil
}

func (t *Tracker) backoff(ctx context.Context, attempt int) error {
	d := t.baseBackoff * time.Duration(1<<min(attempt-1, 6))
	d += time.Duration(rand.Int63n(int64(d) + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperror.Unavailable("Request cancelled while retrying progress update!")
	case <-timer.C:
		return nil
	}
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
