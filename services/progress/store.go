package progress

import (
	"context"

	"lms/apperror"
	"lms/models/course"
	"lms/services/access"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists LearningProgress documents with optimistic concurrency on
// the version column.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ access.ProgressReader = (*Store)(nil)

// Load returns the document of the pair, or nil when none exists yet.
func (s *Store) Load(ctx context.Context, studentID, courseID uint) (*course.LearningProgress, error) {
	var doc course.LearningProgress
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperror.Storage(err, "load learning progress")
	}
	return &doc, nil
}

// LoadOrCreate returns the document of the pair, creating an empty one at
// version 0 on first use.
func (s *Store) LoadOrCreate(ctx context.Context, studentID, courseID uint) (*course.LearningProgress, error) {
	doc, err := s.Load(ctx, studentID, courseID)
	if err != nil || doc != nil {
		return doc, err
	}

	fresh := &course.LearningProgress{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    course.ProgressNotStarted,
		Modules:   datatypes.NewJSONType([]course.ModuleProgress{}),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, apperror.Storage(err, "create learning progress")
	}

	doc, err = s.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperror.Unavailable("Learning progress is not available yet, please retry!")
	}
	return doc, nil
}

// Save writes doc if its stored version still equals doc.Version and bumps
// the version. It reports false when another writer got there first.
func (s *Store) Save(ctx context.Context, doc *course.LearningProgress) (bool, error) {
	next := doc.Version + 1
	res := s.db.WithContext(ctx).Model(&course.LearningProgress{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version).
		Updates(map[string]any{
			"overall_progress": doc.OverallProgress,
			"status":           doc.Status,
			"total_time_spent": doc.TotalTimeSpent,
			"last_activity_at": doc.LastActivityAt,
			"completed_at":     doc.CompletedAt,
			"modules":          doc.Modules,
			"version":          next,
		})
	if res.Error != nil {
		return false, apperror.Storage(res.Error, "save learning progress")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	doc.Version = next
	return true, nil
}

// ModuleStatuses returns moduleID -> status for the access gate.
func (s *Store) ModuleStatuses(ctx context.Context, studentID, courseID uint) (map[uint]course.ProgressStatus, error) {
	doc, err := s.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]course.ProgressStatus)
	if doc == nil {
		return out, nil
	}
	for _, m := range doc.Modules.Data() {
		out[m.ModuleID] = m.Status
	}
	return out, nil
}
