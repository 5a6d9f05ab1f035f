// Package quiz reads quiz attempts recorded by the quiz service.
package quiz

import (
	"context"

	"lms/apperror"
	"lms/models/course"
	"lms/services/access"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

var _ access.QuizAttemptReader = (*Reader)(nil)

// BestPassingAttempt returns the highest scoring submitted or graded attempt
// at or above threshold, or nil.
func (r *Reader) BestPassingAttempt(ctx context.Context, studentID, quizID uint, threshold float64) (*access.Attempt, error) {
	var a course.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status IN ? AND percentage_score >= ?",
			studentID, quizID,
			[]course.QuizAttemptStatus{course.QuizAttemptSubmitted, course.QuizAttemptGraded},
			threshold).
		Order("percentage_score desc, id asc").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperror.Storage(err, "load quiz attempts")
	}
	return &access.Attempt{
		ID:              a.ID,
		QuizID:          a.QuizID,
		Status:          a.Status,
		PercentageScore: a.PercentageScore,
		SubmittedAt:     a.SubmittedAt,
	}, nil
}
