package course

import (
	"time"

	"gorm.io/gorm"
)

// Quiz is attached to a module and gates the module after it.
type Quiz struct {
	gorm.Model
	CourseID  uint   `json:"course_id" gorm:"index;not null"`
	ModuleID  uint   `json:"module_id" gorm:"index;not null"`
	Title     string `json:"title"`
	IsDeleted bool   `gorm:"default:false"`
}

type QuizAttemptStatus string

const (
	QuizAttemptInProgress QuizAttemptStatus = "in_progress"
	QuizAttemptSubmitted  QuizAttemptStatus = "submitted"
	QuizAttemptGraded     QuizAttemptStatus = "graded"
)

// QuizAttempt is one try at a quiz, written by the quiz service.
type QuizAttempt struct {
	gorm.Model
	StudentID       uint              `json:"student_id" gorm:"index:idx_quiz_attempts_student_quiz;not null"`
	QuizID          uint              `json:"quiz_id" gorm:"index:idx_quiz_attempts_student_quiz;not null"`
	Status          QuizAttemptStatus `json:"status" gorm:"type:varchar(20);not null"`
	PercentageScore float64           `json:"percentage_score" gorm:"default:0"`
	SubmittedAt     *time.Time        `json:"submitted_at"`
}
