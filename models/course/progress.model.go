package course

import (
	"time"

	"gorm.io/datatypes"
)

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) rank() int {
	switch s {
	case ProgressInProgress:
		return 1
	case ProgressCompleted:
		return 2
	}
	return 0
}

// Advance returns the later of s and next; statuses never move backward.
func (s ProgressStatus) Advance(next ProgressStatus) ProgressStatus {
	if next.rank() > s.rank() {
		return next
	}
	if s == "" {
		return ProgressNotStarted
	}
	return s
}

type ContentProgress struct {
	ContentID      uint           `json:"contentId"`
	Status         ProgressStatus `json:"status"`
	Progress       int            `json:"progress"`
	TimeSpent      int            `json:"timeSpent"` // minutes
	LastActivityAt *time.Time     `json:"lastActivityAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

type ModuleProgress struct {
	ModuleID    uint              `json:"moduleId"`
	Status      ProgressStatus    `json:"status"`
	Progress    int               `json:"progress"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Contents    []ContentProgress `json:"contents"`
}

// LearningProgress is the per student, per course progress document. Modules
// is stored as one JSON column and guarded by Version.
type LearningProgress struct {
	ID              uint                                 `json:"id" gorm:"primarykey"`
	StudentID       uint                                 `json:"student_id" gorm:"uniqueIndex:ux_learning_progress_pair;not null"`
	CourseID        uint                                 `json:"course_id" gorm:"uniqueIndex:ux_learning_progress_pair;not null"`
	OverallProgress int                                  `json:"overall_progress" gorm:"not null"`
	Status          ProgressStatus                       `json:"status" gorm:"type:varchar(20);not null"`
	TotalTimeSpent  int                                  `json:"total_time_spent" gorm:"not null"`
	LastActivityAt  *time.Time                           `json:"last_activity_at"`
	CompletedAt     *time.Time                           `json:"completed_at"`
	Modules         datatypes.JSONType[[]ModuleProgress] `json:"modules"`
	Version         int64                                `json:"version" gorm:"not null"`
	CreatedAt       time.Time                            `json:"created_at"`
	UpdatedAt       time.Time                            `json:"updated_at"`
}

func (LearningProgress) TableName() string { return "learning_progress" }
