package course

import "gorm.io/gorm"

// Module is a gated unit of a course. Modules open in OrderIndex order; a
// module with a quiz opens the next one only after the quiz is passed.
type Module struct {
	gorm.Model
	CourseID    uint   `json:"course_id" gorm:"index:idx_modules_course_order;not null"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index" gorm:"index:idx_modules_course_order;default:0"` // 1-based
	QuizID      *uint  `json:"quiz_id"`
	IsDeleted   bool   `gorm:"default:false"`
}
