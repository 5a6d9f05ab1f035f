package course

import "gorm.io/gorm"

// CourseContent represents content within a module, organized by day
type CourseContent struct {
	gorm.Model
	CourseID    uint   `json:"course_id" gorm:"index;not null"`
	ModuleID    uint   `json:"module_id" gorm:"index;not null"`
	Day         int    `json:"day" gorm:"default:1"` // Day number within module
	Title       string `json:"title"`
	ContentType string `json:"content_type" gorm:"default:'TEXT'"` // TEXT, VIDEO, IMAGE
	OrderIndex  int    `json:"order_index" gorm:"default:0"`       // Order within day
	IsPublished bool   `json:"is_published" gorm:"default:false"`
	IsDeleted   bool   `gorm:"default:false"`
}
