package course

import "gorm.io/gorm"

const (
	CourseStatusDraft    = "DRAFT"
	CourseStatusActive   = "ACTIVE"
	CourseStatusInactive = "INACTIVE"
)

// Course represents a learning course
type Course struct {
	gorm.Model
	Title            string `json:"title"`
	Description      string `json:"description"`
	Author           string `json:"author"`
	BranchID         *uint  `json:"branch_id" gorm:"index"`
	Duration         int64  `json:"duration" gorm:"default:0"`     // duration in hours
	Status           string `json:"status" gorm:"default:'DRAFT'"` // DRAFT, ACTIVE, INACTIVE
	Price            int64  `json:"price" gorm:"default:0"`        // 0 means free
	RequiresApproval bool   `json:"requires_approval" gorm:"default:false"`
	ThumbnailURL     string `json:"thumbnail_url"`
	IsPublished      bool   `json:"is_published" gorm:"default:false"`
	IsDeleted        bool   `gorm:"default:false"`
}
