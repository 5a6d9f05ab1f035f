// Package catalog reads course structure authored elsewhere.
package catalog

import (
	"context"
	"sort"

	"lms/apperror"
	"lms/models/course"
	"lms/services/access"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type CourseInfo struct {
	ID               uint   `json:"id"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	BranchID         *uint  `json:"branch_id,omitempty"`
	Price            int64  `json:"price"`
	RequiresApproval bool   `json:"requires_approval"`
}

// IsFree reports whether enrollment needs no payment.
func (c CourseInfo) IsFree() bool { return c.Price <= 0 }

// ModuleOutline is a module with its published content ids. Order is the
// 1-based position of the module within the course.
type ModuleOutline struct {
	access.Module
	Title      string `json:"title"`
	ContentIDs []uint `json:"content_ids"`
}

type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Course(ctx context.Context, courseID uint) (*CourseInfo, error) {
	var m course.Course
	err := c.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", courseID, false).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Course not found!")
		}
		return nil, apperror.Storage(err, "load course")
	}
	return &CourseInfo{
		ID:               m.ID,
		Title:            m.Title,
		Status:           m.Status,
		BranchID:         m.BranchID,
		Price:            m.Price,
		RequiresApproval: m.RequiresApproval,
	}, nil
}

// Outline returns the modules of a course in order. A course unknown to the
// catalog yields an empty outline.
func (c *Catalog) Outline(ctx context.Context, courseID uint) ([]ModuleOutline, error) {
	db := c.db.WithContext(ctx)

	var modules []course.Module
	if err := db.Where("course_id = ? AND is_deleted = ?", courseID, false).
		Order("order_index asc, id asc").
		Find(&modules).Error; err != nil {
		return nil, apperror.Storage(err, "load modules")
	}
	if len(modules) == 0 {
		return nil, nil
	}

	var contents []course.CourseContent
	if err := db.Where("course_id = ? AND is_deleted = ? AND is_published = ?", courseID, false, true).
		Order("day asc, order_index asc, id asc").
		Find(&contents).Error; err != nil {
		return nil, apperror.Storage(err, "load contents")
	}

	byModule := make(map[uint][]uint, len(modules))
	for _, ct := range contents {
		byModule[ct.ModuleID] = append(byModule[ct.ModuleID], ct.ID)
	}

	out := make([]ModuleOutline, len(modules))
	for i, m := range modules {
		out[i] = ModuleOutline{
			Module:     access.Module{ID: m.ID, Order: i + 1, QuizID: m.QuizID, Empty: len(byModule[m.ID]) == 0},
			Title:      m.Title,
			ContentIDs: byModule[m.ID],
		}
	}
	return out, nil
}

// Modules strips an outline down to what the access gate needs.
func Modules(outline []ModuleOutline) []access.Module {
	out := make([]access.Module, len(outline))
	for i, m := range outline {
		out[i] = m.Module
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Find returns the outline entry of moduleID.
func Find(outline []ModuleOutline, moduleID uint) (ModuleOutline, bool) {
	for _, m := range outline {
		if m.ID == moduleID {
			return m, true
		}
	}
	return ModuleOutline{}, false
}
