// Package notification delivers completion notices to students.
package notification

import (
	"context"

	"lms/apperror"
	"lms/models/course"

	"gorm.io/gorm"
)

// InApp stores notifications in the user's inbox.
type InApp struct {
	db *gorm.DB
}

func NewInApp(db *gorm.DB) *InApp {
	return &InApp{db: db}
}

func (n *InApp) Notify(ctx context.Context, userID uint, title, message, actionURL string) error {
	row := course.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		ActionURL: actionURL,
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperror.Storage(err, "insert notification")
	}
	return nil
}
