package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	ProfileImage    string     `gorm:"default:''"`
	Name            string     `gorm:"default:''"`
	Email           string     `gorm:"unique;not null"`
	Mobile          string     `gorm:"default:''"`
	Role            string     `gorm:"default:'USER'"` // USER, INSTRUCTOR, ADMIN
	BranchID        *uint      `json:"branch_id"`
	IsEmailVerified bool       `gorm:"default:false"`
	LastLogin       *time.Time `json:"last_login"`
	IsBlocked       bool       `gorm:"default:false"`
	IsDeleted       bool       `gorm:"default:false"`
}
