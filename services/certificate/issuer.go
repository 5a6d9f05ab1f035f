// Package certificate issues course completion certificates.
package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lms/apperror"
	"lms/models/course"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Issuer struct {
	db      *gorm.DB
	baseURL string
	now     func() time.Time
}

func NewIssuer(db *gorm.DB, baseURL string) *Issuer {
	return &Issuer{db: db, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// Issue creates the certificate of a student for a course, or returns the
// existing one. The certificate number is stable across calls.
func (i *Issuer) Issue(ctx context.Context, studentID, courseID, enrollmentID uint) (string, error) {
	db := i.db.WithContext(ctx)

	number := "CERT-" + strings.ToUpper(uuid.NewString())
	cert := course.Certificate{
		UserID:            studentID,
		CourseID:          courseID,
		EnrollmentID:      enrollmentID,
		CertificateNumber: number,
		CertificateURL:    fmt.Sprintf("%s/certificates/%s", i.baseURL, number),
		IssuedAt:          i.now(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(&cert).Error
	if err != nil {
		return "", apperror.Storage(err, "insert certificate")
	}

	var stored course.Certificate
	if err := db.Where("user_id = ? AND course_id = ?", studentID, courseID).First(&stored).Error; err != nil {
		return "", apperror.Storage(err, "load certificate")
	}
	return stored.CertificateNumber, nil
}

// ListByUser returns a user's certificates, newest first.
func (i *Issuer) ListByUser(ctx context.Context, userID uint) ([]course.Certificate, error) {
	var certs []course.Certificate
	err := i.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issued_at desc").
		Find(&certs).Error
	if err != nil {
		return nil, apperror.Storage(err, "list certificates")
	}
	return certs, nil
}
