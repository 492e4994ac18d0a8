package service

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolku_backend/internals/features/school/enrollments/model"
	"schoolku_backend/internals/helpers/apperr"
)

// PageSize is how many enrollments batch generation reads per page.
const PageSize = 100

// CurrentEnrollment returns the student's current enrollment for the term.
func CurrentEnrollment(db *gorm.DB, schoolID, studentID, termID uuid.UUID) (*model.Enrollment, error) {
	var e model.Enrollment
	err := db.
		Where("enrollment_school_id = ? AND enrollment_student_id = ? AND enrollment_term_id = ? AND enrollment_is_current = ?",
			schoolID, studentID, termID, true).
		Order("enrollment_created_at DESC").
		First(&e).Error
	if err != nil {
		return nil, apperr.FromDB(err, "current enrollment")
	}
	return &e, nil
}

// Page reads one keyset page of enrollments for (term, classGroup), ordered
// by id and starting after `after` (uuid.Nil for the first page).
func Page(db *gorm.DB, schoolID, termID, classGroupID, after uuid.UUID, limit int) ([]model.Enrollment, error) {
	if limit <= 0 {
		limit = PageSize
	}
	q := db.Where("enrollment_school_id = ? AND enrollment_term_id = ? AND enrollment_class_group_id = ?",
		schoolID, termID, classGroupID)
	if after != uuid.Nil {
		q = q.Where("enrollment_id > ?", after)
	}
	rows := make([]model.Enrollment, 0, limit)
	if err := q.Order("enrollment_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.FromDB(err, "enrollment")
	}
	return rows, nil
}
