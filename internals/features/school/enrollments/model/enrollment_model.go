package model

import (
	"time"

	"github.com/google/uuid"
)

// enrollments = siswa × term × rombel (class group). Dikelola modul akademik;
// billing hanya membaca.
type Enrollment struct {
	EnrollmentID           uuid.UUID `json:"enrollment_id" gorm:"column:enrollment_id;type:uuid;primaryKey"`
	EnrollmentSchoolID     uuid.UUID `json:"enrollment_school_id" gorm:"column:enrollment_school_id;type:uuid;not null;index:idx_enrollments_term_group,priority:1;index:idx_enrollments_student_current,priority:1"`
	EnrollmentStudentID    uuid.UUID `json:"enrollment_student_id" gorm:"column:enrollment_student_id;type:uuid;not null;index:idx_enrollments_student_current,priority:2"`
	EnrollmentTermID       uuid.UUID `json:"enrollment_term_id" gorm:"column:enrollment_term_id;type:uuid;not null;index:idx_enrollments_term_group,priority:2"`
	EnrollmentClassGroupID uuid.UUID `json:"enrollment_class_group_id" gorm:"column:enrollment_class_group_id;type:uuid;not null;index:idx_enrollments_term_group,priority:3"`
	EnrollmentIsCurrent    bool      `json:"enrollment_is_current" gorm:"column:enrollment_is_current;not null;index:idx_enrollments_student_current,priority:3"`

	// kontak tagihan (wali); disalin ke invoice saat generate
	EnrollmentGuardianEmail *string `json:"enrollment_guardian_email,omitempty" gorm:"column:enrollment_guardian_email;type:varchar(160)"`
	EnrollmentStudentName   string  `json:"enrollment_student_name" gorm:"column:enrollment_student_name;type:varchar(160);not null;default:''"`

	EnrollmentCreatedAt time.Time `json:"enrollment_created_at" gorm:"column:enrollment_created_at;not null;autoCreateTime"`
}

func (Enrollment) TableName() string { return "enrollments" }
