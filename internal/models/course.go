package models

import "time"

// EnrollmentStatus tracks where a student stands within a course.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusTentative  EnrollmentStatus = "TENTATIVE"
	EnrollmentStatusConfirmed  EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusInProgress EnrollmentStatus = "IN_PROGRESS"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// StudentCourse is a single course enrollment owned by a student.
type StudentCourse struct {
	ID            int64             `db:"id" json:"id"`
	StudentID     int64             `db:"student_id" json:"student_id"`
	CourseName    string            `db:"course_name" json:"course_name"`
	CourseStartAt time.Time         `db:"course_start_at" json:"course_start_at"`
	CourseEndAt   *time.Time        `db:"course_end_at" json:"course_end_at,omitempty"`
	Status        *EnrollmentStatus `db:"enrollment_status" json:"enrollment_status,omitempty"`
}

// CourseEnrollmentStatus is the status row attached to a course enrollment.
type CourseEnrollmentStatus struct {
	CourseID int64            `db:"course_id" json:"course_id"`
	Status   EnrollmentStatus `db:"status" json:"status"`
}
