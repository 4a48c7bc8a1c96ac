package dto

import "github.com/noah-isme/student-management-api/internal/models"

// StudentForm is the flat payload used to register, edit and display a student with one course.
type StudentForm struct {
	ID       *int64 `json:"id,omitempty"`
	CourseID *int64 `json:"courseId,omitempty"`

	Name     string `json:"name" validate:"required"`
	KanaName string `json:"kanaName" validate:"required"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email" validate:"required,email"`
	Area     string `json:"area" validate:"required"`
	Age      int    `json:"age" validate:"required,min=16"`
	Sex      string `json:"sex" validate:"required"`
	Remark   string `json:"remark,omitempty"`

	CourseName       string                   `json:"courseName" validate:"required"`
	CourseStartAt    *Date                    `json:"courseStartAt" validate:"required"`
	CourseEndAt      *Date                    `json:"courseEndAt,omitempty"`
	EnrollmentStatus *models.EnrollmentStatus `json:"enrollmentStatus,omitempty" validate:"omitempty,oneof=TENTATIVE CONFIRMED IN_PROGRESS COMPLETED"`
}

// StudentAck acknowledges a completed mutation.
type StudentAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// ExportFormat selects the roster rendering.
type ExportFormat string

// Supported roster formats.
const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// RosterFile is a rendered roster ready to stream.
type RosterFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StudentUpdateResult reports an applied student update. Warnings list secondary
// course changes that matched no row; the student change is kept regardless.
type StudentUpdateResult struct {
	ID            int64    `json:"id"`
	CourseUpdated bool     `json:"courseUpdated"`
	Warnings      []string `json:"warnings,omitempty"`
}
