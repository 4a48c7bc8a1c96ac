package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-management-api/internal/dto"
	"github.com/noah-isme/student-management-api/internal/models"
	appErrors "github.com/noah-isme/student-management-api/pkg/errors"
	"github.com/noah-isme/student-management-api/pkg/export"
)

var rosterHeaders = []string{
	"student_id", "name", "kana_name", "nickname", "email", "area", "age", "sex",
	"course_id", "course_name", "course_start_at", "course_end_at", "enrollment_status",
}

type studentSearcher interface {
	Search(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders the student roster into downloadable files.
type ExportService struct {
	students studentSearcher
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(students studentSearcher, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{students: students, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// ExportRoster renders every active student matching filter, one row per enrollment.
func (s *ExportService) ExportRoster(ctx context.Context, filter models.StudentFilter, format dto.ExportFormat) (*dto.RosterFile, error) {
	if format == "" {
		format = dto.ExportFormatCSV
	}
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unsupported export format %q", format))
	}

	details, err := s.students.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	dataset := buildRosterDataset(details)

	var (
		content     []byte
		contentType string
	)
	switch format {
	case dto.ExportFormatPDF:
		content, err = s.pdf.Render(dataset, "Student roster")
		contentType = "application/pdf"
	default:
		content, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	filename := fmt.Sprintf("students_%s.%s", s.now().UTC().Format("20060102_150405"), format)
	s.logger.Info("roster exported",
		zap.String("format", string(format)),
		zap.Int("students", len(details)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &dto.RosterFile{Filename: filename, ContentType: contentType, Content: content}, nil
}

func buildRosterDataset(details []models.StudentDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(details))
	for _, detail := range details {
		if len(detail.Courses) == 0 {
			rows = append(rows, studentRow(detail.Student))
			continue
		}
		for _, course := range detail.Courses {
			row := studentRow(detail.Student)
			row["course_id"] = strconv.FormatInt(course.ID, 10)
			row["course_name"] = course.CourseName
			row["course_start_at"] = course.CourseStartAt.Format(dto.DateLayout)
			if course.CourseEndAt != nil {
				row["course_end_at"] = course.CourseEndAt.Format(dto.DateLayout)
			}
			if course.Status != nil {
				row["enrollment_status"] = string(*course.Status)
			}
			rows = append(rows, row)
		}
	}
	return export.Dataset{Headers: rosterHeaders, Rows: rows}
}

func studentRow(student models.Student) map[string]string {
	row := map[string]string{
		"student_id": strconv.FormatInt(student.ID, 10),
		"name":       student.Name,
		"kana_name":  student.KanaName,
		"email":      student.Email,
		"area":       student.Area,
		"age":        strconv.Itoa(student.Age),
		"sex":        student.Sex,
	}
	if student.Nickname != nil {
		row["nickname"] = *student.Nickname
	}
	return row
}
