package service

import (
	"strings"

	"github.com/noah-isme/student-management-api/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AggregateStudentDetails attaches each student's course enrollments in a single pass over
// courses, preserving the input student order. Courses owned by students outside the input
// are dropped, and students without courses get an empty, non-nil slice.
func AggregateStudentDetails(students []models.Student, courses []models.StudentCourse) []models.StudentDetail {
	byStudent := make(map[int64][]models.StudentCourse, len(students))
	for _, course := range courses {
		byStudent[course.StudentID] = append(byStudent[course.StudentID], course)
	}

	details := make([]models.StudentDetail, 0, len(students))
	for _, student := range students {
		owned := byStudent[student.ID]
		if owned == nil {
			owned = []models.StudentCourse{}
		}
		details = append(details, models.StudentDetail{Student: student, Courses: owned})
	}
	return details
}

// FilterStudentDetails keeps the details matching every populated filter field.
func FilterStudentDetails(details []models.StudentDetail, filter models.StudentFilter) []models.StudentDetail {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	area := strings.TrimSpace(filter.Area)
	courseName := strings.TrimSpace(filter.CourseName)

	result := make([]models.StudentDetail, 0, len(details))
	for _, detail := range details {
		if search != "" && !matchesSearch(detail.Student, search) {
			continue
		}
		if area != "" && !strings.EqualFold(detail.Student.Area, area) {
			continue
		}
		if filter.AgeBand != nil && detail.Student.Age/10*10 != *filter.AgeBand {
			continue
		}
		if courseName != "" && !hasCourse(detail.Courses, courseName) {
			continue
		}
		result = append(result, detail)
	}
	return result
}

func matchesSearch(student models.Student, search string) bool {
	if strings.Contains(strings.ToLower(student.Name), search) || strings.Contains(strings.ToLower(student.KanaName), search) {
		return true
	}
	return student.Nickname != nil && strings.Contains(strings.ToLower(*student.Nickname), search)
}

func hasCourse(courses []models.StudentCourse, name string) bool {
	for _, course := range courses {
		if strings.EqualFold(course.CourseName, name) {
			return true
		}
	}
	return false
}

func paginateDetails(details []models.StudentDetail, page, size int) ([]models.StudentDetail, *models.Pagination) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(details)}
	start := (page - 1) * size
	if start >= len(details) {
		return []models.StudentDetail{}, pagination
	}
	end := start + size
	if end > len(details) {
		end = len(details)
	}
	return details[start:end], pagination
}
