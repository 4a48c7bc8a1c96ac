// Package converter maps the flat StudentForm payload to and from the student
// and course entities. All functions are pure.
package converter

import (
	"strings"
	"time"

	"github.com/noah-isme/student-management-api/internal/dto"
	"github.com/noah-isme/student-management-api/internal/models"
)

const defaultCourseMonths = 6

// ToStudent copies the student scalars from the form. A form without an id is a
// registration, so the entity starts out active; an id is carried through as is.
func ToStudent(form dto.StudentForm) models.Student {
	student := models.Student{
		Name:     form.Name,
		KanaName: form.KanaName,
		Nickname: optionalString(form.Nickname),
		Email:    form.Email,
		Area:     form.Area,
		Age:      form.Age,
		Sex:      form.Sex,
		Remark:   optionalString(form.Remark),
	}
	if form.ID != nil {
		student.ID = *form.ID
	} else {
		active := false
		student.Deleted = &active
	}
	return student
}

// ToCourse copies the course scalars from the form. The student foreign key is
// only set when the form already identifies its student.
func ToCourse(form dto.StudentForm) models.StudentCourse {
	course := models.StudentCourse{CourseName: form.CourseName}
	if form.CourseID != nil {
		course.ID = *form.CourseID
	}
	if form.ID != nil {
		course.StudentID = *form.ID
	}
	if form.CourseStartAt != nil {
		course.CourseStartAt = form.CourseStartAt.Time
	}
	if form.CourseEndAt != nil {
		end := form.CourseEndAt.Time
		course.CourseEndAt = &end
	}
	if form.EnrollmentStatus != nil {
		status := *form.EnrollmentStatus
		course.Status = &status
	}
	return course
}

// ToForm flattens a student and an optional course. Course fields stay unset when course is nil.
// Unsaved entities (id 0) leave the matching form id nil; generated keys are never 0.
func ToForm(student models.Student, course *models.StudentCourse) dto.StudentForm {
	form := dto.StudentForm{
		ID:       optionalID(student.ID),
		Name:     student.Name,
		KanaName: student.KanaName,
		Nickname: derefString(student.Nickname),
		Email:    student.Email,
		Area:     student.Area,
		Age:      student.Age,
		Sex:      student.Sex,
		Remark:   derefString(student.Remark),
	}
	if course == nil {
		return form
	}
	form.CourseID = optionalID(course.ID)
	form.CourseName = course.CourseName
	start := dto.DateOf(course.CourseStartAt)
	form.CourseStartAt = &start
	if course.CourseEndAt != nil {
		end := dto.DateOf(*course.CourseEndAt)
		form.CourseEndAt = &end
	}
	if course.Status != nil {
		status := *course.Status
		form.EnrollmentStatus = &status
	}
	return form
}

// CourseDurationMonths returns the nominal length of a course track in months.
func CourseDurationMonths(courseName string) int {
	switch strings.TrimSpace(courseName) {
	case "Java", "Java入門":
		return 3
	case "Spring", "Spring実践":
		return 6
	case "Web App", "Webアプリ開発":
		return 8
	default:
		return defaultCourseMonths
	}
}

// DeriveEndDate fills in a missing course end date from the course track length.
// An explicit end date always wins; nil is returned when nothing can be derived.
func DeriveEndDate(courseName string, start time.Time, end *time.Time) *time.Time {
	if end != nil {
		return end
	}
	if strings.TrimSpace(courseName) == "" || start.IsZero() {
		return nil
	}
	derived := start.AddDate(0, CourseDurationMonths(courseName), 0)
	return &derived
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
