package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-management-api/internal/converter"
	"github.com/noah-isme/student-management-api/internal/dto"
	"github.com/noah-isme/student-management-api/internal/models"
	"github.com/noah-isme/student-management-api/internal/repository"
	appErrors "github.com/noah-isme/student-management-api/pkg/errors"
)

const (
	outcomeSuccess            = "success"
	outcomeInvalidInput       = "invalid_input"
	outcomeNotFound           = "not_found"
	outcomePersistenceFailure = "persistence_failure"
	outcomeCourseWarning      = "course_warning"
)

var readOnlyTx = &sql.TxOptions{ReadOnly: true}

type studentRepository interface {
	repository.StudentStore
	WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(store repository.StudentStore) error) error
}

type mutationRecorder interface {
	RecordStudentMutation(operation, outcome string)
}

// StudentService reads aggregated student records and applies multi-row mutations.
// It is the only place where affected-row counts and driver errors become typed errors.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   mutationRecorder
}

// NewStudentService constructs the student service. metrics may be nil.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger, metrics mutationRecorder) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger, metrics: metrics}
}

// List returns active students with their courses, filtered and paginated.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	details, err := s.Search(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	page, pagination := paginateDetails(details, filter.Page, filter.PageSize)
	return page, pagination, nil
}

// Search returns every active student matching filter, ignoring pagination.
func (s *StudentService) Search(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, error) {
	var details []models.StudentDetail
	err := s.repo.WithinTx(ctx, readOnlyTx, func(store repository.StudentStore) error {
		students, err := store.GetActiveStudents(ctx)
		if err != nil {
			return err
		}
		courses, err := store.GetAllCourses(ctx)
		if err != nil {
			return err
		}
		details = AggregateStudentDetails(students, courses)
		return nil
	})
	if err != nil {
		return nil, asPersistenceFailure(err, "failed to list students")
	}
	return FilterStudentDetails(details, filter), nil
}

// ListCourses returns every course enrollment.
func (s *StudentService) ListCourses(ctx context.Context) ([]models.StudentCourse, error) {
	courses, err := s.repo.GetAllCourses(ctx)
	if err != nil {
		return nil, asPersistenceFailure(err, "failed to list courses")
	}
	if courses == nil {
		courses = []models.StudentCourse{}
	}
	return courses, nil
}

// GetDetail returns a student, deleted or not, with its courses.
func (s *StudentService) GetDetail(ctx context.Context, id int64) (*models.StudentDetail, error) {
	if id <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "student id must be positive")
	}
	var detail models.StudentDetail
	err := s.repo.WithinTx(ctx, readOnlyTx, func(store repository.StudentStore) error {
		student, err := store.GetStudentByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %d not found", id))
			}
			return err
		}
		courses, err := store.GetCoursesByStudentID(ctx, id)
		if err != nil {
			return err
		}
		detail = AggregateStudentDetails([]models.Student{*student}, courses)[0]
		return nil
	})
	if err != nil {
		return nil, asPersistenceFailure(err, "failed to load student")
	}
	return &detail, nil
}

// GetForm returns the edit form of an active student with its first course.
func (s *StudentService) GetForm(ctx context.Context, id int64) (*dto.StudentForm, error) {
	detail, err := s.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !detail.Student.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %d not found", id))
	}
	var course *models.StudentCourse
	if len(detail.Courses) > 0 {
		course = &detail.Courses[0]
	}
	form := converter.ToForm(detail.Student, course)
	return &form, nil
}

// Register persists a new student together with its first course, and the course's
// enrollment status when one is given, in a single transaction.
func (s *StudentService) Register(ctx context.Context, form *dto.StudentForm) (*models.StudentDetail, error) {
	const op = "register"
	if form == nil {
		return nil, s.fail(op, appErrors.Clone(appErrors.ErrInvalidInput, "student form is required"))
	}
	if err := s.validateForm(form); err != nil {
		return nil, s.fail(op, err)
	}

	registration := *form
	registration.ID = nil
	registration.CourseID = nil
	student := converter.ToStudent(registration)
	course := converter.ToCourse(registration)
	course.CourseEndAt = converter.DeriveEndDate(course.CourseName, course.CourseStartAt, course.CourseEndAt)

	err := s.repo.WithinTx(ctx, nil, func(store repository.StudentStore) error {
		affected, err := store.SaveStudent(ctx, &student)
		if err := expectOneRow(affected, err, appErrors.ErrPersistence, "failed to save student"); err != nil {
			return err
		}
		course.StudentID = student.ID
		affected, err = store.SaveCourse(ctx, &course)
		if err := expectOneRow(affected, err, appErrors.ErrPersistence, "failed to save course"); err != nil {
			return err
		}
		if course.Status == nil {
			return nil
		}
		affected, err = store.SaveEnrollmentStatus(ctx, models.CourseEnrollmentStatus{CourseID: course.ID, Status: *course.Status})
		return expectOneRow(affected, err, appErrors.ErrPersistence, "failed to save enrollment status")
	})
	if err != nil {
		return nil, s.fail(op, asPersistenceFailure(err, "failed to register student"))
	}

	s.succeed(op)
	s.logger.Info("student registered", zap.Int64("student_id", student.ID), zap.Int64("course_id", course.ID))
	return &models.StudentDetail{Student: student, Courses: []models.StudentCourse{course}}, nil
}

// Update rewrites a student and, when the form names a course, that course by its own id.
// A course or status update matching no row is reported as a warning.
func (s *StudentService) Update(ctx context.Context, form *dto.StudentForm) (*dto.StudentUpdateResult, error) {
	const op = "update"
	if form == nil {
		return nil, s.fail(op, appErrors.Clone(appErrors.ErrInvalidInput, "student form is required"))
	}
	if form.ID == nil {
		return nil, s.fail(op, appErrors.Clone(appErrors.ErrInvalidInput, "student id is required for update"))
	}
	if err := s.validateForm(form); err != nil {
		return nil, s.fail(op, err)
	}

	student := converter.ToStudent(*form)
	result := &dto.StudentUpdateResult{ID: student.ID}

	err := s.repo.WithinTx(ctx, nil, func(store repository.StudentStore) error {
		affected, err := store.UpdateStudent(ctx, &student)
		notFound := appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %d not found", student.ID))
		if err := expectOneRow(affected, err, notFound, "failed to update student"); err != nil {
			return err
		}
		if form.CourseID == nil {
			return nil
		}

		course := converter.ToCourse(*form)
		course.CourseEndAt = converter.DeriveEndDate(course.CourseName, course.CourseStartAt, course.CourseEndAt)
		affected, err = store.UpdateCourse(ctx, &course)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update course")
		}
		if affected != 1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("course %d was not updated (%d rows matched)", course.ID, affected))
			s.warnCourse(op, student.ID, course.ID, affected)
			return nil
		}
		result.CourseUpdated = true

		if course.Status == nil {
			return nil
		}
		affected, err = store.UpdateEnrollmentStatus(ctx, models.CourseEnrollmentStatus{CourseID: course.ID, Status: *course.Status})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update enrollment status")
		}
		if affected != 1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("enrollment status of course %d was not updated (%d rows matched)", course.ID, affected))
			s.warnCourse(op, student.ID, course.ID, affected)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, asPersistenceFailure(err, "failed to update student"))
	}

	s.succeed(op)
	s.logger.Info("student updated", zap.Int64("student_id", student.ID), zap.Bool("course_updated", result.CourseUpdated))
	return result, nil
}

// Delete soft-deletes a student. Deleting an already deleted student succeeds.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	const op = "delete"
	if id <= 0 {
		return s.fail(op, appErrors.Clone(appErrors.ErrInvalidInput, "student id must be positive"))
	}
	affected, err := s.repo.SoftDeleteStudent(ctx, id)
	notFound := appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %d not found", id))
	if err := expectOneRow(affected, err, notFound, "failed to delete student"); err != nil {
		return s.fail(op, err)
	}
	s.succeed(op)
	s.logger.Info("student deleted", zap.Int64("student_id", id))
	return nil
}

func (s *StudentService) validateForm(form *dto.StudentForm) error {
	if err := s.validator.Struct(form); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid student payload")
	}
	if form.CourseEndAt != nil && form.CourseEndAt.Before(form.CourseStartAt.Time) {
		return appErrors.Clone(appErrors.ErrInvalidInput, "course end date must not be before its start date")
	}
	return nil
}

func (s *StudentService) succeed(op string) {
	if s.metrics != nil {
		s.metrics.RecordStudentMutation(op, outcomeSuccess)
	}
}

func (s *StudentService) warnCourse(op string, studentID, courseID, affected int64) {
	s.logger.Warn("course update matched no row",
		zap.String("operation", op),
		zap.Int64("student_id", studentID),
		zap.Int64("course_id", courseID),
		zap.Int64("affected", affected),
	)
	if s.metrics != nil {
		s.metrics.RecordStudentMutation(op, outcomeCourseWarning)
	}
}

func (s *StudentService) fail(op string, err error) error {
	appErr := appErrors.FromError(err)
	outcome := outcomePersistenceFailure
	switch appErr.Code {
	case appErrors.ErrInvalidInput.Code:
		outcome = outcomeInvalidInput
	case appErrors.ErrNotFound.Code:
		outcome = outcomeNotFound
	}
	if outcome == outcomePersistenceFailure {
		s.logger.Error("student mutation failed", zap.String("operation", op), zap.Error(err))
	} else {
		s.logger.Debug("student mutation rejected", zap.String("operation", op), zap.String("code", appErr.Code), zap.String("reason", appErr.Message))
	}
	if s.metrics != nil {
		s.metrics.RecordStudentMutation(op, outcome)
	}
	return err
}

// expectOneRow turns a write outcome into a typed error: a driver error or an unexpected
// count becomes a persistence failure, and zero rows becomes the zero error passed in.
func expectOneRow(affected int64, err error, zero *appErrors.Error, message string) error {
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
	}
	switch affected {
	case 1:
		return nil
	case 0:
		if zero.Code == appErrors.ErrPersistence.Code {
			return appErrors.Clone(appErrors.ErrPersistence, message+": no rows affected")
		}
		return appErrors.Clone(zero, "")
	default:
		return appErrors.Clone(appErrors.ErrPersistence, fmt.Sprintf("%s: expected 1 affected row, got %d", message, affected))
	}
}

// asPersistenceFailure keeps typed errors as they are and wraps anything else.
func asPersistenceFailure(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
}
