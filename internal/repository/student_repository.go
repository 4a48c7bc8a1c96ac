package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-management-api/internal/models"
)

// StudentStore is the row-level contract over students, their course enrollments and
// enrollment statuses. Writes report the number of rows they affected.
type StudentStore interface {
	GetActiveStudents(ctx context.Context) ([]models.Student, error)
	GetStudentByID(ctx context.Context, id int64) (*models.Student, error)
	GetAllCourses(ctx context.Context) ([]models.StudentCourse, error)
	GetCoursesByStudentID(ctx context.Context, studentID int64) ([]models.StudentCourse, error)
	SaveStudent(ctx context.Context, student *models.Student) (int64, error)
	SaveCourse(ctx context.Context, course *models.StudentCourse) (int64, error)
	SaveEnrollmentStatus(ctx context.Context, status models.CourseEnrollmentStatus) (int64, error)
	UpdateStudent(ctx context.Context, student *models.Student) (int64, error)
	UpdateCourse(ctx context.Context, course *models.StudentCourse) (int64, error)
	UpdateEnrollmentStatus(ctx context.Context, status models.CourseEnrollmentStatus) (int64, error)
	SoftDeleteStudent(ctx context.Context, id int64) (int64, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

type dbExecutor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// StudentRepository manages persistence for students and their course enrollments.
type StudentRepository struct {
	db      *sqlx.DB
	exec    dbExecutor
	metrics queryObserver
}

// NewStudentRepository constructs a StudentRepository. metrics may be nil.
func NewStudentRepository(db *sqlx.DB, metrics queryObserver) *StudentRepository {
	return &StudentRepository{db: db, exec: db, metrics: metrics}
}

const courseColumns = `c.id, c.student_id, c.course_name, c.course_start_at, c.course_end_at, st.status AS enrollment_status
        FROM students_courses c
        LEFT JOIN course_enrollment_statuses st ON st.course_id = c.id`

// WithinTx runs fn against a store bound to a single transaction. The transaction commits
// only when fn returns nil; any error rolls it back and is returned unchanged.
func (r *StudentRepository) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(store StudentStore) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin student transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&StudentRepository{db: r.db, exec: tx, metrics: r.metrics}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student transaction: %w", err)
	}
	return nil
}

// GetActiveStudents lists students that have not been soft-deleted.
func (r *StudentRepository) GetActiveStudents(ctx context.Context) ([]models.Student, error) {
	defer r.observe("get_active_students", time.Now())
	const query = `SELECT id, name, kana_name, nickname, email, area, age, sex, remark, deleted
        FROM students
        WHERE deleted IS NULL OR deleted = false
        ORDER BY id`
	var students []models.Student
	if err := r.exec.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// GetStudentByID fetches a student regardless of its deleted flag.
func (r *StudentRepository) GetStudentByID(ctx context.Context, id int64) (*models.Student, error) {
	defer r.observe("get_student_by_id", time.Now())
	const query = `SELECT id, name, kana_name, nickname, email, area, age, sex, remark, deleted FROM students WHERE id = $1`
	var student models.Student
	if err := r.exec.GetContext(ctx, &student, query, id); err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &student, nil
}

// GetAllCourses lists every course enrollment ordered by owner then id.
func (r *StudentRepository) GetAllCourses(ctx context.Context) ([]models.StudentCourse, error) {
	defer r.observe("get_all_courses", time.Now())
	query := "SELECT " + courseColumns + " ORDER BY c.student_id, c.id"
	var courses []models.StudentCourse
	if err := r.exec.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetCoursesByStudentID lists the course enrollments owned by one student.
func (r *StudentRepository) GetCoursesByStudentID(ctx context.Context, studentID int64) ([]models.StudentCourse, error) {
	defer r.observe("get_courses_by_student", time.Now())
	query := "SELECT " + courseColumns + " WHERE c.student_id = $1 ORDER BY c.id"
	var courses []models.StudentCourse
	if err := r.exec.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return courses, nil
}

// SaveStudent inserts a student and stores the generated id on it.
func (r *StudentRepository) SaveStudent(ctx context.Context, student *models.Student) (int64, error) {
	defer r.observe("save_student", time.Now())
	deleted := false
	if student.Deleted != nil {
		deleted = *student.Deleted
	}
	const query = `INSERT INTO students (name, kana_name, nickname, email, area, age, sex, remark, deleted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	var id int64
	err := r.exec.GetContext(ctx, &id, query,
		student.Name, student.KanaName, student.Nickname, student.Email, student.Area,
		student.Age, student.Sex, student.Remark, deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("save student: %w", err)
	}
	student.ID = id
	student.Deleted = &deleted
	return 1, nil
}

// SaveCourse inserts a course enrollment and stores the generated id on it.
func (r *StudentRepository) SaveCourse(ctx context.Context, course *models.StudentCourse) (int64, error) {
	defer r.observe("save_course", time.Now())
	const query = `INSERT INTO students_courses (student_id, course_name, course_start_at, course_end_at)
        VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	if err := r.exec.GetContext(ctx, &id, query, course.StudentID, course.CourseName, course.CourseStartAt, course.CourseEndAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("save course: %w", err)
	}
	course.ID = id
	return 1, nil
}

// SaveEnrollmentStatus inserts the status row for a course.
func (r *StudentRepository) SaveEnrollmentStatus(ctx context.Context, status models.CourseEnrollmentStatus) (int64, error) {
	defer r.observe("save_enrollment_status", time.Now())
	const query = `INSERT INTO course_enrollment_statuses (course_id, status) VALUES ($1, $2)`
	return r.execAffected(ctx, "save enrollment status", query, status.CourseID, status.Status)
}

// UpdateStudent rewrites the student scalars by primary key. Soft-deleted rows never match,
// so the deleted flag is untouched.
func (r *StudentRepository) UpdateStudent(ctx context.Context, student *models.Student) (int64, error) {
	defer r.observe("update_student", time.Now())
	const query = `UPDATE students SET name = $1, kana_name = $2, nickname = $3, email = $4, area = $5, age = $6, sex = $7, remark = $8 WHERE id = $9 AND (deleted IS NULL OR deleted = false)`
	return r.execAffected(ctx, "update student", query,
		student.Name, student.KanaName, student.Nickname, student.Email, student.Area,
		student.Age, student.Sex, student.Remark, student.ID)
}

// UpdateCourse rewrites a course enrollment keyed by its own id. The owning student must
// match too, so a course of another student is left alone and reports zero rows.
func (r *StudentRepository) UpdateCourse(ctx context.Context, course *models.StudentCourse) (int64, error) {
	defer r.observe("update_course", time.Now())
	const query = `UPDATE students_courses SET course_name = $1, course_start_at = $2, course_end_at = $3 WHERE id = $4 AND student_id = $5`
	return r.execAffected(ctx, "update course", query, course.CourseName, course.CourseStartAt, course.CourseEndAt, course.ID, course.StudentID)
}

// UpdateEnrollmentStatus rewrites the status row of a course.
func (r *StudentRepository) UpdateEnrollmentStatus(ctx context.Context, status models.CourseEnrollmentStatus) (int64, error) {
	defer r.observe("update_enrollment_status", time.Now())
	const query = `UPDATE course_enrollment_statuses SET status = $1 WHERE course_id = $2`
	return r.execAffected(ctx, "update enrollment status", query, status.Status, status.CourseID)
}

// SoftDeleteStudent flags a student as deleted. Re-deleting still matches the row.
func (r *StudentRepository) SoftDeleteStudent(ctx context.Context, id int64) (int64, error) {
	defer r.observe("soft_delete_student", time.Now())
	const query = `UPDATE students SET deleted = true WHERE id = $1`
	return r.execAffected(ctx, "soft delete student", query, id)
}

func (r *StudentRepository) execAffected(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected, nil
}

func (r *StudentRepository) observe(label string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveDBQuery(label, time.Since(start))
}
