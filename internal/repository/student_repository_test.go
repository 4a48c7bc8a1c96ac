package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-management-api/internal/models"
)

var studentColumns = []string{"id", "name", "kana_name", "nickname", "email", "area", "age", "sex", "remark", "deleted"}

var courseRowColumns = []string{"id", "student_id", "course_name", "course_start_at", "course_end_at", "enrollment_status"}

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

type observerStub struct {
	labels []string
}

func (o *observerStub) ObserveDBQuery(label string, duration time.Duration) {
	o.labels = append(o.labels, label)
}

func TestStudentRepositoryGetActiveStudents(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	observer := &observerStub{}
	repo := NewStudentRepository(db, observer)

	rows := sqlmock.NewRows(studentColumns).
		AddRow(1, "Taro", "タロウ", "taro", "taro@example.com", "Tokyo", 30, "M", nil, nil).
		AddRow(2, "Hanako", "ハナコ", nil, "hanako@example.com", "Osaka", 25, "F", "note", false)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE deleted IS NULL OR deleted = false")).
		WillReturnRows(rows)

	students, err := repo.GetActiveStudents(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, int64(1), students[0].ID)
	assert.Nil(t, students[0].Deleted)
	require.NotNil(t, students[0].Nickname)
	assert.Equal(t, "taro", *students[0].Nickname)
	assert.Nil(t, students[1].Nickname)
	assert.True(t, students[1].IsActive())
	assert.Equal(t, []string{"get_active_students"}, observer.labels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetStudentByIDNotFound(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(studentColumns))

	_, err := repo.GetStudentByID(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetAllCoursesJoinsStatus(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(courseRowColumns).
		AddRow(10, 1, "Java", start, start.AddDate(0, 3, 0), "CONFIRMED").
		AddRow(11, 1, "Spring", start, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN course_enrollment_statuses st ON st.course_id = c.id ORDER BY c.student_id, c.id")).
		WillReturnRows(rows)

	courses, err := repo.GetAllCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.NotNil(t, courses[0].Status)
	assert.Equal(t, models.EnrollmentStatusConfirmed, *courses[0].Status)
	assert.Nil(t, courses[1].Status)
	assert.Nil(t, courses[1].CourseEndAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryGetCoursesByStudentID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.student_id = $1 ORDER BY c.id")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(courseRowColumns).AddRow(10, 1, "Java", time.Now(), nil, nil))

	courses, err := repo.GetCoursesByStudentID(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveStudentSetsGeneratedID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students (name, kana_name")).
		WithArgs("Taro", "タロウ", nil, "taro@example.com", "Tokyo", 30, "M", nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	student := &models.Student{Name: "Taro", KanaName: "タロウ", Email: "taro@example.com", Area: "Tokyo", Age: 30, Sex: "M"}
	affected, err := repo.SaveStudent(context.Background(), student)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, int64(42), student.ID)
	require.NotNil(t, student.Deleted)
	assert.False(t, *student.Deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveCourseWithoutReturnedRow(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students_courses")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	affected, err := repo.SaveCourse(context.Background(), &models.StudentCourse{StudentID: 1, CourseName: "Java", CourseStartAt: time.Now()})
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdatesReportAffectedRows(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET name = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students_courses SET course_name = $1, course_start_at = $2, course_end_at = $3 WHERE id = $4 AND student_id = $5")).
		WithArgs("Spring", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(10), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_enrollment_statuses SET status = $1 WHERE course_id = $2")).
		WithArgs("COMPLETED", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.UpdateStudent(context.Background(), &models.Student{ID: 1, Name: "Taro"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.UpdateCourse(context.Background(), &models.StudentCourse{ID: 10, StudentID: 1, CourseName: "Spring"})
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.UpdateEnrollmentStatus(context.Background(), models.CourseEnrollmentStatus{CourseID: 10, Status: models.EnrollmentStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateStudentSkipsDeletedRows(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $9 AND (deleted IS NULL OR deleted = false)")).
		WithArgs("Taro", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.UpdateStudent(context.Background(), &models.Student{ID: 4, Name: "Taro"})
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET deleted = true WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET deleted = true WHERE id = $1")).
		WithArgs(int64(6)).
		WillReturnError(sql.ErrConnDone)

	affected, err := repo.SoftDeleteStudent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = repo.SoftDeleteStudent(context.Background(), 6)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryWithinTxCommits(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students_courses")).
		WithArgs(int64(3), "Java", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), nil, func(store StudentStore) error {
		student := &models.Student{Name: "Taro"}
		if _, err := store.SaveStudent(context.Background(), student); err != nil {
			return err
		}
		course := &models.StudentCourse{StudentID: student.ID, CourseName: "Java", CourseStartAt: time.Now()}
		_, err := store.SaveCourse(context.Background(), course)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryWithinTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students (")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectRollback()

	sentinel := errors.New("course insert affected no rows")
	err := repo.WithinTx(context.Background(), nil, func(store StudentStore) error {
		if _, err := store.SaveStudent(context.Background(), &models.Student{Name: "Taro"}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryWithinTxBeginFailure(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	called := false
	err := repo.WithinTx(context.Background(), &sql.TxOptions{ReadOnly: true}, func(store StudentStore) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
