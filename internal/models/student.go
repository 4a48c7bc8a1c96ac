package models

// Student represents a learner registered with the institute.
type Student struct {
	ID       int64   `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	KanaName string  `db:"kana_name" json:"kana_name"`
	Nickname *string `db:"nickname" json:"nickname,omitempty"`
	Email    string  `db:"email" json:"email"`
	Area     string  `db:"area" json:"area"`
	Age      int     `db:"age" json:"age"`
	Sex      string  `db:"sex" json:"sex"`
	Remark   *string `db:"remark" json:"remark,omitempty"`
	Deleted  *bool   `db:"deleted" json:"deleted"`
}

// IsActive reports whether the student has not been soft-deleted. A NULL flag counts as active.
func (s Student) IsActive() bool {
	return s.Deleted == nil || !*s.Deleted
}

// StudentDetail joins one student with its ordered course enrollments.
// Courses is never nil.
type StudentDetail struct {
	Student Student         `json:"student"`
	Courses []StudentCourse `json:"courses"`
}

// StudentFilter narrows an aggregated student listing.
type StudentFilter struct {
	Search     string
	Area       string
	AgeBand    *int
	CourseName string
	Page       int
	PageSize   int
}
