package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// Identity is the caller identity supplied by the external identity provider.
// The service trusts it and never re-authenticates.
type Identity struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

// CanGrade reports whether the caller may read other students' attempts and
// quiz-level analytics.
func (i Identity) CanGrade() bool {
	return i.Role == RoleTeacher || i.Role == RoleAdmin
}
