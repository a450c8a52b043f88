package domain

// Role is the coarse-grained role a user holds inside their school.
// Roles never widen tenant access: an admin of one tenant is a stranger to every other.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleParent, RoleStudent:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
