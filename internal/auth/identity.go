package auth

// Role is the authorization level attached to a session. It is
// resolved asynchronously after sign-in and never blocks a protection
// decision; an unknown or missing profile maps to RoleUser.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a stored role value, defaulting to RoleUser.
func ParseRole(v string) Role {
	if v == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}
