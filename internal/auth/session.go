package auth

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// SessionData represents the authenticated session context for a request
type SessionData struct {
	UserID string `json:"_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the session may use the admin routes
func (s *SessionData) IsAdmin() bool {
	return s.Role == RoleAdmin || s.Role == RoleSuperAdmin
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
