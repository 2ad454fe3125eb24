package models

// User roles. Role is stored as an integer column.
const (
	RoleAdmin int64 = 1
	RoleUser  int64 = 2
)

// User is the full user row, including the password hash. It never leaves the
// backend; handlers return PublicUser instead.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
	Role     int64  `json:"role"`
	Password string `json:"password,omitempty"`
}

// PublicUser is the client-visible projection of a user.
type PublicUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
	Role     int64  `json:"role"`
}

// Public strips the credential fields from a user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Lastname: u.Lastname,
		Email:    u.Email,
		Role:     u.Role,
	}
}
