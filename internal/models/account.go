package models

// Account roles. New accounts default to RoleUser unless a role is supplied
// at registration time.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account is an identity record owned by a unique email address. Accounts are
// never deleted by this core; after creation the only mutations are flipping
// Verified to true and replacing the password hash during a reset.
type Account struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Role         string `gorm:"not null;default:USER" json:"role"`
	Verified     bool   `gorm:"not null;default:false" json:"verified"`
}
