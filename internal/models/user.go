package models

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User holds the identity fields the security core needs. Accounts are
// created disabled and enabled by email verification.
type User struct {
	BaseModel
	Username     string   `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Email        *string  `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Enabled      bool     `json:"enabled" gorm:"not null;default:false"`
	Roles        []string `json:"roles" gorm:"type:text;serializer:json"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}
