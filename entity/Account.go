package entity

import "github.com/google/uuid"

// Account is a login. SubjectID points at the driver, vendor or chef the
// account acts for; customers and admins use their own account id.
type Account struct {
	Base
	Email     string    `gorm:"size:200;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Name      string    `gorm:"size:200" json:"name"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	SubjectID uuid.UUID `gorm:"type:uuid;index" json:"subject_id"`
}
