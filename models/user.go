package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleAdmin        = "ADMIN"
	RoleReviewer     = "EVALUATEUR"
	RoleInvestigator = "INVESTIGATEUR"
)

// User is the read-only view of an account managed by the identity service.
type User struct {
	UserID    uint       `gorm:"primaryKey;column:user_id" json:"user_id"`
	FirstName string     `gorm:"column:first_name" json:"first_name"`
	LastName  string     `gorm:"column:last_name" json:"last_name"`
	Email     string     `gorm:"column:email;unique;size:191" json:"email"`
	Role      string     `gorm:"column:role;size:32;index" json:"role"`
	CreateAt  *time.Time `gorm:"column:create_at" json:"create_at"`
	DeleteAt  *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

// TableName overrides
func (User) TableName() string {
	return "users"
}

// DisplayName returns "First Last", falling back to a numbered placeholder.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return fmt.Sprintf("Utilisateur #%d", u.UserID)
	}
	return name
}
