package services

import (
	"fmt"

	"campus-eats-api/models"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	UserID   uint
	Username string
	Role     models.UserRole
}

func (a Actor) IsStaff() bool { return a.Role.IsStaff() }

// label is what history rows and verifier fields record.
func (a Actor) label() string {
	if a.Username != "" {
		return a.Username
	}
	return fmt.Sprintf("%s:%d", a.Role, a.UserID)
}

// canView reports whether a may read the order.
func (a Actor) canView(o *models.Order) bool {
	return a.IsStaff() || o.OwnedBy(a.UserID)
}
