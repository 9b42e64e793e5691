// Package auth signs operators in and resolves the acting user and warehouse
// for every request.
package auth

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// User represents an operator account bound to a home warehouse.
type User struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	WarehouseID   int64      `json:"warehouse_id"`
	WarehouseCode string     `json:"warehouse_code"`
	IsActive      bool       `json:"is_active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Actor converts the user into the caller identity used by business
// operations.
func (u User) Actor() shared.Actor {
	return shared.Actor{UserID: u.ID, WarehouseID: u.WarehouseID, Name: u.Name}
}
