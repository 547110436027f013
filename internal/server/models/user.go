// Package models holds the row types shared by repositories and services.
package models

import "time"

// User roles. New accounts default to RoleUser; RoleAdmin unlocks the back office.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity row joined with its email record (users ⋈ emails is 1-1).
//
// HashedPassword is only populated on the lookup paths that verify credentials
// and must be stripped before the value leaves the service boundary.
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	HashedPassword string    `json:"-"`
	Role           string    `json:"role"`
	Email          string    `json:"email"`
	EmailVerified  bool      `json:"emailVerified"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
