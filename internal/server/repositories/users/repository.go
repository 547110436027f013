// Package users declares the credential store contract: the users table and
// its 1-1 emails table behind one repository.
package users

import (
	"context"

	"github.com/dgavrilenko/shopkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts the user row and its email row. Both inserts go through
	// the repository's DBTX, so binding the repository to a transaction makes
	// the pair atomic. Returns common.ErrDuplicateEmail when the
	// case-insensitive unique index on email is violated.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail looks a user up by email, case-insensitively, including the
	// hashed password for credential verification. Returns common.ErrNotFound
	// when no account exists for the address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the user joined with its email record.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// Update rewrites the mutable user fields (name, role, hashed password)
	// and, when Email is set, the email row. Duplicate addresses surface as
	// common.ErrDuplicateEmail.
	Update(ctx context.Context, user *models.User) error

	// Delete removes the user; emails and sessions follow via FK cascade.
	Delete(ctx context.Context, id int64) error
}
