// Package sessions declares the session store contract: one row per login
// event, revocable independently of the credential itself.
package sessions

import (
	"context"

	"github.com/dgavrilenko/shopkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts a session row for userID with a server-generated opaque
	// token and a snapshot of the client's IP and user agent.
	Create(ctx context.Context, userID int64, ip, userAgent string) (*models.Session, error)

	// GetByToken returns the session joined with its owner's name, email and
	// role. Returns common.ErrNotFound when the token is unknown.
	GetByToken(ctx context.Context, token string) (*models.SessionWithUser, error)

	// Invalidate flips the session's valid flag to false. It is idempotent:
	// invalidating an already-invalid or nonexistent session is not an error.
	Invalidate(ctx context.Context, token string) error
}
