package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/dbx"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newSessionToken is a seam for tests; uuid.NewString uses crypto/rand.
var newSessionToken = uuid.NewString

func (r *PostgresRepository) Create(ctx context.Context, userID int64, ip, userAgent string) (*models.Session, error) {
	query :=
		`INSERT INTO sessions (token, user_id, ip, user_agent)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, valid, created_at, updated_at
		 `

	session := &models.Session{
		Token:     newSessionToken(),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
	}
	err := r.db.QueryRowContext(ctx, query,
		session.Token, session.UserID, session.IP, session.UserAgent).
		Scan(&session.ID, &session.Valid, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.SessionWithUser, error) {
	query :=
		`SELECT s.id, s.token, s.user_id, s.valid, s.ip, s.user_agent, s.created_at, s.updated_at,
		        u.name, e.email, u.role
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 JOIN emails e ON e.user_id = u.id
		 WHERE s.token = $1
		 `

	session := &models.SessionWithUser{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.ID, &session.Token, &session.UserID, &session.Valid,
		&session.IP, &session.UserAgent, &session.CreatedAt, &session.UpdatedAt,
		&session.UserName, &session.UserEmail, &session.UserRole)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) Invalidate(ctx context.Context, token string) error {
	query :=
		`UPDATE sessions
		 SET valid = false, updated_at = now()
		 WHERE token = $1
		 `

	// Zero rows affected is fine: invalidation is idempotent.
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
