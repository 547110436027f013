package repomanager

import (
	"context"
	"database/sql"

	"github.com/dgavrilenko/shopkeeper/internal/dbx"
	"github.com/dgavrilenko/shopkeeper/internal/server/repositories/sessions"
	"github.com/dgavrilenko/shopkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
