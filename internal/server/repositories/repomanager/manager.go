package repomanager

import (
	"context"
	"database/sql"

	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/server/repositories/data"
	"github.com/dsemenov/datavault/internal/server/repositories/tokens"
	"github.com/dsemenov/datavault/internal/server/repositories/usage"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can run
// several repositories inside one transaction by handing them the same *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Data(db dbx.DBTX) data.Repository
	Usage(db dbx.DBTX) usage.Repository
	Tokens(db dbx.DBTX) tokens.Repository
}
