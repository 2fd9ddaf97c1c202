package repomanager

import (
	"context"
	"database/sql"

	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/avaluotech/fieldsync/internal/server/repositories/cases"
	"github.com/avaluotech/fieldsync/internal/server/repositories/evidences"
	"github.com/avaluotech/fieldsync/internal/server/repositories/forms"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Cases(db dbx.DBTX) cases.Repository
	Forms(db dbx.DBTX) forms.Repository
	Evidences(db dbx.DBTX) evidences.Repository
}
