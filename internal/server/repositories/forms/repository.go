package forms

import (
	"context"

	"github.com/avaluotech/fieldsync/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, f *models.FormRecord) error
	ListByCase(ctx context.Context, caseID string) ([]*models.FormRecord, error)
}
