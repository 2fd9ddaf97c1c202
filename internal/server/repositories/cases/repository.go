package cases

import (
	"context"

	"github.com/avaluotech/fieldsync/internal/server/models"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*models.Case, error)
	Create(ctx context.Context, c *models.Case) (*models.Case, error)
}
