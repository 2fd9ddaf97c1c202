package cases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/avaluotech/fieldsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*models.Case, error) {
	query :=
		`SELECT id, codigo, perito_id, created_at FROM expedientes
		 WHERE codigo = $1
		 `

	c := &models.Case{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(&c.ID, &c.Code, &c.PeritoID, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Case) (*models.Case, error) {

	query :=
		`INSERT INTO expedientes (codigo, perito_id)
         VALUES ($1, $2)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, c.Code, c.PeritoID).Scan(&c.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}
