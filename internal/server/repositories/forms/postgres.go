package forms

import (
	"context"
	"fmt"

	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/avaluotech/fieldsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or replaces the form keyed by the client-generated id. A
// device re-sending after a lost acknowledgment lands on the same row.
func (r *PostgresRepository) Upsert(ctx context.Context, f *models.FormRecord) error {

	query :=
		`INSERT INTO formularios (id, expediente_id, perito_id, datos, fecha_captura, latitud, longitud)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET datos = EXCLUDED.datos, fecha_captura = EXCLUDED.fecha_captura,
		     latitud = EXCLUDED.latitud, longitud = EXCLUDED.longitud, synced_at = now()
		 `

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.CaseID, f.PeritoID, []byte(f.Payload), f.CapturedAt, f.Latitude, f.Longitude)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListByCase(ctx context.Context, caseID string) ([]*models.FormRecord, error) {
	query :=
		`SELECT id, expediente_id, perito_id, datos, fecha_captura, latitud, longitud, synced_at
		 FROM formularios
		 WHERE expediente_id = $1
		 ORDER BY fecha_captura
		 `

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FormRecord
	for rows.Next() {
		f := &models.FormRecord{}
		var payload []byte
		if err := rows.Scan(&f.ID, &f.CaseID, &f.PeritoID, &payload, &f.CapturedAt, &f.Latitude, &f.Longitude, &f.SyncedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		f.Payload = payload
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
