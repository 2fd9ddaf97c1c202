package evidences

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

// Upsert inserts or replaces the evidence row keyed by the client-generated
// id, so a retried registration updates the remote reference in place.
func (r *PostgresRepository) Upsert(ctx context.Context, e *models.EvidenceRecord) error {

	query :=
		`INSERT INTO evidencias (id, expediente_id, perito_id, nombre_archivo, tipo_contenido, tamano, checksum, remote_ref, fecha_captura, latitud, longitud)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET tamano = EXCLUDED.tamano, checksum = EXCLUDED.checksum,
		     remote_ref = EXCLUDED.remote_ref, synced_at = now()
		 `

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.CaseID, e.PeritoID, e.FileName, e.ContentType, e.Size, e.Checksum,
		e.RemoteRef, e.CapturedAt, e.Latitude, e.Longitude)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListByCase(ctx context.Context, caseID string) ([]*models.EvidenceRecord, error) {
	query :=
		`SELECT id, expediente_id, perito_id, nombre_archivo, tipo_contenido, tamano, checksum, remote_ref, fecha_captura, latitud, longitud, synced_at
		 FROM evidencias
		 WHERE expediente_id = $1
		 ORDER BY fecha_captura
		 `

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.EvidenceRecord
	for rows.Next() {
		e := &models.EvidenceRecord{}
		if err := rows.Scan(&e.ID, &e.CaseID, &e.PeritoID, &e.FileName, &e.ContentType,
			&e.Size, &e.Checksum, &e.RemoteRef, &e.CapturedAt, &e.Latitude, &e.Longitude, &e.SyncedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
