package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avaluotech/fieldsync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+formularios\s*\(.*\)\s*VALUES\s*\(.*\)\s*ON\s+CONFLICT\s*\(id\)\s+DO\s+UPDATE.*$`

	captured := time.Now().UTC()
	mock.ExpectExec(q).
		WithArgs("f-1", "c-1", "perito1", []byte(`{"a":1}`), captured, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	f := &models.FormRecord{
		ID:         "f-1",
		CaseID:     "c-1",
		PeritoID:   "perito1",
		Payload:    json.RawMessage(`{"a":1}`),
		CapturedAt: captured,
	}
	if err := repo.Upsert(context.Background(), f); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT`).WillReturnError(errors.New("db down"))

	err := repo.Upsert(context.Background(), &models.FormRecord{ID: "f-1", Payload: json.RawMessage(`{}`)})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByCase(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	captured := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "expediente_id", "perito_id", "datos", "fecha_captura", "latitud", "longitud", "synced_at"}).
		AddRow("f-1", "c-1", "perito1", []byte(`{"a":1}`), captured, nil, nil, captured).
		AddRow("f-2", "c-1", "perito1", []byte(`{"b":2}`), captured, 19.43, -99.13, captured)
	mock.ExpectQuery(`SELECT.*FROM\s+formularios`).
		WithArgs("c-1").
		WillReturnRows(rows)

	got, err := repo.ListByCase(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("ListByCase error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(got))
	}
	if got[1].Latitude == nil || *got[1].Latitude != 19.43 {
		t.Fatalf("unexpected latitude: %+v", got[1])
	}
}
