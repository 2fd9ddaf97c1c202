package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/avaluotech/fieldsync/internal/logging"
	"github.com/avaluotech/fieldsync/internal/server/models"
	"github.com/avaluotech/fieldsync/internal/server/repositories/cases"
	"github.com/avaluotech/fieldsync/internal/server/repositories/evidences"
	"github.com/avaluotech/fieldsync/internal/server/repositories/forms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeCases struct {
	byCode map[string]*models.Case
	err    error
}

func (f *fakeCases) GetByCode(ctx context.Context, code string) (*models.Case, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.byCode[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeCases) Create(ctx context.Context, c *models.Case) (*models.Case, error) {
	return c, nil
}

type fakeForms struct {
	upserts []*models.FormRecord
	err     error
}

func (f *fakeForms) Upsert(ctx context.Context, rec *models.FormRecord) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeForms) ListByCase(ctx context.Context, caseID string) ([]*models.FormRecord, error) {
	return f.upserts, nil
}

type fakeEvidences struct {
	upserts []*models.EvidenceRecord
	err     error
}

func (f *fakeEvidences) Upsert(ctx context.Context, rec *models.EvidenceRecord) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeEvidences) ListByCase(ctx context.Context, caseID string) ([]*models.EvidenceRecord, error) {
	return f.upserts, nil
}

type fakeRepoManager struct {
	cases     *fakeCases
	forms     *fakeForms
	evidences *fakeEvidences
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeRepoManager) Cases(db dbx.DBTX) cases.Repository                  { return f.cases }
func (f *fakeRepoManager) Forms(db dbx.DBTX) forms.Repository                  { return f.forms }
func (f *fakeRepoManager) Evidences(db dbx.DBTX) evidences.Repository          { return f.evidences }

type fakeForwarder struct {
	forwarded []string
	err       error
}

func (f *fakeForwarder) Forward(ctx context.Context, token, caseCode, fileName string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.forwarded = append(f.forwarded, caseCode+"/"+fileName)
	return "item-" + fileName, nil
}

func newService(t *testing.T, rm *fakeRepoManager, blobs BlobForwarder) (*SyncService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSyncService(db, rm, blobs, testLogger()), mock
}

func knownCases(codes ...string) *fakeCases {
	byCode := map[string]*models.Case{}
	for i, code := range codes {
		byCode[code] = &models.Case{ID: "c-" + string(rune('1'+i)), Code: code, PeritoID: "perito1"}
	}
	return &fakeCases{byCode: byCode}
}

func TestReconcile_RequiresPeritoID(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases(), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, nil)

	_, err := s.Reconcile(context.Background(), "", "tok", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestReconcile_PartialFormBatch(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, mock := newService(t, rm, nil)

	// f1 and f3 commit, f2 hits an unknown case and rolls back.
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	batch := []FormInput{
		{ID: "f1", CaseCode: "EXP-01", Payload: json.RawMessage(`{"a":1}`), CapturedAt: time.Now()},
		{ID: "f2", CaseCode: "EXP-99", Payload: json.RawMessage(`{"b":2}`), CapturedAt: time.Now()},
		{ID: "f3", CaseCode: "EXP-01", Payload: json.RawMessage(`{"c":3}`), CapturedAt: time.Now()},
	}

	outcome, err := s.Reconcile(context.Background(), "perito1", "tok", batch, nil)
	require.NoError(t, err, "a bad item never poisons the batch")

	assert.Equal(t, 2, outcome.Forms.Synced)
	require.Len(t, outcome.Forms.Failures, 1)
	assert.Equal(t, "f2", outcome.Forms.Failures[0].ID)
	assert.Equal(t, ReasonCaseNotFound, outcome.Forms.Failures[0].Reason)

	require.Len(t, rm.forms.upserts, 2)
	assert.Equal(t, "perito1", rm.forms.upserts[0].PeritoID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_FormValidation(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, nil)

	outcome, err := s.Reconcile(context.Background(), "perito1", "tok",
		[]FormInput{{ID: "", CaseCode: "EXP-01"}}, nil)
	require.NoError(t, err)

	assert.Zero(t, outcome.Forms.Synced)
	require.Len(t, outcome.Forms.Failures, 1)
	assert.Contains(t, outcome.Forms.Failures[0].Reason, "required")
}

func TestReconcile_EvidenceForwardedAndRegistered(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	fw := &fakeForwarder{}
	s, _ := newService(t, rm, fw)

	content := []byte("jpeg-bytes")
	outcome, err := s.Reconcile(context.Background(), "perito1", "tok", nil, []EvidenceInput{
		{ID: "e1", CaseCode: "EXP-01", FileName: "fachada.jpg", ContentType: "image/jpeg", Content: content, CapturedAt: time.Now()},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Evidences.Synced)
	assert.Empty(t, outcome.Evidences.Warnings)
	assert.Equal(t, []string{"EXP-01/fachada.jpg"}, fw.forwarded)

	require.Len(t, rm.evidences.upserts, 1)
	rec := rm.evidences.upserts[0]
	assert.Equal(t, "item-fachada.jpg", rec.RemoteRef)
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, common.Checksum(content), rec.Checksum)
}

func TestReconcile_ForwardingFailureStillRegisters(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	fw := &fakeForwarder{err: errors.New("store down")}
	s, _ := newService(t, rm, fw)

	outcome, err := s.Reconcile(context.Background(), "perito1", "tok", nil, []EvidenceInput{
		{ID: "e1", CaseCode: "EXP-01", FileName: "fachada.jpg", ContentType: "image/jpeg", Content: []byte("x"), CapturedAt: time.Now()},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Evidences.Synced, "metadata survives a Blob Store outage")
	require.Len(t, rm.evidences.upserts, 1)
	assert.Empty(t, rm.evidences.upserts[0].RemoteRef)

	// The device must be able to tell a metadata-only item from a fully
	// stored one.
	require.Len(t, outcome.Evidences.Warnings, 1)
	assert.Equal(t, "e1", outcome.Evidences.Warnings[0].ID)
	assert.Equal(t, ReasonBlobNotForwarded, outcome.Evidences.Warnings[0].Reason)
	assert.Empty(t, outcome.Evidences.Failures)
}

func TestReconcile_EvidenceUnknownCase(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases(), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, &fakeForwarder{})

	outcome, err := s.Reconcile(context.Background(), "perito1", "tok", nil, []EvidenceInput{
		{ID: "e1", CaseCode: "EXP-404", FileName: "f.jpg", Content: []byte("x")},
	})
	require.NoError(t, err)

	require.Len(t, outcome.Evidences.Failures, 1)
	assert.Equal(t, ReasonCaseNotFound, outcome.Evidences.Failures[0].Reason)
}

func TestReconcile_InternalErrorReasonIsOpaque(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{err: errors.New("pq: disk full")}, evidences: &fakeEvidences{}}
	s, mock := newService(t, rm, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	outcome, err := s.Reconcile(context.Background(), "perito1", "tok",
		[]FormInput{{ID: "f1", CaseCode: "EXP-01", Payload: json.RawMessage(`{}`)}}, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Forms.Failures, 1)
	assert.Equal(t, "error interno", outcome.Forms.Failures[0].Reason)
	assert.NotContains(t, outcome.Forms.Failures[0].Reason, "disk full")
}

func TestRegisterEvidence_Upsert(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, nil)

	err := s.RegisterEvidence(context.Background(), RegistrationInput{
		CaseCode:   "EXP-01",
		RemoteRef:  "item-042",
		Checksum:   "abc",
		Size:       123,
		CapturedBy: "perito1",
		CapturedAt: time.Now(),
	})
	require.NoError(t, err)

	require.Len(t, rm.evidences.upserts, 1)
	assert.Equal(t, "item-042", rm.evidences.upserts[0].RemoteRef)
	assert.Equal(t, "perito1", rm.evidences.upserts[0].PeritoID)
}

func TestRegisterEvidence_UnknownCase(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases(), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, nil)

	err := s.RegisterEvidence(context.Background(), RegistrationInput{CaseCode: "EXP-404", RemoteRef: "item-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRegisterEvidence_RequiresRemoteRef(t *testing.T) {
	rm := &fakeRepoManager{cases: knownCases("EXP-01"), forms: &fakeForms{}, evidences: &fakeEvidences{}}
	s, _ := newService(t, rm, nil)

	err := s.RegisterEvidence(context.Background(), RegistrationInput{CaseCode: "EXP-01"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}
