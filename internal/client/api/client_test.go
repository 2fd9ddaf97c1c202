package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(_ context.Context) (string, error) { return string(s), nil }

func TestSyncBatch_SendsContractAndParsesResult(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/datos", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(BatchResult{
			Success:     true,
			Formularios: GroupResult{Synced: 2, Failed: 1, Errors: []ItemError{{ID: "f2", Reason: "expediente no encontrado"}}},
			Evidencias:  GroupResult{Synced: 1},
			Timestamp:   time.Now().UTC(),
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, staticToken("tok-123"), 0)

	forms := []FormSubmission{
		{ID: "f1", CaseCode: "EXP-01", Payload: json.RawMessage(`{"a":1}`), CapturedAt: time.Now()},
		{ID: "f2", CaseCode: "EXP-99", Payload: json.RawMessage(`{"b":2}`), CapturedAt: time.Now()},
		{ID: "f3", CaseCode: "EXP-01", Payload: json.RawMessage(`{"c":3}`), CapturedAt: time.Now()},
	}
	res, err := c.SyncBatch(context.Background(), "perito1", forms, nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "perito1", gotBody["peritoId"])
	assert.Len(t, gotBody["formularios"], 3)
	assert.NotNil(t, gotBody["evidencias"], "evidencias must be an empty array, not null")

	assert.Equal(t, 2, res.Formularios.Synced)
	assert.Equal(t, map[string]string{"f2": "expediente no encontrado"}, res.FailedForms())
	assert.Empty(t, res.FailedEvidences())
}

func TestSyncBatch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"missing perito", http.StatusBadRequest, common.ErrValidation},
		{"stale token", http.StatusUnauthorized, common.ErrTokenStale},
		{"backend down", http.StatusBadGateway, common.ErrTransient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			c := NewClient(srv.URL, staticToken("t"), 0)
			_, err := c.SyncBatch(context.Background(), "perito1", nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegisterEvidence_PostsUpsert(t *testing.T) {
	var got Registration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/registro", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, staticToken("t"), 0)
	err := c.RegisterEvidence(context.Background(), Registration{
		CaseCode:   "EXP-01",
		RemoteRef:  "item-042",
		Checksum:   "abc",
		Size:       123,
		CapturedBy: "perito1",
		CapturedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "EXP-01", got.CaseCode)
	assert.Equal(t, "item-042", got.RemoteRef)
}

func TestRegisterEvidence_TransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, staticToken("t"), 0)
	err := c.RegisterEvidence(context.Background(), Registration{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransient)
}
