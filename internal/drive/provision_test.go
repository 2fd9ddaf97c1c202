package drive

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvisioner(t *testing.T, store *fakeStore) *Provisioner {
	t.Helper()
	client, _ := newTestClient(t, store)
	return NewProvisioner(client, "Peritajes", testLogger())
}

func TestEnsureFolder_CreatesThenReuses(t *testing.T) {
	store := newFakeStore(t)
	p := newTestProvisioner(t, store)
	ctx := context.Background()

	h1, err := p.EnsureFolder(ctx, RootID, "Peritajes")
	require.NoError(t, err)
	require.NotEmpty(t, h1.ID)

	h2, err := p.EnsureFolder(ctx, RootID, "Peritajes")
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h2.ID)
	assert.Equal(t, 1, store.folderCreates)
}

func TestEnsureFolder_ReconcilesLostRace(t *testing.T) {
	store := newFakeStore(t)
	ctx := context.Background()

	// Two provisioners with independent caches sharing one store: the second
	// lists before the first creates, so its create hits the conflict path.
	p1 := newTestProvisioner(t, store)
	p2 := newTestProvisioner(t, store)

	h1, err := p1.EnsureFolder(ctx, RootID, "Peritajes")
	require.NoError(t, err)

	h2, err := p2.EnsureFolder(ctx, RootID, "Peritajes")
	require.NoError(t, err)

	assert.Equal(t, h1.ID, h2.ID, "both callers must converge on the same folder")
	assert.Equal(t, 1, store.folderCreates)
}

func TestEnsureCaseHierarchy_BuildsFullTree(t *testing.T) {
	store := newFakeStore(t)
	p := newTestProvisioner(t, store)

	folders, err := p.EnsureCaseHierarchy(context.Background(), "EXP-2024-001")
	require.NoError(t, err)

	assert.Equal(t, "EXP-2024-001", folders.Case.Name)
	assert.Equal(t, PhotosFolderName, folders.Photos.Name)
	assert.Equal(t, FormsFolderName, folders.Forms.Name)
	// root + case + Fotos + Formularios
	assert.Equal(t, 4, store.folderCreates)
}

func TestEnsureCaseHierarchy_SharesRootAcrossCases(t *testing.T) {
	store := newFakeStore(t)
	p := newTestProvisioner(t, store)
	ctx := context.Background()

	_, err := p.EnsureCaseHierarchy(ctx, "EXP-2024-001")
	require.NoError(t, err)
	_, err = p.EnsureCaseHierarchy(ctx, "EXP-2024-002")
	require.NoError(t, err)

	// 4 for the first case, 3 for the second (root reused from cache).
	assert.Equal(t, 7, store.folderCreates)
}

func TestEnsureCaseHierarchy_ConcurrentCallersOneFolderEach(t *testing.T) {
	store := newFakeStore(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		// Separate provisioners: no shared cache, only the store-side
		// fail-on-conflict guarantees uniqueness.
		p := newTestProvisioner(t, store)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.EnsureCaseHierarchy(ctx, "EXP-2024-001")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}

	// Exactly one folder per (parent, name), never one per caller.
	assert.Equal(t, 4, store.folderCreates)
}

func TestEnsureCaseHierarchy_RejectsEmptyCode(t *testing.T) {
	store := newFakeStore(t)
	p := newTestProvisioner(t, store)

	_, err := p.EnsureCaseHierarchy(context.Background(), "")
	require.Error(t, err)
}

func TestCasePath(t *testing.T) {
	p := NewProvisioner(nil, "Peritajes", testLogger())
	assert.Equal(t, "Peritajes/EXP-01/Fotos/a.jpg", p.CasePath("EXP-01", PhotosFolderName, "a.jpg"))
}
